package mq

import (
	"context"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Alihan26/YeDeli/internal/config"
)

const (
	// PaymentResultQueue 支付回调队列：支付方异步上报扣款结果
	PaymentResultQueue = "payment_result_queue"
	// OrderEventQueue 订单事件队列：生命周期变更的通知扇出
	OrderEventQueue = "order_event_queue"
)

var (
	conn *amqp.Connection
	once sync.Once
)

// Init 初始化 RabbitMQ 连接
func Init(cfg *config.RabbitMQConfig) *amqp.Connection {
	once.Do(func() {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
		conn = c
	})
	return conn
}

// Conn 获取 MQ 连接
func Conn() *amqp.Connection {
	return conn
}

// Publish 声明队列并投递一条 JSON 消息
func Publish(ctx context.Context, conn *amqp.Connection, queue string, body []byte) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
