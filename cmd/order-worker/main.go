package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
	"github.com/Alihan26/YeDeli/internal/infra/mq"
	"github.com/Alihan26/YeDeli/internal/logger"
	"github.com/Alihan26/YeDeli/internal/repository/mysql"
	"github.com/Alihan26/YeDeli/internal/service"
)

// 支付回调的处理身份，不受角色权限约束
var systemActor = auth.Identity{UserID: "payment-worker", Role: user.RoleSystem}

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	mqConn := mq.Init(&cfg.RabbitMQ)

	userRepo := mysql.NewUserRepository(db)
	batchRepo := mysql.NewBatchRepository(db)
	orderRepo := mysql.NewOrderRepository(db)

	lifecycleSvc := service.NewLifecycleService(orderRepo, batchRepo, userRepo, mq.NewNotifier(mqConn))

	ch, err := mqConn.Channel()
	if err != nil {
		log.Fatalf("failed to open channel: %v", err)
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(mq.PaymentResultQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("failed to declare queue: %v", err)
	}

	// 手动确认模式（auto-ack=false）
	msgs, err := ch.Consume(mq.PaymentResultQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	log.Println("order worker started, waiting for payment results...")

	for d := range msgs {
		var m service.PaymentResult
		if err := json.Unmarshal(d.Body, &m); err != nil {
			log.Printf("invalid message: %v", err)
			// 消息格式错误，拒绝并丢弃
			_ = d.Nack(false, false)
			continue
		}
		handlePaymentResult(context.Background(), lifecycleSvc, &m, d)
	}
}

// handlePaymentResult 按支付结果驱动订单状态：
// 成功 pending → confirmed，失败 pending → refunded（自动释放产能）。
func handlePaymentResult(ctx context.Context, lifecycle *service.LifecycleService, m *service.PaymentResult, d amqp.Delivery) {
	target := order.StatusConfirmed
	if !m.Success {
		target = order.StatusRefunded
		log.Printf("payment failed for order %s: %s", m.OrderID, m.Reason)
	}

	_, err := lifecycle.Transition(ctx, systemActor, m.OrderID, target)
	switch {
	case err == nil:
		service.GetMonitor().RecordWorkerProcessed()
		if err := d.Ack(false); err != nil {
			log.Printf("failed to ack message: %v", err)
		}

	case errors.Is(err, service.ErrInvalidTransition):
		// 订单已经离开 pending，多半是重复投递，确认丢弃
		log.Printf("order %s already processed, dropping message", m.OrderID)
		_ = d.Ack(false)

	case errors.Is(err, gorm.ErrRecordNotFound):
		// 订单不存在，重试也无济于事
		log.Printf("order %s not found, dropping message", m.OrderID)
		service.GetMonitor().RecordWorkerFailed()
		_ = d.Nack(false, false)

	default:
		// 数据库抖动之类的瞬时错误，重新入队再试
		log.Printf("failed to process order %s: %v", m.OrderID, err)
		service.GetMonitor().RecordWorkerFailed()
		_ = d.Nack(false, true)
	}
}
