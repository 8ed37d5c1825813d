package mq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Alihan26/YeDeli/internal/service"
)

// Notifier 把生命周期事件投递到订单事件队列
type Notifier struct {
	conn *amqp.Connection
}

// NewNotifier 创建 MQ 通知器
func NewNotifier(conn *amqp.Connection) *Notifier {
	return &Notifier{conn: conn}
}

// NotifyTransition 投递一条迁移事件，失败由调用方记日志
func (n *Notifier) NotifyTransition(ctx context.Context, ev *service.TransitionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return Publish(ctx, n.conn, OrderEventQueue, body)
}
