package service

import (
	"context"
	"time"

	"github.com/Alihan26/YeDeli/internal/datamodels/order"
)

// TransitionEvent 一次生命周期迁移的通知载荷
type TransitionEvent struct {
	OrderID string       `json:"order_id"`
	BatchID string       `json:"batch_id"`
	BuyerID string       `json:"buyer_id"`
	CookID  string       `json:"cook_id"`
	From    order.Status `json:"from"`
	To      order.Status `json:"to"`
	At      time.Time    `json:"at"`
}

// Notifier 通知协作方。实现必须是尽力而为：
// 返回错误只会被记日志，不影响迁移结果。
type Notifier interface {
	NotifyTransition(ctx context.Context, ev *TransitionEvent) error
}

// PaymentResult 支付协作方经 MQ 上报的扣款结果。
// 成功驱动 pending → confirmed，失败驱动 pending → refunded。
type PaymentResult struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
