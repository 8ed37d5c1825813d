package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status 订单状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Terminal 是否终态，终态订单不允许再变更
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// Order 订单模型。
// UnitPrice 在下单时从菜品快照而来，与菜品后续改价无关；
// TotalPrice = UnitPrice * Quantity。
type Order struct {
	ID         string          `gorm:"primaryKey;size:36"`
	BuyerID    string          `gorm:"size:36;index;not null"`
	BatchID    string          `gorm:"size:36;index;not null"`
	DishID     string          `gorm:"size:36;index;not null"` // 冗余存储，方便展示
	CookID     string          `gorm:"size:36;index;not null"`
	Quantity   int64           `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Status     Status          `gorm:"size:16;index;not null"`
	PickupCode string          `gorm:"size:12;index"` // 确认后签发的取餐码
	Rating     int             `gorm:"default:0"`     // 完成后买家评分 1-5，0 表示未评
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository 订单仓储接口。
// UpdateStatus 为 CAS 语义：仅当订单仍处于 from 状态时写入 to，
// 返回 false 表示状态已被并发修改。
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPickupCode(ctx context.Context, code string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	ListByBatch(ctx context.Context, batchID string) ([]*Order, error)
	ListRecent(ctx context.Context, limit int) ([]*Order, error)
	Create(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
	SetPickupCode(ctx context.Context, id, code string) error

	// SetRating 条件写入评分，仅对尚未评分的订单生效。
	// 返回 false 表示订单已有评分，调用方不得重复累计聚合。
	SetRating(ctx context.Context, id string, rating int) (bool, error)

	// SumActiveQuantity 统计批次上未终态订单占用的总份数，用于对账
	SumActiveQuantity(ctx context.Context, batchID string) (int64, error)
}
