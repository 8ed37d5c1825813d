package batch

import (
	"context"
	"time"
)

// Status 批次状态
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Batch 出餐批次：一个菜品的一次限量供应。
// CurrentOrders 只允许通过 Repository 的条件更新修改，
// 任何时刻满足 0 <= CurrentOrders <= Capacity。
type Batch struct {
	ID            string    `gorm:"primaryKey;size:36"`
	DishID        string    `gorm:"size:36;index;not null"`
	CookID        string    `gorm:"size:36;index;not null"`
	ScheduledDate time.Time `gorm:"index"`
	PickupDate    time.Time `gorm:"index"`
	CutoffDate    time.Time `gorm:"index"` // 截单时间，必须 <= PickupDate
	Capacity      int64     `gorm:"not null"`
	CurrentOrders int64     `gorm:"not null;default:0"`
	Status        Status    `gorm:"size:16;index;default:scheduled"`
	Active        bool      `gorm:"index;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Remaining 剩余可订数量（仅供展示参考，下单以条件更新为准）
func (b *Batch) Remaining() int64 {
	r := b.Capacity - b.CurrentOrders
	if r < 0 {
		return 0
	}
	return r
}

// Terminal 批次是否已到终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Repository 批次仓储接口。
// ReserveCapacity / ReleaseCapacity 是产能计数器唯一的修改入口，
// 实现必须表达为单条条件更新语句，不能读出再写回。
type Repository interface {
	GetByID(ctx context.Context, id string) (*Batch, error)
	ListOpen(ctx context.Context, now time.Time) ([]*Batch, error)
	ListByCook(ctx context.Context, cookID string) ([]*Batch, error)
	// ListUnsettled 返回所有未到终态的批次，供对账任务遍历
	ListUnsettled(ctx context.Context) ([]*Batch, error)
	Create(ctx context.Context, b *Batch) error
	Update(ctx context.Context, b *Batch) error
	UpdateStatus(ctx context.Context, id string, status Status) error

	// ReserveCapacity 原子占用 qty 份产能。
	// 仅当 current_orders + qty <= capacity 且批次仍可接单时生效；
	// 返回 false 表示条件不满足，计数器未被修改。
	ReserveCapacity(ctx context.Context, id string, qty int64, now time.Time) (bool, error)

	// ReleaseCapacity 原子释放 qty 份产能，下限为 0。
	ReleaseCapacity(ctx context.Context, id string, qty int64) error

	// CorrectCapacity 对账专用的条件写回：仅当 current_orders 仍等于
	// observed 时改写为 actual。返回 false 表示快照之后计数器被并发
	// 修改，调用方需要重新取数。
	CorrectCapacity(ctx context.Context, id string, observed, actual int64) (bool, error)
}
