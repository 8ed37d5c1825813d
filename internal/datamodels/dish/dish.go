package dish

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Dish 菜品模型，由厨师创建并维护。
// 价格为两位小数的定点数，下单时快照到订单，后续改价不影响已有订单。
type Dish struct {
	ID          string          `gorm:"primaryKey;size:36"`
	CookID      string          `gorm:"size:36;index;not null"`
	Name        string          `gorm:"size:128;not null"`
	Description string          `gorm:"size:512"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Cuisine     string          `gorm:"size:32;index"` // 菜系：italian、indian、korean 等
	Active      bool            `gorm:"index;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository 菜品仓储接口
type Repository interface {
	GetByID(ctx context.Context, id string) (*Dish, error)
	ListByCook(ctx context.Context, cookID string) ([]*Dish, error)
	ListActive(ctx context.Context) ([]*Dish, error)
	ListByCuisine(ctx context.Context, cuisine string) ([]*Dish, error) // 按菜系查询
	Create(ctx context.Context, d *Dish) error
	Update(ctx context.Context, d *Dish) error
	Delete(ctx context.Context, id string) error
}
