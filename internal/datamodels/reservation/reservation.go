package reservation

import (
	"context"
	"time"

	"github.com/Alihan26/YeDeli/internal/datamodels/order"
)

// Reservation 预订台账：幂等键到订单的持久映射。
// 同一个幂等键至多对应一条订单，网络重试不会重复占用产能。
type Reservation struct {
	ID             string `gorm:"primaryKey;size:36"`
	IdempotencyKey string `gorm:"size:64;uniqueIndex;not null"`
	OrderID        string `gorm:"size:36;index;not null"`
	BuyerID        string `gorm:"size:36;index;not null"`
	CreatedAt      time.Time
}

// Repository 预订台账仓储接口。
// RecordIfAbsent 在同一事务内写入订单和台账记录；
// 幂等键已存在时返回先前的订单，created 为 false，o 不落库。
type Repository interface {
	GetByKey(ctx context.Context, key string) (*Reservation, error)
	RecordIfAbsent(ctx context.Context, key string, o *order.Order) (result *order.Order, created bool, err error)
}
