package mysql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/reservation"
)

type reservationRepo struct {
	db *gorm.DB
}

// NewReservationRepository 创建预订台账仓储
func NewReservationRepository(db *gorm.DB) reservation.Repository {
	return &reservationRepo{db: db}
}

func (r *reservationRepo) GetByKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	var rec reservation.Reservation
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// RecordIfAbsent 同一事务内写入订单与台账记录。
// 幂等键唯一索引兜底：两个并发的同键请求只有一个能提交，
// 输家整个事务回滚（订单不落库），随后读出赢家的订单返回。
func (r *reservationRepo) RecordIfAbsent(ctx context.Context, key string, o *order.Order) (*order.Order, bool, error) {
	var result *order.Order
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing reservation.Reservation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("idempotency_key = ?", key).
			First(&existing).Error
		if err == nil {
			var prior order.Order
			if err := tx.First(&prior, "id = ?", existing.OrderID).Error; err != nil {
				return err
			}
			result = &prior
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(o).Error; err != nil {
			return err
		}
		rec := &reservation.Reservation{
			ID:             uuid.NewString(),
			IdempotencyKey: key,
			OrderID:        o.ID,
			BuyerID:        o.BuyerID,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		result = o
		created = true
		return nil
	})

	if err != nil {
		// 并发撞键：事务整体回滚后按命中处理，读出先提交的订单
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			rec, lookupErr := r.GetByKey(ctx, key)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if rec != nil {
				var prior order.Order
				if lookupErr := r.db.WithContext(ctx).
					First(&prior, "id = ?", rec.OrderID).Error; lookupErr != nil {
					return nil, false, lookupErr
				}
				return &prior, false, nil
			}
		}
		return nil, false, err
	}
	return result, created, nil
}
