package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/datamodels/order"
)

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByPickupCode(ctx context.Context, code string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		First(&o, "pickup_code = ?", code).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	var list []*order.Order
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepo) ListByBatch(ctx context.Context, batchID string) ([]*order.Order, error) {
	var list []*order.Order
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepo) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*order.Order
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateStatus CAS 状态迁移：WHERE 带上 from 状态，
// 并发修改过的订单不会被覆盖，返回 false 由调用方决定重试或报错。
func (r *orderRepo) UpdateStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepo) SetPickupCode(ctx context.Context, id, code string) error {
	return r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ?", id).
		Update("pickup_code", code).Error
}

// SetRating 评分和"是否已评分"的判断压进同一条条件更新，
// 并发的重复评分最多只有一个请求能命中 rating = 0 的行。
func (r *orderRepo) SetRating(ctx context.Context, id string, rating int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ? AND rating = 0", id).
		Update("rating", rating)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SumActiveQuantity 统计仍占用产能的总份数。
// 只有取消和退款会释放产能，已完成订单的占用保留在计数器里。
func (r *orderRepo) SumActiveQuantity(ctx context.Context, batchID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("batch_id = ? AND status NOT IN ?",
			batchID, []order.Status{order.StatusCancelled, order.StatusRefunded}).
		Scan(&sum).Error
	return sum, err
}
