package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
)

type batchRepo struct {
	db *gorm.DB
}

// NewBatchRepository 创建批次仓储
func NewBatchRepository(db *gorm.DB) batch.Repository {
	return &batchRepo{db: db}
}

func (r *batchRepo) GetByID(ctx context.Context, id string) (*batch.Batch, error) {
	var b batch.Batch
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) ListOpen(ctx context.Context, now time.Time) ([]*batch.Batch, error) {
	var list []*batch.Batch
	if err := r.db.WithContext(ctx).
		Where("active = ? AND status NOT IN ? AND cutoff_date > ?",
			true, []batch.Status{batch.StatusCancelled, batch.StatusCompleted}, now).
		Order("pickup_date ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *batchRepo) ListByCook(ctx context.Context, cookID string) ([]*batch.Batch, error) {
	var list []*batch.Batch
	if err := r.db.WithContext(ctx).
		Where("cook_id = ?", cookID).
		Order("pickup_date DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *batchRepo) ListUnsettled(ctx context.Context) ([]*batch.Batch, error) {
	var list []*batch.Batch
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []batch.Status{batch.StatusCancelled, batch.StatusCompleted}).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *batchRepo) Create(ctx context.Context, b *batch.Batch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *batchRepo) Update(ctx context.Context, b *batch.Batch) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *batchRepo) UpdateStatus(ctx context.Context, id string, status batch.Status) error {
	return r.db.WithContext(ctx).
		Model(&batch.Batch{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ReserveCapacity 单条条件更新占用产能。
// 校验条件（可接单、未截单、不超容）全部放进 WHERE 子句，
// 由数据库对该行串行化，杜绝读后写的竞态窗口。
func (r *batchRepo) ReserveCapacity(ctx context.Context, id string, qty int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&batch.Batch{}).
		Where("id = ? AND active = ? AND status NOT IN ? AND cutoff_date > ? AND current_orders + ? <= capacity",
			id, true, []batch.Status{batch.StatusCancelled, batch.StatusCompleted}, now, qty).
		Update("current_orders", gorm.Expr("current_orders + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseCapacity 原子释放产能，GREATEST 保证计数器不会被减到负数
func (r *batchRepo) ReleaseCapacity(ctx context.Context, id string, qty int64) error {
	return r.db.WithContext(ctx).
		Model(&batch.Batch{}).
		Where("id = ?", id).
		Update("current_orders", gorm.Expr("GREATEST(current_orders - ?, 0)", qty)).Error
}

// CorrectCapacity 对账写回也是条件更新：快照值进 WHERE 子句，
// 快照之后有人动过计数器就一行都不改，避免覆盖并发下单的占用。
func (r *batchRepo) CorrectCapacity(ctx context.Context, id string, observed, actual int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&batch.Batch{}).
		Where("id = ? AND current_orders = ?", id, observed).
		Update("current_orders", actual)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
