package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
)

type dishRepo struct {
	db *gorm.DB
}

// NewDishRepository 创建菜品仓储
func NewDishRepository(db *gorm.DB) dish.Repository {
	return &dishRepo{db: db}
}

func (r *dishRepo) GetByID(ctx context.Context, id string) (*dish.Dish, error) {
	var d dish.Dish
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dishRepo) ListByCook(ctx context.Context, cookID string) ([]*dish.Dish, error) {
	var list []*dish.Dish
	if err := r.db.WithContext(ctx).
		Where("cook_id = ?", cookID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dishRepo) ListActive(ctx context.Context) ([]*dish.Dish, error) {
	var list []*dish.Dish
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dishRepo) ListByCuisine(ctx context.Context, cuisine string) ([]*dish.Dish, error) {
	var list []*dish.Dish
	query := r.db.WithContext(ctx).Where("active = ?", true)
	if cuisine != "" && cuisine != "all" {
		query = query.Where("cuisine = ?", cuisine)
	}
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dishRepo) Create(ctx context.Context, d *dish.Dish) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *dishRepo) Update(ctx context.Context, d *dish.Dish) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *dishRepo) Delete(ctx context.Context, id string) error {
	// 软删除：只下线，不物理删除，已有订单仍引用该菜品
	return r.db.WithContext(ctx).
		Model(&dish.Dish{}).
		Where("id = ?", id).
		Update("active", false).Error
}
