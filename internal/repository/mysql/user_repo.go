package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) ListAll(ctx context.Context) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepo) Update(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *userRepo) RecordCompletedOrder(ctx context.Context, cookID string) error {
	return r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", cookID).
		Update("total_orders", gorm.Expr("total_orders + 1")).Error
}

func (r *userRepo) ApplyRating(ctx context.Context, cookID string, rating int) error {
	return r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", cookID).
		Updates(map[string]interface{}{
			"rating_sum":   gorm.Expr("rating_sum + ?", rating),
			"rating_count": gorm.Expr("rating_count + 1"),
		}).Error
}
