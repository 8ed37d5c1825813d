package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// DishService 菜品目录服务
type DishService struct {
	repo dish.Repository
}

// NewDishService 创建菜品服务
func NewDishService(repo dish.Repository) *DishService {
	return &DishService{repo: repo}
}

// DishInput 创建/编辑菜品的入参
type DishInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Cuisine     string
}

func (in *DishInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("dish name is required")
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("dish price must be positive")
	}
	return nil
}

// Create 厨师创建菜品
func (s *DishService) Create(ctx context.Context, actor auth.Identity, in DishInput) (*dish.Dish, error) {
	if actor.Role != user.RoleCook {
		return nil, ErrPermissionDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	d := &dish.Dish{
		ID:          uuid.NewString(),
		CookID:      actor.UserID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Cuisine:     in.Cuisine,
		Active:      true,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Update 厨师编辑自己的菜品。改价只影响之后的订单，
// 已下单的价格快照不变。
func (s *DishService) Update(ctx context.Context, actor auth.Identity, dishID string, in DishInput) (*dish.Dish, error) {
	d, err := s.repo.GetByID(ctx, dishID)
	if err != nil {
		return nil, err
	}
	if actor.Role != user.RoleCook || actor.UserID != d.CookID {
		return nil, ErrPermissionDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	d.Name = in.Name
	d.Description = in.Description
	d.Price = in.Price.Round(2)
	d.Cuisine = in.Cuisine
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Deactivate 下线菜品。已有订单不受影响，只挡住新批次/新订单。
func (s *DishService) Deactivate(ctx context.Context, actor auth.Identity, dishID string) error {
	d, err := s.repo.GetByID(ctx, dishID)
	if err != nil {
		return err
	}
	if actor.Role != user.RoleCook || actor.UserID != d.CookID {
		return ErrPermissionDenied
	}
	return s.repo.Delete(ctx, dishID)
}

// GetByID 查询菜品
func (s *DishService) GetByID(ctx context.Context, id string) (*dish.Dish, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByCuisine 按菜系浏览在售菜品，菜系为空时返回全部在售菜品
func (s *DishService) ListByCuisine(ctx context.Context, cuisine string) ([]*dish.Dish, error) {
	if cuisine == "" {
		return s.repo.ListActive(ctx)
	}
	return s.repo.ListByCuisine(ctx, cuisine)
}

// ListByCook 厨师自己的菜品列表
func (s *DishService) ListByCook(ctx context.Context, cookID string) ([]*dish.Dish, error) {
	return s.repo.ListByCook(ctx, cookID)
}
