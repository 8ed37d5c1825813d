package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// batchTransitions 批次状态推进表，由厨师或时间驱动
var batchTransitions = map[batch.Status][]batch.Status{
	batch.StatusScheduled:  {batch.StatusInProgress, batch.StatusCancelled},
	batch.StatusInProgress: {batch.StatusReady, batch.StatusCancelled},
	batch.StatusReady:      {batch.StatusCompleted, batch.StatusCancelled},
}

// BatchService 批次管理服务
type BatchService struct {
	batchRepo batch.Repository
	dishRepo  dish.Repository
	admission *AdmissionService // 可为 nil，用于同步建议性产能计数器
}

// NewBatchService 创建批次服务
func NewBatchService(batchRepo batch.Repository, dishRepo dish.Repository, admission *AdmissionService) *BatchService {
	return &BatchService{
		batchRepo: batchRepo,
		dishRepo:  dishRepo,
		admission: admission,
	}
}

// BatchInput 排批次的入参
type BatchInput struct {
	DishID        string
	ScheduledDate time.Time
	PickupDate    time.Time
	CutoffDate    time.Time
	Capacity      int64
}

// Create 厨师给自己的菜品排一个批次。
// 截单时间必须早于等于取餐时间，产能必须是正整数。
func (s *BatchService) Create(ctx context.Context, actor auth.Identity, in BatchInput) (*batch.Batch, error) {
	if actor.Role != user.RoleCook {
		return nil, ErrPermissionDenied
	}
	d, err := s.dishRepo.GetByID(ctx, in.DishID)
	if err != nil {
		return nil, fmt.Errorf("load dish: %w", err)
	}
	if d.CookID != actor.UserID {
		return nil, ErrPermissionDenied
	}
	if !d.Active {
		return nil, fmt.Errorf("dish is not active")
	}
	if in.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if in.CutoffDate.After(in.PickupDate) {
		return nil, fmt.Errorf("cutoff must not be after pickup")
	}

	b := &batch.Batch{
		ID:            uuid.NewString(),
		DishID:        d.ID,
		CookID:        actor.UserID,
		ScheduledDate: in.ScheduledDate,
		PickupDate:    in.PickupDate,
		CutoffDate:    in.CutoffDate,
		Capacity:      in.Capacity,
		CurrentOrders: 0,
		Status:        batch.StatusScheduled,
		Active:        true,
	}
	if err := s.batchRepo.Create(ctx, b); err != nil {
		return nil, err
	}

	if s.admission != nil {
		if err := s.admission.SyncBatchCapacity(ctx, b); err != nil {
			GetMonitor().RecordRedisError()
			zap.L().Warn("failed to sync advisory capacity", zap.String("batch_id", b.ID), zap.Error(err))
		}
	}
	return b, nil
}

// UpdateStatus 厨师推进批次状态（开做、出餐、收摊）。
// 已进入批次的订单不受影响，取消批次只挡新订单。
func (s *BatchService) UpdateStatus(ctx context.Context, actor auth.Identity, batchID string, target batch.Status) (*batch.Batch, error) {
	b, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if actor.Role != user.RoleCook || actor.UserID != b.CookID {
		return nil, ErrPermissionDenied
	}

	allowed := false
	for _, next := range batchTransitions[b.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	if err := s.batchRepo.UpdateStatus(ctx, batchID, target); err != nil {
		return nil, err
	}
	b.Status = target
	return b, nil
}

// Deactivate 下架批次（软删除），已接的订单照常履约
func (s *BatchService) Deactivate(ctx context.Context, actor auth.Identity, batchID string) error {
	b, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if actor.Role != user.RoleCook || actor.UserID != b.CookID {
		return ErrPermissionDenied
	}
	b.Active = false
	return s.batchRepo.Update(ctx, b)
}

// GetByID 查询批次
func (s *BatchService) GetByID(ctx context.Context, id string) (*batch.Batch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListOpen 买家浏览当前可下单的批次。
// 返回的剩余产能只是参考值，下单时服务端重新裁决。
func (s *BatchService) ListOpen(ctx context.Context) ([]*batch.Batch, error) {
	return s.batchRepo.ListOpen(ctx, time.Now())
}

// ListByCook 厨师自己的批次列表
func (s *BatchService) ListByCook(ctx context.Context, cookID string) ([]*batch.Batch, error) {
	return s.batchRepo.ListByCook(ctx, cookID)
}
