package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// transitions 订单状态机。不在表里的迁移一律非法，
// completed / cancelled / refunded 是终态，没有出边。
var transitions = map[order.Status][]order.Status{
	order.StatusPending:   {order.StatusConfirmed, order.StatusCancelled, order.StatusRefunded},
	order.StatusConfirmed: {order.StatusPreparing, order.StatusCancelled, order.StatusRefunded},
	order.StatusPreparing: {order.StatusReady, order.StatusCancelled, order.StatusRefunded},
	order.StatusReady:     {order.StatusCompleted, order.StatusCancelled, order.StatusRefunded},
}

// TransitionAllowed 状态机查表
func TransitionAllowed(from, to order.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LifecycleService 订单生命周期管理。
// 取消/退款释放产能，完成累计厨师订单数，确认签发取餐码；
// 通知是尽力而为，失败只记日志，绝不回滚迁移。
type LifecycleService struct {
	orderRepo order.Repository
	batchRepo batch.Repository
	userRepo  user.Repository
	notifier  Notifier // 可为 nil
}

// NewLifecycleService 创建生命周期管理器
func NewLifecycleService(
	orderRepo order.Repository,
	batchRepo batch.Repository,
	userRepo user.Repository,
	notifier Notifier,
) *LifecycleService {
	return &LifecycleService{
		orderRepo: orderRepo,
		batchRepo: batchRepo,
		userRepo:  userRepo,
		notifier:  notifier,
	}
}

// Transition 执行一次状态迁移。
// CAS 写状态：只有订单仍处于读到的状态时才会生效，
// 并发修改过的订单按非法迁移上报，副作用一次都不会执行。
func (s *LifecycleService) Transition(ctx context.Context, actor auth.Identity, orderID string, target order.Status) (*order.Order, error) {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}

	if !TransitionAllowed(o.Status, target) {
		return nil, ErrInvalidTransition
	}
	if err := s.authorize(ctx, actor, o, target); err != nil {
		return nil, err
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, orderID, o.Status, target)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// 状态已被并发修改，刚才的快照作废
		return nil, ErrInvalidTransition
	}

	from := o.Status
	o.Status = target

	switch target {
	case order.StatusConfirmed:
		code, err := s.issuePickupCode(ctx, o)
		if err != nil {
			// 取餐码签发失败不回滚确认，留待人工或重试补发
			zap.L().Error("failed to issue pickup code",
				zap.String("order_id", o.ID), zap.Error(err))
		} else {
			o.PickupCode = code
		}

	case order.StatusCancelled, order.StatusRefunded:
		// 释放产能。终态订单不会再次走到这里，所以不存在重复释放。
		if err := s.batchRepo.ReleaseCapacity(ctx, o.BatchID, o.Quantity); err != nil {
			GetMonitor().RecordDBError()
			zap.L().Error("failed to release capacity on terminal transition",
				zap.String("order_id", o.ID), zap.String("batch_id", o.BatchID), zap.Error(err))
		} else {
			GetMonitor().RecordCapacityRelease()
		}

	case order.StatusCompleted:
		// 完成是唯一允许累计厨师订单数的迁移
		if err := s.userRepo.RecordCompletedOrder(ctx, o.CookID); err != nil {
			GetMonitor().RecordDBError()
			zap.L().Error("failed to record completed order for cook",
				zap.String("cook_id", o.CookID), zap.Error(err))
		}
	}

	s.notify(ctx, o, from, target)
	return o, nil
}

// RateOrder 买家给已完成订单评分，只有完成后的订单能进入评分聚合
func (s *LifecycleService) RateOrder(ctx context.Context, actor auth.Identity, orderID string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if actor.Role != user.RoleBuyer || actor.UserID != o.BuyerID {
		return ErrPermissionDenied
	}
	if o.Status != order.StatusCompleted {
		return ErrInvalidTransition
	}
	applied, err := s.orderRepo.SetRating(ctx, o.ID, rating)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	if !applied {
		// 已评过分（可能是并发的重复提交），幂等返回，聚合不重复累计
		return nil
	}
	if err := s.userRepo.ApplyRating(ctx, o.CookID, rating); err != nil {
		return fmt.Errorf("apply rating: %w", err)
	}
	return nil
}

// CompleteByPickupCode 厨师凭取餐码完成订单
func (s *LifecycleService) CompleteByPickupCode(ctx context.Context, actor auth.Identity, code string) (*order.Order, error) {
	o, err := s.orderRepo.GetByPickupCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("pickup code not found: %w", gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("load order by pickup code: %w", err)
	}
	return s.Transition(ctx, actor, o.ID, order.StatusCompleted)
}

// authorize 按角色约束迁移发起方：
//   - 买家只能在截单前取消自己的 pending/confirmed 订单；
//   - 厨师操作自己批次上的订单；
//   - 系统身份（支付回调、对账）不受限。
func (s *LifecycleService) authorize(ctx context.Context, actor auth.Identity, o *order.Order, target order.Status) error {
	switch actor.Role {
	case user.RoleSystem:
		return nil

	case user.RoleCook:
		if actor.UserID != o.CookID {
			return ErrPermissionDenied
		}
		return nil

	case user.RoleBuyer:
		if actor.UserID != o.BuyerID {
			return ErrPermissionDenied
		}
		if target != order.StatusCancelled {
			return ErrPermissionDenied
		}
		if o.Status != order.StatusPending && o.Status != order.StatusConfirmed {
			return ErrPermissionDenied
		}
		b, err := s.batchRepo.GetByID(ctx, o.BatchID)
		if err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		if !time.Now().Before(b.CutoffDate) {
			return ErrCutoffPassed
		}
		return nil

	default:
		return ErrPermissionDenied
	}
}

const pickupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789" // 去掉易混淆字符

// issuePickupCode 生成并写入取餐码，撞码时有界重试
func (s *LifecycleService) issuePickupCode(ctx context.Context, o *order.Order) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := randomPickupCode(6)
		if err != nil {
			return "", err
		}
		if existing, err := s.orderRepo.GetByPickupCode(ctx, code); err == nil && existing != nil {
			continue // 撞码，换一个
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		if err := s.orderRepo.SetPickupCode(ctx, o.ID, code); err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("pickup code space exhausted after retries")
}

func randomPickupCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = pickupCodeAlphabet[int(buf[i])%len(pickupCodeAlphabet)]
	}
	return string(buf), nil
}

func (s *LifecycleService) notify(ctx context.Context, o *order.Order, from, to order.Status) {
	if s.notifier == nil {
		return
	}
	ev := &TransitionEvent{
		OrderID: o.ID,
		BatchID: o.BatchID,
		BuyerID: o.BuyerID,
		CookID:  o.CookID,
		From:    from,
		To:      to,
		At:      time.Now(),
	}
	if err := s.notifier.NotifyTransition(ctx, ev); err != nil {
		GetMonitor().RecordMQError()
		zap.L().Warn("transition notification failed",
			zap.String("order_id", o.ID), zap.String("to", string(to)), zap.Error(err))
	}
}
