package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	radix "github.com/mediocregopher/radix/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/reservation"
)

const (
	// redisBatchCapacityKey 批次剩余产能的建议性计数器（batchID）。
	// 只用于热点批次的快速失败，权威数据永远在数据库行上。
	redisBatchCapacityKey = "yedeli:cap:%s"
)

// PlaceOrderInput 下单请求
type PlaceOrderInput struct {
	BatchID        string
	Quantity       int64
	IdempotencyKey string // 调用方提供，网络重试时复用同一个键
}

// AdmissionService 订单准入引擎。
// 产能占用表达为仓储层的单条条件更新，检查和写入在同一个
// 原子步骤里完成；条件未命中或持久化超时在次数内定时重试，
// 耗尽后统一按产能不足上报。
type AdmissionService struct {
	batchRepo batch.Repository
	dishRepo  dish.Repository
	orderRepo order.Repository
	ledger    reservation.Repository
	redis     radix.Client // 可为 nil，仅作建议性快速失败
	cfg       config.AdmissionConfig
}

// NewAdmissionService 创建准入引擎
func NewAdmissionService(
	batchRepo batch.Repository,
	dishRepo dish.Repository,
	orderRepo order.Repository,
	ledger reservation.Repository,
	redis radix.Client,
	cfg config.AdmissionConfig,
) *AdmissionService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &AdmissionService{
		batchRepo: batchRepo,
		dishRepo:  dishRepo,
		orderRepo: orderRepo,
		ledger:    ledger,
		redis:     redis,
		cfg:       cfg,
	}
}

// SyncBatchCapacity 将批次剩余产能同步到 Redis 建议性计数器
func (s *AdmissionService) SyncBatchCapacity(ctx context.Context, b *batch.Batch) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf(redisBatchCapacityKey, b.ID)
	return s.redis.Do(radix.FlatCmd(nil, "SET", key, b.Remaining()))
}

// PlaceOrder 下单：幂等检查、建议性预减、原子占用产能、落台账。
// 成功时批次计数器恰好增加一次 Quantity，失败时计数器不变。
func (s *AdmissionService) PlaceOrder(ctx context.Context, actor auth.Identity, in PlaceOrderInput) (*order.Order, error) {
	GetMonitor().RecordAdmissionRequest()

	if in.Quantity < 1 {
		GetMonitor().RecordAdmissionRejected()
		return nil, ErrInvalidQuantity
	}

	// 0. 幂等键命中直接返回先前的订单，不再占用产能
	if in.IdempotencyKey != "" {
		rec, err := s.ledger.GetByKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("ledger lookup: %w", err)
		}
		if rec != nil {
			prior, err := s.orderRepo.GetByID(ctx, rec.OrderID)
			if err != nil {
				return nil, fmt.Errorf("load prior order: %w", err)
			}
			return prior, nil
		}
	}

	// 1. Redis 建议性预减：热点批次在打到数据库之前快速失败。
	// 计数器只是参考值，放行的请求仍要过数据库的条件更新。
	gated, err := s.advisoryGate(ctx, in)
	if err != nil {
		GetMonitor().RecordAdmissionRejected()
		return nil, err
	}

	// 2. 有界重试的检查-提交循环
	var (
		result  *order.Order
		created bool
	)
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RetryBackoff):
			}
			if ctx.Err() != nil {
				err = fmt.Errorf("admission aborted: %w", ctx.Err())
				break
			}
		}

		result, created, err = s.tryAdmit(ctx, actor, in)
		if err == nil || !Retryable(err) {
			break
		}
		GetMonitor().RecordAdmissionConflict()
		zap.L().Debug("admission attempt lost the race, retrying",
			zap.String("batch_id", in.BatchID), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	if err != nil {
		if gated {
			// 没有真正占到产能，把建议性计数还回去
			key := fmt.Sprintf(redisBatchCapacityKey, in.BatchID)
			_ = s.redis.Do(radix.FlatCmd(nil, "INCRBY", key, in.Quantity))
		}
		GetMonitor().RecordAdmissionRejected()
		if Retryable(err) {
			// 重试耗尽：对调用方统一表现为产能不足
			return nil, ErrCapacityExceeded
		}
		return nil, err
	}

	if !created && gated {
		// 命中了别人先提交的同键订单，本次没有新占用
		key := fmt.Sprintf(redisBatchCapacityKey, in.BatchID)
		_ = s.redis.Do(radix.FlatCmd(nil, "INCRBY", key, in.Quantity))
	}
	GetMonitor().RecordAdmissionAdmitted()
	return result, nil
}

// advisoryGate 在 Redis 计数器上预占产能。返回 gated=true 表示本次
// 请求已经占位，之后的失败路径要负责把占位加回去。计数器不可用时
// 直接放行，产能裁决交给数据库的条件更新。
func (s *AdmissionService) advisoryGate(ctx context.Context, in PlaceOrderInput) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	key := fmt.Sprintf(redisBatchCapacityKey, in.BatchID)
	var left int64
	if err := s.redis.Do(radix.FlatCmd(&left, "DECRBY", key, in.Quantity)); err != nil {
		GetMonitor().RecordRedisError()
		zap.L().Warn("advisory capacity gate unavailable, falling through",
			zap.String("batch_id", in.BatchID), zap.Error(err))
		return false, nil
	}
	if left >= 0 {
		return true, nil
	}
	if left != -in.Quantity {
		// 真正的产能不足，把预占还回去
		_ = s.redis.Do(radix.FlatCmd(nil, "INCRBY", key, in.Quantity))
		return false, ErrCapacityExceeded
	}

	// 恰好减穿到 -Quantity：要么键根本不存在（Redis 清空过或建批时
	// 同步失败，DECRBY 会从 0 凭空减出负数），要么计数器早已停在 0。
	// 两种情况都以数据库快照重建计数器再试一次，不能让健康批次被
	// 一个凭空造出来的负数挡在门外。
	b, err := s.batchRepo.GetByID(ctx, in.BatchID)
	if err != nil {
		_ = s.redis.Do(radix.Cmd(nil, "DEL", key))
		return false, nil
	}
	zap.L().Warn("advisory capacity counter missing or stale, reseeding from database",
		zap.String("batch_id", in.BatchID), zap.Int64("remaining", b.Remaining()))
	if err := s.redis.Do(radix.FlatCmd(nil, "SET", key, b.Remaining())); err != nil {
		GetMonitor().RecordRedisError()
		return false, nil
	}
	if err := s.redis.Do(radix.FlatCmd(&left, "DECRBY", key, in.Quantity)); err != nil {
		GetMonitor().RecordRedisError()
		return false, nil
	}
	if left >= 0 {
		return true, nil
	}
	_ = s.redis.Do(radix.FlatCmd(nil, "INCRBY", key, in.Quantity))
	return false, ErrCapacityExceeded
}

// tryAdmit 一次完整的检查-提交尝试。
// created 为 false 表示命中了既有的同键订单，产能未被本次占用。
func (s *AdmissionService) tryAdmit(ctx context.Context, actor auth.Identity, in PlaceOrderInput) (*order.Order, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.commitTimeout())
	defer cancel()

	now := time.Now()

	b, err := s.batchRepo.GetByID(cctx, in.BatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrBatchUnavailable
		}
		return nil, false, persistenceErr("load batch", err)
	}

	// 快照预检：产生精确的失败原因；产能裁决以下面的条件更新为准
	if err := CanReserve(b, in.Quantity, now); err != nil {
		return nil, false, err
	}

	// 价格快照在批次读取之后、同一次尝试之内完成，不存在陈旧价格窗口
	d, err := s.dishRepo.GetByID(cctx, b.DishID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrBatchUnavailable
		}
		return nil, false, persistenceErr("load dish", err)
	}
	if !d.Active {
		return nil, false, ErrBatchUnavailable
	}

	ok, err := s.batchRepo.ReserveCapacity(cctx, b.ID, in.Quantity, now)
	if err != nil {
		return nil, false, persistenceErr("reserve capacity", err)
	}
	if !ok {
		// 条件更新未命中：大概率是并发抢占，下一轮重读快照再裁决
		return nil, false, ErrPersistenceConflict
	}

	unit := d.Price.Round(2)
	o := &order.Order{
		ID:         uuid.NewString(),
		BuyerID:    actor.UserID,
		BatchID:    b.ID,
		DishID:     d.ID,
		CookID:     b.CookID,
		Quantity:   in.Quantity,
		UnitPrice:  unit,
		TotalPrice: unit.Mul(decimal.NewFromInt(in.Quantity)).Round(2),
		Status:     order.StatusPending,
	}

	key := in.IdempotencyKey
	if key == "" {
		// 调用方没给幂等键时退化为订单自身 ID，台账仍然成立
		key = o.ID
	}
	result, created, err := s.ledger.RecordIfAbsent(cctx, key, o)
	if err != nil {
		// 订单没落库，补偿释放刚占用的产能；用后台 ctx，释放不能再被超时打断
		s.compensateRelease(b.ID, in.Quantity)
		return nil, false, persistenceErr("record order", err)
	}
	if !created {
		// 并发的同键请求先一步提交，释放本次占用并返回先前的订单
		s.compensateRelease(b.ID, in.Quantity)
		return result, false, nil
	}
	return result, true, nil
}

func (s *AdmissionService) compensateRelease(batchID string, qty int64) {
	rctx, cancel := context.WithTimeout(context.Background(), s.commitTimeout())
	defer cancel()
	if err := s.batchRepo.ReleaseCapacity(rctx, batchID, qty); err != nil {
		GetMonitor().RecordDBError()
		zap.L().Error("failed to release reserved capacity, reconciliation will fix the counter",
			zap.String("batch_id", batchID), zap.Int64("quantity", qty), zap.Error(err))
	}
	GetMonitor().RecordCapacityRelease()
}

// ReconcileBatch 以订单表为准校正批次计数器，返回校正后的占用量。
// 补偿释放失败或进程崩溃都可能让计数器偏大，对账把它拉回真实值。
// 写回走 CorrectCapacity 的条件更新：先记下计数器快照再求真实占用，
// 只有计数器仍等于快照时才改写；取数窗口里有并发下单就换一轮重来，
// 绝不把别人刚占到的产能覆盖掉。
func (s *AdmissionService) ReconcileBatch(ctx context.Context, batchID string) (int64, error) {
	const maxRounds = 3
	for round := 0; round < maxRounds; round++ {
		b, err := s.batchRepo.GetByID(ctx, batchID)
		if err != nil {
			return 0, fmt.Errorf("load batch: %w", err)
		}
		observed := b.CurrentOrders
		actual, err := s.orderRepo.SumActiveQuantity(ctx, batchID)
		if err != nil {
			return 0, fmt.Errorf("sum active orders: %w", err)
		}
		if observed == actual {
			s.syncAfterReconcile(ctx, b, actual)
			return actual, nil
		}
		zap.L().Warn("batch counter drift detected",
			zap.String("batch_id", batchID),
			zap.Int64("counter", observed),
			zap.Int64("actual", actual))
		ok, err := s.batchRepo.CorrectCapacity(ctx, batchID, observed, actual)
		if err != nil {
			GetMonitor().RecordDBError()
			return 0, fmt.Errorf("write corrected counter: %w", err)
		}
		if ok {
			s.syncAfterReconcile(ctx, b, actual)
			return actual, nil
		}
		zap.L().Debug("batch counter moved during reconcile, retrying",
			zap.String("batch_id", batchID), zap.Int("round", round+1))
	}
	return 0, fmt.Errorf("reconcile batch %s: counter kept moving, giving up until next cycle", batchID)
}

func (s *AdmissionService) syncAfterReconcile(ctx context.Context, b *batch.Batch, actual int64) {
	b.CurrentOrders = actual
	if err := s.SyncBatchCapacity(ctx, b); err != nil {
		GetMonitor().RecordRedisError()
		zap.L().Warn("failed to sync advisory capacity after reconcile",
			zap.String("batch_id", b.ID), zap.Error(err))
	}
}

func (s *AdmissionService) commitTimeout() time.Duration {
	if s.cfg.CommitTimeout <= 0 {
		return 3 * time.Second
	}
	return s.cfg.CommitTimeout
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrPersistenceTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
