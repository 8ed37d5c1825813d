package service

import "errors"

// 业务错误一律用 sentinel，调用方通过 errors.Is 分支，
// HTTP 层据此映射状态码。业务规则失败直接上报，绝不内部重试；
// 只有 ErrPersistenceConflict / ErrPersistenceTimeout 允许在
// 准入引擎的尝试次数内重试。
var (
	// ErrInvalidQuantity 份数必须是正整数
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrBatchUnavailable 批次下线、取消或已完成，不再接单
	ErrBatchUnavailable = errors.New("batch is not accepting orders")
	// ErrCutoffPassed 已过截单时间，即使还有余量也不再接单
	ErrCutoffPassed = errors.New("order cutoff has passed")
	// ErrCapacityExceeded 产能不足（也是重试耗尽后的统一出口）
	ErrCapacityExceeded = errors.New("batch capacity exceeded")
	// ErrInvalidTransition 非法的订单状态迁移
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrPermissionDenied 当前身份无权执行该操作
	ErrPermissionDenied = errors.New("actor is not allowed to perform this operation")
	// ErrPersistenceConflict 条件更新未命中，可在次数内重试
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrPersistenceTimeout 持久化往返超时，视为可重试失败
	ErrPersistenceTimeout = errors.New("persistence timeout")
)

// Retryable 判断错误是否属于准入引擎可重试的一类
func Retryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict) || errors.Is(err, ErrPersistenceTimeout)
}
