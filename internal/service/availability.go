package service

import (
	"time"

	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
)

// CanReserve 判断批次当前能否再接 qty 份订单。
// 纯函数，只看传入的快照，不产生任何副作用；
// 规则按顺序执行：批次可用 → 未截单 → 份数合法 → 产能足够。
// 最终裁决权在仓储层的条件更新，这里的结论只对快照负责。
func CanReserve(b *batch.Batch, qty int64, now time.Time) error {
	if b == nil || !b.Active || b.Status.Terminal() {
		return ErrBatchUnavailable
	}
	if !now.Before(b.CutoffDate) {
		return ErrCutoffPassed
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if b.CurrentOrders+qty > b.Capacity {
		return ErrCapacityExceeded
	}
	return nil
}
