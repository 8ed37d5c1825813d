package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

var (
	cookActor   = auth.Identity{UserID: "cook-1", Role: user.RoleCook}
	buyerActor  = auth.Identity{UserID: "buyer-1", Role: user.RoleBuyer}
	systemActor = auth.Identity{UserID: "payment", Role: user.RoleSystem}
)

type lifecycleFixture struct {
	svc     *LifecycleService
	orders  *fakeOrderRepo
	batches *fakeBatchRepo
	users   *fakeUserRepo
	notif   *fakeNotifier
}

func newLifecycleFixture(status order.Status, qty, currentOrders int64) *lifecycleFixture {
	b := &batch.Batch{
		ID:            "batch-1",
		DishID:        "dish-1",
		CookID:        "cook-1",
		PickupDate:    time.Now().Add(6 * time.Hour),
		CutoffDate:    time.Now().Add(4 * time.Hour),
		Capacity:      20,
		CurrentOrders: currentOrders,
		Status:        batch.StatusScheduled,
		Active:        true,
	}
	o := &order.Order{
		ID:       "order-1",
		BuyerID:  "buyer-1",
		BatchID:  b.ID,
		DishID:   "dish-1",
		CookID:   "cook-1",
		Quantity: qty,
		Status:   status,
	}
	f := &lifecycleFixture{
		orders:  newFakeOrderRepo(o),
		batches: newFakeBatchRepo(b),
		users:   newFakeUserRepo(&user.User{ID: "cook-1", Username: "cook", Role: user.RoleCook}),
		notif:   &fakeNotifier{},
	}
	f.svc = NewLifecycleService(f.orders, f.batches, f.users, f.notif)
	return f
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    order.Status
		to      order.Status
		allowed bool
	}{
		{order.StatusPending, order.StatusConfirmed, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusPending, order.StatusRefunded, true},
		{order.StatusPending, order.StatusPreparing, false},
		{order.StatusPending, order.StatusCompleted, false},
		{order.StatusConfirmed, order.StatusPreparing, true},
		{order.StatusConfirmed, order.StatusCancelled, true},
		{order.StatusConfirmed, order.StatusCompleted, false},
		{order.StatusPreparing, order.StatusReady, true},
		{order.StatusPreparing, order.StatusRefunded, true},
		{order.StatusReady, order.StatusCompleted, true},
		{order.StatusReady, order.StatusCancelled, true},
		{order.StatusCompleted, order.StatusPending, false},
		{order.StatusCompleted, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusPending, false},
		{order.StatusCancelled, order.StatusConfirmed, false},
		{order.StatusRefunded, order.StatusPending, false},
	}

	for _, tt := range tests {
		if got := TransitionAllowed(tt.from, tt.to); got != tt.allowed {
			t.Errorf("TransitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTransitionIllegalLeavesOrderUnchanged(t *testing.T) {
	f := newLifecycleFixture(order.StatusCompleted, 1, 5)

	_, err := f.svc.Transition(context.Background(), cookActor, "order-1", order.StatusPending)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}

	o, _ := f.orders.GetByID(context.Background(), "order-1")
	if o.Status != order.StatusCompleted {
		t.Errorf("order status = %s, want completed (unchanged)", o.Status)
	}
	if f.notif.count() != 0 {
		t.Errorf("no notification expected for failed transition")
	}
}

func TestCancelReleasesCapacityExactlyOnce(t *testing.T) {
	// 规格例子：confirmed、qty=3、currentOrders=10 → 取消后 7
	f := newLifecycleFixture(order.StatusConfirmed, 3, 10)

	o, err := f.svc.Transition(context.Background(), cookActor, "order-1", order.StatusCancelled)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if o.Status != order.StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
	if got := f.batches.current("batch-1"); got != 7 {
		t.Errorf("CurrentOrders = %d, want 7", got)
	}

	// 再取消一次：终态不允许迁移，产能不会被二次释放
	_, err = f.svc.Transition(context.Background(), cookActor, "order-1", order.StatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel error = %v, want ErrInvalidTransition", err)
	}
	if got := f.batches.current("batch-1"); got != 7 {
		t.Errorf("CurrentOrders after double cancel = %d, want 7", got)
	}
}

func TestRefundReleasesCapacity(t *testing.T) {
	f := newLifecycleFixture(order.StatusPending, 2, 2)

	if _, err := f.svc.Transition(context.Background(), systemActor, "order-1", order.StatusRefunded); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got := f.batches.current("batch-1"); got != 0 {
		t.Errorf("CurrentOrders = %d, want 0", got)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	// 计数器被对账改小后，释放也不能把它减成负数
	f := newLifecycleFixture(order.StatusPending, 5, 2)

	if _, err := f.svc.Transition(context.Background(), systemActor, "order-1", order.StatusCancelled); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got := f.batches.current("batch-1"); got != 0 {
		t.Errorf("CurrentOrders = %d, want 0 (floored)", got)
	}
}

func TestConfirmIssuesPickupCode(t *testing.T) {
	f := newLifecycleFixture(order.StatusPending, 1, 1)

	o, err := f.svc.Transition(context.Background(), systemActor, "order-1", order.StatusConfirmed)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(o.PickupCode) != 6 {
		t.Fatalf("PickupCode = %q, want 6 chars", o.PickupCode)
	}
	for _, c := range o.PickupCode {
		if !strings.ContainsRune(pickupCodeAlphabet, c) {
			t.Errorf("PickupCode contains invalid char %q", c)
		}
	}

	stored, _ := f.orders.GetByID(context.Background(), "order-1")
	if stored.PickupCode != o.PickupCode {
		t.Errorf("stored code %q != returned code %q", stored.PickupCode, o.PickupCode)
	}
}

func TestCompleteUpdatesCookAggregates(t *testing.T) {
	f := newLifecycleFixture(order.StatusReady, 1, 1)

	if _, err := f.svc.Transition(context.Background(), cookActor, "order-1", order.StatusCompleted); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	cook, _ := f.users.GetByID(context.Background(), "cook-1")
	if cook.TotalOrders != 1 {
		t.Errorf("cook.TotalOrders = %d, want 1", cook.TotalOrders)
	}
	// 完成不释放产能：食物已经交付
	if got := f.batches.current("batch-1"); got != 1 {
		t.Errorf("CurrentOrders = %d, want 1", got)
	}
}

func TestFullLifecycleWalk(t *testing.T) {
	f := newLifecycleFixture(order.StatusPending, 2, 2)

	steps := []struct {
		actor  auth.Identity
		target order.Status
	}{
		{systemActor, order.StatusConfirmed},
		{cookActor, order.StatusPreparing},
		{cookActor, order.StatusReady},
		{cookActor, order.StatusCompleted},
	}
	for _, step := range steps {
		if _, err := f.svc.Transition(context.Background(), step.actor, "order-1", step.target); err != nil {
			t.Fatalf("Transition(%s) error = %v", step.target, err)
		}
	}

	o, _ := f.orders.GetByID(context.Background(), "order-1")
	if o.Status != order.StatusCompleted {
		t.Errorf("final status = %s, want completed", o.Status)
	}
	if f.notif.count() != len(steps) {
		t.Errorf("notifications = %d, want %d", f.notif.count(), len(steps))
	}
}

func TestBuyerCancelRules(t *testing.T) {
	t.Run("buyer cancels own pending order before cutoff", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusPending, 1, 1)
		if _, err := f.svc.Transition(context.Background(), buyerActor, "order-1", order.StatusCancelled); err != nil {
			t.Errorf("Transition() error = %v", err)
		}
	})

	t.Run("buyer cannot cancel after cutoff", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusPending, 1, 1)
		f.batches.batches["batch-1"].CutoffDate = time.Now().Add(-time.Minute)
		_, err := f.svc.Transition(context.Background(), buyerActor, "order-1", order.StatusCancelled)
		if !errors.Is(err, ErrCutoffPassed) {
			t.Errorf("Transition() error = %v, want ErrCutoffPassed", err)
		}
	})

	t.Run("buyer cannot confirm", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusPending, 1, 1)
		_, err := f.svc.Transition(context.Background(), buyerActor, "order-1", order.StatusConfirmed)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Transition() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("stranger cannot touch the order", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusPending, 1, 1)
		stranger := auth.Identity{UserID: "buyer-2", Role: user.RoleBuyer}
		_, err := f.svc.Transition(context.Background(), stranger, "order-1", order.StatusCancelled)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Transition() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("other cook cannot touch the order", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusPending, 1, 1)
		otherCook := auth.Identity{UserID: "cook-2", Role: user.RoleCook}
		_, err := f.svc.Transition(context.Background(), otherCook, "order-1", order.StatusConfirmed)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Transition() error = %v, want ErrPermissionDenied", err)
		}
	})
}

func TestNotifierFailureDoesNotBlockTransition(t *testing.T) {
	f := newLifecycleFixture(order.StatusPending, 1, 1)
	f.notif.err = errors.New("broker down")

	o, err := f.svc.Transition(context.Background(), systemActor, "order-1", order.StatusConfirmed)
	if err != nil {
		t.Fatalf("Transition() error = %v, notification failures must not block", err)
	}
	if o.Status != order.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", o.Status)
	}
}

func TestRateOrder(t *testing.T) {
	t.Run("rates completed order and feeds cook aggregate", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusCompleted, 1, 1)
		if err := f.svc.RateOrder(context.Background(), buyerActor, "order-1", 5); err != nil {
			t.Fatalf("RateOrder() error = %v", err)
		}
		cook, _ := f.users.GetByID(context.Background(), "cook-1")
		if cook.RatingCount != 1 || cook.RatingSum != 5 {
			t.Errorf("cook aggregates = sum %d count %d, want 5/1", cook.RatingSum, cook.RatingCount)
		}
		if got := cook.Rating(); got != 5.0 {
			t.Errorf("Rating() = %v, want 5.0", got)
		}
	})

	t.Run("second rating is ignored", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusCompleted, 1, 1)
		_ = f.svc.RateOrder(context.Background(), buyerActor, "order-1", 4)
		if err := f.svc.RateOrder(context.Background(), buyerActor, "order-1", 1); err != nil {
			t.Fatalf("repeat RateOrder() error = %v", err)
		}
		cook, _ := f.users.GetByID(context.Background(), "cook-1")
		if cook.RatingCount != 1 || cook.RatingSum != 4 {
			t.Errorf("cook aggregates = sum %d count %d, want 4/1", cook.RatingSum, cook.RatingCount)
		}
	})

	t.Run("cannot rate an unfinished order", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusReady, 1, 1)
		err := f.svc.RateOrder(context.Background(), buyerActor, "order-1", 5)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("RateOrder() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("concurrent submissions feed the aggregate once", func(t *testing.T) {
		// 评分写入是条件更新，两个同时提交的评分只有一个能命中
		// rating = 0 的行，厨师聚合不允许被累计两次
		f := newLifecycleFixture(order.StatusCompleted, 1, 1)

		var wg sync.WaitGroup
		for _, score := range []int{5, 4} {
			wg.Add(1)
			go func(sc int) {
				defer wg.Done()
				if err := f.svc.RateOrder(context.Background(), buyerActor, "order-1", sc); err != nil {
					t.Errorf("RateOrder(%d) error = %v", sc, err)
				}
			}(score)
		}
		wg.Wait()

		cook, _ := f.users.GetByID(context.Background(), "cook-1")
		if cook.RatingCount != 1 {
			t.Fatalf("RatingCount = %d, want exactly 1", cook.RatingCount)
		}
		o, _ := f.orders.GetByID(context.Background(), "order-1")
		if int64(o.Rating) != cook.RatingSum {
			t.Errorf("aggregate sum = %d, stored rating = %d, want equal", cook.RatingSum, o.Rating)
		}
	})

	t.Run("rejects out of range rating", func(t *testing.T) {
		f := newLifecycleFixture(order.StatusCompleted, 1, 1)
		if err := f.svc.RateOrder(context.Background(), buyerActor, "order-1", 6); err == nil {
			t.Error("RateOrder(6) succeeded, want error")
		}
	})
}

func TestCompleteByPickupCode(t *testing.T) {
	f := newLifecycleFixture(order.StatusPending, 1, 1)

	o, err := f.svc.Transition(context.Background(), systemActor, "order-1", order.StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm error = %v", err)
	}
	for _, target := range []order.Status{order.StatusPreparing, order.StatusReady} {
		if _, err := f.svc.Transition(context.Background(), cookActor, "order-1", target); err != nil {
			t.Fatalf("Transition(%s) error = %v", target, err)
		}
	}

	done, err := f.svc.CompleteByPickupCode(context.Background(), cookActor, o.PickupCode)
	if err != nil {
		t.Fatalf("CompleteByPickupCode() error = %v", err)
	}
	if done.Status != order.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
}
