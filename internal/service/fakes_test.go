package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/reservation"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// 内存版仓储，条件更新语义与 mysql 实现一致（互斥锁串行化），
// 用于并发压测与状态机测试。GetByID 一律返回副本，模拟快照读。

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*batch.Batch

	// forcedConflicts 让前 N 次 ReserveCapacity 直接未命中，模拟并发抢占
	forcedConflicts int
	// reserveErrs 依次弹出的注入错误
	reserveErrs []error
}

func newFakeBatchRepo(batches ...*batch.Batch) *fakeBatchRepo {
	r := &fakeBatchRepo{batches: make(map[string]*batch.Batch)}
	for _, b := range batches {
		cp := *b
		r.batches[b.ID] = &cp
	}
	return r
}

func (r *fakeBatchRepo) GetByID(ctx context.Context, id string) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) ListOpen(ctx context.Context, now time.Time) ([]*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*batch.Batch
	for _, b := range r.batches {
		if b.Active && !b.Status.Terminal() && now.Before(b.CutoffDate) {
			cp := *b
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *fakeBatchRepo) ListUnsettled(ctx context.Context) ([]*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*batch.Batch
	for _, b := range r.batches {
		if !b.Status.Terminal() {
			cp := *b
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *fakeBatchRepo) ListByCook(ctx context.Context, cookID string) ([]*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*batch.Batch
	for _, b := range r.batches {
		if b.CookID == cookID {
			cp := *b
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *fakeBatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) Update(ctx context.Context, b *batch.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) UpdateStatus(ctx context.Context, id string, status batch.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		b.Status = status
	}
	return nil
}

func (r *fakeBatchRepo) ReserveCapacity(ctx context.Context, id string, qty int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reserveErrs) > 0 {
		err := r.reserveErrs[0]
		r.reserveErrs = r.reserveErrs[1:]
		if err != nil {
			return false, err
		}
	}
	if r.forcedConflicts > 0 {
		r.forcedConflicts--
		return false, nil
	}
	b, ok := r.batches[id]
	if !ok {
		return false, nil
	}
	if !b.Active || b.Status.Terminal() || !now.Before(b.CutoffDate) {
		return false, nil
	}
	if b.CurrentOrders+qty > b.Capacity {
		return false, nil
	}
	b.CurrentOrders += qty
	return true, nil
}

func (r *fakeBatchRepo) ReleaseCapacity(ctx context.Context, id string, qty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		b.CurrentOrders -= qty
		if b.CurrentOrders < 0 {
			b.CurrentOrders = 0
		}
	}
	return nil
}

func (r *fakeBatchRepo) CorrectCapacity(ctx context.Context, id string, observed, actual int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok || b.CurrentOrders != observed {
		return false, nil
	}
	b.CurrentOrders = actual
	return true, nil
}

func (r *fakeBatchRepo) current(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[id].CurrentOrders
}

type fakeDishRepo struct {
	mu     sync.Mutex
	dishes map[string]*dish.Dish
}

func newFakeDishRepo(dishes ...*dish.Dish) *fakeDishRepo {
	r := &fakeDishRepo{dishes: make(map[string]*dish.Dish)}
	for _, d := range dishes {
		cp := *d
		r.dishes[d.ID] = &cp
	}
	return r
}

func (r *fakeDishRepo) GetByID(ctx context.Context, id string) (*dish.Dish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dishes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDishRepo) ListByCook(ctx context.Context, cookID string) ([]*dish.Dish, error) {
	return nil, nil
}
func (r *fakeDishRepo) ListActive(ctx context.Context) ([]*dish.Dish, error) { return nil, nil }
func (r *fakeDishRepo) ListByCuisine(ctx context.Context, c string) ([]*dish.Dish, error) {
	return nil, nil
}
func (r *fakeDishRepo) Create(ctx context.Context, d *dish.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.dishes[d.ID] = &cp
	return nil
}
func (r *fakeDishRepo) Update(ctx context.Context, d *dish.Dish) error {
	return r.Create(ctx, d)
}
func (r *fakeDishRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dishes[id]; ok {
		d.Active = false
	}
	return nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	// sumHook 在 SumActiveQuantity 取锁之前触发一次后自动清除，
	// 用来在对账的取数窗口里插入并发写
	sumHook func()
}

func newFakeOrderRepo(orders ...*order.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		cp := *o
		r.orders[o.ID] = &cp
	}
	return r
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) GetByPickupCode(ctx context.Context, code string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PickupCode == code && code != "" {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*order.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			cp := *o
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *fakeOrderRepo) ListByBatch(ctx context.Context, batchID string) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*order.Order
	for _, o := range r.orders {
		if o.BatchID == batchID {
			cp := *o
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *fakeOrderRepo) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *fakeOrderRepo) SetPickupCode(ctx context.Context, id, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.PickupCode = code
	}
	return nil
}

func (r *fakeOrderRepo) SetRating(ctx context.Context, id string, rating int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Rating != 0 {
		return false, nil
	}
	o.Rating = rating
	return true, nil
}

func (r *fakeOrderRepo) SumActiveQuantity(ctx context.Context, batchID string) (int64, error) {
	if h := r.sumHook; h != nil {
		r.sumHook = nil
		h()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, o := range r.orders {
		if o.BatchID == batchID && o.Status != order.StatusCancelled && o.Status != order.StatusRefunded {
			sum += o.Quantity
		}
	}
	return sum, nil
}

// fakeLedger 幂等台账。RecordIfAbsent 的检查和写入在同一把锁里完成，
// 与 mysql 实现（唯一索引 + 事务）语义一致。
type fakeLedger struct {
	mu     sync.Mutex
	byKey  map[string]*reservation.Reservation
	orders *fakeOrderRepo
}

func newFakeLedger(orders *fakeOrderRepo) *fakeLedger {
	return &fakeLedger{byKey: make(map[string]*reservation.Reservation), orders: orders}
}

func (l *fakeLedger) GetByKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.byKey[key]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (l *fakeLedger) RecordIfAbsent(ctx context.Context, key string, o *order.Order) (*order.Order, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.byKey[key]; ok {
		prior, err := l.orders.GetByID(ctx, rec.OrderID)
		if err != nil {
			return nil, false, err
		}
		return prior, false, nil
	}
	if err := l.orders.Create(ctx, o); err != nil {
		return nil, false, err
	}
	l.byKey[key] = &reservation.Reservation{
		IdempotencyKey: key,
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
	}
	return o, true, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserRepo(users ...*user.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*user.User)}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) ListAll(ctx context.Context) ([]*user.User, error) { return nil, nil }

func (r *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Update(ctx context.Context, u *user.User) error {
	return r.Create(ctx, u)
}

func (r *fakeUserRepo) RecordCompletedOrder(ctx context.Context, cookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[cookID]; ok {
		u.TotalOrders++
	}
	return nil
}

func (r *fakeUserRepo) ApplyRating(ctx context.Context, cookID string, rating int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[cookID]; ok {
		u.RatingSum += int64(rating)
		u.RatingCount++
	}
	return nil
}

// fakeNotifier 记录收到的事件，可注入错误验证尽力而为语义
type fakeNotifier struct {
	mu     sync.Mutex
	events []*TransitionEvent
	err    error
}

func (n *fakeNotifier) NotifyTransition(ctx context.Context, ev *TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// redisStub 进程内 Redis 替身，基于 radix.Stub，覆盖建议性计数器
// 用到的命令子集。缺失的键按 Redis 语义当 0 处理。
type redisStub struct {
	mu    sync.Mutex
	store map[string]string
}

func newRedisStub() (*redisStub, radix.Conn) {
	s := &redisStub{store: make(map[string]string)}
	return s, radix.Stub("tcp", "127.0.0.1:6379", s.handle)
}

func (s *redisStub) handle(args []string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch strings.ToUpper(args[0]) {
	case "GET":
		v, ok := s.store[args[1]]
		if !ok {
			return nil
		}
		return v
	case "SET":
		s.store[args[1]] = args[2]
		return "OK"
	case "SETEX":
		s.store[args[1]] = args[3]
		return "OK"
	case "SETNX":
		if _, ok := s.store[args[1]]; ok {
			return 0
		}
		s.store[args[1]] = args[2]
		return 1
	case "DEL":
		if _, ok := s.store[args[1]]; ok {
			delete(s.store, args[1])
			return 1
		}
		return 0
	case "INCRBY", "DECRBY":
		n, _ := strconv.ParseInt(args[2], 10, 64)
		if strings.ToUpper(args[0]) == "DECRBY" {
			n = -n
		}
		v, _ := strconv.ParseInt(s.store[args[1]], 10, 64)
		v += n
		s.store[args[1]] = strconv.FormatInt(v, 10)
		return v
	}
	return nil
}

func (s *redisStub) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[key]
}

func (s *redisStub) set(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = val
}
