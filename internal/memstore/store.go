// Package memstore is an in-process orders.Store. Transactions are fully
// serialized: Begin takes the store mutex and Commit or Rollback gives it back,
// and each transaction works on its own copy of the data until Commit swaps it in.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

var errTxDone = errors.New("memstore: transaction already finished")

type resKey struct {
	productID int64
	orderID   string
}

type state struct {
	accounts     map[string]int64
	products     map[int64]orders.Product
	nextProduct  int64
	orders       map[string]orders.Order
	orderSeq     map[string]int
	nextOrderSeq int
	reservations map[resKey]orders.Reservation
}

func newState() *state {
	return &state{
		accounts:     map[string]int64{},
		products:     map[int64]orders.Product{},
		orders:       map[string]orders.Order{},
		orderSeq:     map[string]int{},
		reservations: map[resKey]orders.Reservation{},
	}
}

// clone copies the maps. Order items are never mutated after insert, so the
// slices are shared.
func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]int64, len(s.accounts)),
		products:     make(map[int64]orders.Product, len(s.products)),
		nextProduct:  s.nextProduct,
		orders:       make(map[string]orders.Order, len(s.orders)),
		orderSeq:     make(map[string]int, len(s.orderSeq)),
		nextOrderSeq: s.nextOrderSeq,
		reservations: make(map[resKey]orders.Reservation, len(s.reservations)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderSeq {
		c.orderSeq[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex // held for the lifetime of a transaction
	state *state

	fmu      sync.Mutex
	failures map[string]error
}

func New() *Store {
	return &Store{state: newState(), failures: map[string]error{}}
}

// FailOn makes every call to the named Tx method (e.g. "InsertReservation",
// "Commit") return err until ClearFailures.
func (s *Store) FailOn(method string, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.failures[method] = err
}

func (s *Store) ClearFailures() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.failures = map[string]error{}
}

func (s *Store) injected(method string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return s.failures[method]
}

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.injected("Begin"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{s: s, work: s.state.clone()}, nil
}

// view runs fn against committed data while holding the store lock.
func (s *Store) view(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

func (s *Store) update(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// PutAccount creates or overwrites an account balance.
func (s *Store) PutAccount(username string, balanceCents int64) {
	s.update(func(st *state) { st.accounts[username] = balanceCents })
}

// PutProduct stores p, assigning the next id when p.ID is zero.
func (s *Store) PutProduct(p orders.Product) orders.Product {
	s.update(func(st *state) {
		if p.ID == 0 {
			st.nextProduct++
			p.ID = st.nextProduct
		} else if p.ID > st.nextProduct {
			st.nextProduct = p.ID
		}
		st.products[p.ID] = p
	})
	return p
}

func (s *Store) Balance(username string) (int64, bool) {
	var (
		b  int64
		ok bool
	)
	s.view(func(st *state) { b, ok = st.accounts[username] })
	return b, ok
}

func (s *Store) Product(id int64) (orders.Product, bool) {
	var (
		p  orders.Product
		ok bool
	)
	s.view(func(st *state) { p, ok = st.products[id] })
	return p, ok
}

func (s *Store) Order(id string) (orders.Order, bool) {
	var (
		o  orders.Order
		ok bool
	)
	s.view(func(st *state) { o, ok = st.orders[id] })
	return o, ok
}

func (s *Store) OrderCount() int {
	var n int
	s.view(func(st *state) { n = len(st.orders) })
	return n
}

// Reservations returns the active reservations of one order, by product id.
func (s *Store) Reservations(orderID string) []orders.Reservation {
	var out []orders.Reservation
	s.view(func(st *state) { out = st.reservationsFor(orderID) })
	return out
}

func (s *Store) ReservationCount() int {
	var n int
	s.view(func(st *state) { n = len(st.reservations) })
	return n
}

func (st *state) reservationsFor(orderID string) []orders.Reservation {
	var out []orders.Reservation
	for k, r := range st.reservations {
		if k.orderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

type tx struct {
	s    *Store
	work *state
	done bool
}

func (t *tx) check(method string) error {
	if t.done {
		return errTxDone
	}
	return t.s.injected(method)
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.s.injected("Commit"); err != nil {
		t.finish()
		return err
	}
	t.s.state = t.work
	t.finish()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.work = nil
	t.s.mu.Unlock()
}

func (t *tx) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	if err := t.check("GetProduct"); err != nil {
		return orders.Product{}, err
	}
	p, ok := t.work.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (t *tx) LockProduct(ctx context.Context, id int64) (orders.Product, error) {
	if err := t.check("LockProduct"); err != nil {
		return orders.Product{}, err
	}
	return t.GetProduct(ctx, id)
}

func (t *tx) ListProducts(ctx context.Context) ([]orders.Product, error) {
	if err := t.check("ListProducts"); err != nil {
		return nil, err
	}
	out := make([]orders.Product, 0, len(t.work.products))
	for _, p := range t.work.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	if err := t.check("DecrementStock"); err != nil {
		return false, err
	}
	p, ok := t.work.products[id]
	if !ok {
		return false, orders.ErrProductNotFound
	}
	if p.Quantity < qty {
		return false, nil
	}
	p.Quantity -= qty
	t.work.products[id] = p
	return true, nil
}

func (t *tx) LockedQuantity(ctx context.Context, productID int64) (int, error) {
	if err := t.check("LockedQuantity"); err != nil {
		return 0, err
	}
	n := 0
	for k, r := range t.work.reservations {
		if k.productID == productID {
			n += r.Qty
		}
	}
	return n, nil
}

func (t *tx) InsertReservation(ctx context.Context, r orders.Reservation) error {
	if err := t.check("InsertReservation"); err != nil {
		return err
	}
	k := resKey{r.ProductID, r.OrderID}
	if _, dup := t.work.reservations[k]; dup {
		return errors.New("memstore: duplicate reservation")
	}
	t.work.reservations[k] = r
	return nil
}

func (t *tx) DeleteReservation(ctx context.Context, productID int64, orderID string) (bool, error) {
	if err := t.check("DeleteReservation"); err != nil {
		return false, err
	}
	k := resKey{productID, orderID}
	if _, ok := t.work.reservations[k]; !ok {
		return false, nil
	}
	delete(t.work.reservations, k)
	return true, nil
}

func (t *tx) ListReservations(ctx context.Context, orderID string) ([]orders.Reservation, error) {
	if err := t.check("ListReservations"); err != nil {
		return nil, err
	}
	return t.work.reservationsFor(orderID), nil
}

func (t *tx) BalanceForUpdate(ctx context.Context, username string) (int64, error) {
	if err := t.check("BalanceForUpdate"); err != nil {
		return 0, err
	}
	b, ok := t.work.accounts[username]
	if !ok {
		return 0, orders.ErrAccountNotFound
	}
	return b, nil
}

func (t *tx) AdjustBalance(ctx context.Context, username string, delta int64) error {
	if err := t.check("AdjustBalance"); err != nil {
		return err
	}
	b, ok := t.work.accounts[username]
	if !ok {
		return orders.ErrAccountNotFound
	}
	if b+delta < 0 {
		return orders.ErrNegativeBalance
	}
	t.work.accounts[username] = b + delta
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) error {
	if err := t.check("InsertOrder"); err != nil {
		return err
	}
	if _, dup := t.work.orders[o.ID]; dup {
		return errors.New("memstore: duplicate order id")
	}
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	t.work.orders[o.ID] = o
	t.work.nextOrderSeq++
	t.work.orderSeq[o.ID] = t.work.nextOrderSeq
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	if err := t.check("GetOrder"); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.work.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error) {
	if err := t.check("GetOrderForUpdate"); err != nil {
		return orders.Order{}, err
	}
	return t.GetOrder(ctx, id)
}

func (t *tx) SetOrderStatus(ctx context.Context, id string, status orders.Status, at time.Time) error {
	if err := t.check("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.work.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	t.work.orders[id] = o
	return nil
}

func (t *tx) ListOrdersByBuyer(ctx context.Context, buyer string) ([]orders.Order, error) {
	if err := t.check("ListOrdersByBuyer"); err != nil {
		return nil, err
	}
	var out []orders.Order
	for _, o := range t.work.orders {
		if o.Buyer == buyer {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return t.work.orderSeq[out[i].ID] > t.work.orderSeq[out[j].ID]
	})
	return out, nil
}

func (t *tx) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]orders.PendingOrder, error) {
	if err := t.check("ListPendingBefore"); err != nil {
		return nil, err
	}
	var out []orders.PendingOrder
	for _, o := range t.work.orders {
		if o.Status == orders.StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, orders.PendingOrder{ID: o.ID, Buyer: o.Buyer, CreatedAt: o.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
