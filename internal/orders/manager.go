package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/google/uuid"
)

// Manager drives orders from cart checkout to PAID, CANCELLED or FAILED.
// Every public operation is one store transaction; it holds no in-process
// locks, so cross-session safety comes entirely from the store.
type Manager struct {
	Store     Store
	Publisher Publisher   // optional
	Cache     StatusCache // optional
	Metrics   *metrics.OrderMetrics
	Log       *slog.Logger
	Service   string

	Now   func() time.Time
	NewID func() string
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Manager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Manager) log() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

func (m *Manager) publisher() Publisher {
	if m.Publisher != nil {
		return m.Publisher
	}
	return nopPublisher{}
}

// CreateOrder snapshots items into a PENDING order and reserves stock for
// every line, in item order. If any line cannot be reserved nothing persists:
// no order row, no reservation.
func (m *Manager) CreateOrder(ctx context.Context, buyer string, items []CartItem) (o Order, err error) {
	const op = "create"
	start := time.Now()
	defer func() { m.finish(op, start, o.ID, buyer, err) }()

	items, err = mergeLines(items)
	if err != nil {
		return Order{}, err
	}

	tx, err := m.Store.Begin(ctx)
	if err != nil {
		return Order{}, wrapOp("create order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := m.now()
	o = Order{
		ID:        m.newID(),
		Buyer:     buyer,
		Items:     make([]OrderItem, 0, len(items)),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range items {
		p, err := tx.GetProduct(ctx, it.ProductID)
		if err != nil {
			return Order{}, wrapOp("create order", err)
		}
		line := OrderItem{
			ProductID:      p.ID,
			Qty:            it.Qty,
			UnitPriceCents: p.UnitPrice(),
			Seller:         p.Seller,
		}
		o.Items = append(o.Items, line)
		o.TotalCents += line.Subtotal()
	}

	if err := tx.InsertOrder(ctx, o); err != nil {
		return Order{}, wrapOp("create order", err)
	}
	for _, it := range o.Items {
		if err := Lock(ctx, tx, it.ProductID, o.ID, it.Qty, now); err != nil {
			return Order{}, wrapOp("create order", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, wrapOp("create order", err)
	}

	m.committed(ctx, o, TopicOrderCreated, EventOrderCreated, OrderCreatedPayload{
		OrderID:    o.ID,
		Buyer:      o.Buyer,
		Items:      o.Items,
		TotalCents: o.TotalCents,
	})
	return o, nil
}

// PayOrder settles a PENDING order: the buyer is debited the frozen total,
// each line's seller is credited its subtotal, reserved stock becomes a
// permanent decrement and the order turns PAID. Any failure rolls the whole
// settlement back and the order stays PENDING.
func (m *Manager) PayOrder(ctx context.Context, orderID, username string) (o Order, err error) {
	const op = "pay"
	start := time.Now()
	defer func() { m.finish(op, start, orderID, username, err) }()

	tx, err := m.Store.Begin(ctx)
	if err != nil {
		return Order{}, wrapOp("pay order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err = loadPending(ctx, tx, orderID, username, true)
	if err != nil {
		return Order{}, wrapOp("pay order", err)
	}

	balance, err := tx.BalanceForUpdate(ctx, o.Buyer)
	if err != nil {
		return Order{}, wrapOp("pay order", err)
	}
	if balance < o.TotalCents {
		return Order{}, &BalanceError{Username: o.Buyer, Balance: balance, Required: o.TotalCents}
	}
	if err := tx.AdjustBalance(ctx, o.Buyer, -o.TotalCents); err != nil {
		return Order{}, wrapOp("pay order", err)
	}

	// lock order: products by ascending id, then sellers by name
	for _, it := range byProduct(o.Items) {
		ok, err := tx.DecrementStock(ctx, it.ProductID, it.Qty)
		if err != nil {
			return Order{}, wrapOp("pay order", err)
		}
		if !ok {
			ie := &InconsistencyError{ProductID: it.ProductID, Requested: it.Qty}
			if p, err := tx.GetProduct(ctx, it.ProductID); err == nil {
				ie.Owned = p.Quantity
			}
			m.log().Error("reserved stock missing at payment", "order_id", o.ID, "product_id", it.ProductID, "err", ie)
			return Order{}, ie
		}
		released, err := Unlock(ctx, tx, it.ProductID, o.ID)
		if err != nil {
			return Order{}, wrapOp("pay order", err)
		}
		if !released {
			m.log().Warn("no reservation to release at payment", "order_id", o.ID, "product_id", it.ProductID)
		}
	}
	credits := Credits(o.Items)
	for _, c := range slices.SortedFunc(slices.Values(credits), func(a, b SellerCredit) int { return strings.Compare(a.Seller, b.Seller) }) {
		if err := tx.AdjustBalance(ctx, c.Seller, c.AmountCents); err != nil {
			return Order{}, wrapOp("pay order", err)
		}
	}

	now := m.now()
	if err := tx.SetOrderStatus(ctx, o.ID, StatusPaid, now); err != nil {
		return Order{}, wrapOp("pay order", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, wrapOp("pay order", err)
	}
	o.Status, o.UpdatedAt = StatusPaid, now

	m.committed(ctx, o, TopicOrderPaid, EventOrderPaid, OrderPaidPayload{
		OrderID:    o.ID,
		Buyer:      o.Buyer,
		TotalCents: o.TotalCents,
		Credits:    credits,
	})
	return o, nil
}

// CancelOrder releases every reservation of a PENDING order without touching
// stock or balances, and marks it CANCELLED.
func (m *Manager) CancelOrder(ctx context.Context, orderID, username string) (Order, error) {
	return m.close(ctx, "cancel", orderID, username, true, StatusCancelled, "")
}

// FailOrder is the system-initiated way out of PENDING for an order that can
// never settle. It releases reservations like a cancel, without an owner check.
func (m *Manager) FailOrder(ctx context.Context, orderID, reason string) (Order, error) {
	return m.close(ctx, "fail", orderID, "system", false, StatusFailed, reason)
}

func (m *Manager) close(ctx context.Context, op, orderID, actor string, checkOwner bool, to Status, reason string) (o Order, err error) {
	start := time.Now()
	defer func() { m.finish(op, start, orderID, actor, err) }()

	tx, err := m.Store.Begin(ctx)
	if err != nil {
		return Order{}, wrapOp(op+" order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err = loadPending(ctx, tx, orderID, actor, checkOwner)
	if err != nil {
		return Order{}, wrapOp(op+" order", err)
	}

	res, err := tx.ListReservations(ctx, o.ID)
	if err != nil {
		return Order{}, wrapOp(op+" order", err)
	}
	for _, r := range res {
		if _, err := Unlock(ctx, tx, r.ProductID, o.ID); err != nil {
			return Order{}, wrapOp(op+" order", err)
		}
	}

	now := m.now()
	if err := tx.SetOrderStatus(ctx, o.ID, to, now); err != nil {
		return Order{}, wrapOp(op+" order", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, wrapOp(op+" order", err)
	}
	o.Status, o.UpdatedAt = to, now

	topic, event := TopicOrderCancelled, EventOrderCancelled
	if to == StatusFailed {
		topic, event = TopicOrderFailed, EventOrderFailed
	}
	m.committed(ctx, o, topic, event, OrderClosedPayload{
		OrderID:     o.ID,
		Buyer:       o.Buyer,
		FinalStatus: to,
		Reason:      reason,
	})
	return o, nil
}

func (m *Manager) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := readTx(ctx, m.Store, "get order", func(tx Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return o, err
}

// GetUserOrders lists the buyer's orders, newest first.
func (m *Manager) GetUserOrders(ctx context.Context, username string) ([]Order, error) {
	var out []Order
	err := readTx(ctx, m.Store, "list orders", func(tx Tx) error {
		var err error
		out, err = tx.ListOrdersByBuyer(ctx, username)
		return err
	})
	return out, err
}

// loadPending locks the order row and checks it can still leave PENDING.
func loadPending(ctx context.Context, tx Tx, orderID, username string, checkOwner bool) (Order, error) {
	o, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if checkOwner && o.Buyer != username {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotOwner, orderID)
	}
	if !CanTransition(o.Status, StatusPaid) {
		return Order{}, &StateError{OrderID: o.ID, Status: o.Status}
	}
	return o, nil
}

// mergeLines validates quantities, folds repeated products into one line and
// returns the lines in ascending product id. That is the order rows get
// locked in, by checkout and by every later transition.
func mergeLines(items []CartItem) ([]CartItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	idx := make(map[int64]int, len(items))
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("%w: product %d qty %d", ErrInvalidQuantity, it.ProductID, it.Qty)
		}
		if i, ok := idx[it.ProductID]; ok {
			if it.Qty > math.MaxInt-out[i].Qty {
				return nil, fmt.Errorf("%w: product %d total qty overflows", ErrInvalidQuantity, it.ProductID)
			}
			out[i].Qty += it.Qty
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b CartItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

func byProduct(items []OrderItem) []OrderItem {
	return slices.SortedFunc(slices.Values(items), func(a, b OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
}

func (m *Manager) committed(ctx context.Context, o Order, topic, eventType string, payload any) {
	m.log().Info("order transition", "order_id", o.ID, "buyer", o.Buyer, "status", o.Status, "total_cents", o.TotalCents)

	if m.Cache != nil {
		if err := m.Cache.SetStatus(ctx, o.ID, o.Status); err != nil {
			m.log().Warn("status cache update failed", "order_id", o.ID, "err", err)
		}
	}

	env, err := newEnvelope(eventType, m.Service, o.ID, payload, o.UpdatedAt)
	if err != nil {
		m.log().Error("encode event", "order_id", o.ID, "event", eventType, "err", err)
		return
	}
	m.publisher().Publish(topic, PartitionKey(o.ID), env)
}

func (m *Manager) finish(op string, start time.Time, orderID, actor string, err error) {
	m.Metrics.Observe(op, resultLabel(err), start)
	switch {
	case err == nil:
	case IsDomain(err):
		m.log().Warn("order operation rejected", "op", op, "order_id", orderID, "actor", actor, "err", err)
	default:
		m.log().Error("order operation failed", "op", op, "order_id", orderID, "actor", actor, "err", err)
	}
}

var resultLabels = []struct {
	err   error
	label string
}{
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrEmptyCart, "empty_cart"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInvalidOrderState, "invalid_state"},
	{ErrStockInconsistency, "stock_inconsistency"},
	{ErrOrderNotFound, "not_found"},
	{ErrNotOwner, "not_owner"},
	{ErrProductNotFound, "product_not_found"},
	{ErrAccountNotFound, "account_not_found"},
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range resultLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "failed"
}
