package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutAndPay_SingleLine(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, int64(20), o.TotalCents)
	assert.Equal(t, f.clock.Now(), o.CreatedAt)
	require.Len(t, f.st.Reservations(o.ID), 1)
	assert.Equal(t, 1, f.st.Reservations(o.ID)[0].Qty)

	_, avail, err := (&orders.StoreCatalog{Store: f.st}).Available(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, avail)
	assert.Equal(t, 5, f.stock(t, p.ID), "reserving must not touch owned stock")

	paid, err := f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, paid.Status)

	assert.Equal(t, int64(80), f.balance(t, "buyer"))
	assert.Equal(t, int64(20), f.balance(t, "seller"))
	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.Empty(t, f.st.Reservations(o.ID))

	stored, err := f.m.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, stored.Status)
}

func TestCreateOrder_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 1000)
	f.st.PutAccount("s1", 0)
	f.st.PutAccount("s2", 0)
	a := f.product("s1", 10, 5)
	b := f.product("s2", 10, 5)
	last := f.product("s2", 10, 1)
	ctx := context.Background()

	_, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{
		{ProductID: a.ID, Qty: 2},
		{ProductID: b.ID, Qty: 3},
		{ProductID: last.ID, Qty: 2},
	})

	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, last.ID, se.ProductID)
	assert.Equal(t, 2, se.Requested)
	assert.Equal(t, 1, se.Available)

	assert.Zero(t, f.st.OrderCount())
	assert.Zero(t, f.st.ReservationCount())
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
	assert.Equal(t, 1, f.stock(t, last.ID))
	assert.Empty(t, f.pub.Events(), "nothing committed, nothing published")
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	f.st.FailOn("Begin", errors.New("store must not be touched"))

	_, err := f.m.CreateOrder(context.Background(), "buyer", nil)
	assert.ErrorIs(t, err, orders.ErrEmptyCart)

	_, err = f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{{ProductID: 1, Qty: 0}})
	assert.ErrorIs(t, err, orders.ErrInvalidQuantity)
}

func TestCreateOrder_MergesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 7, 10)

	o, err := f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{
		{ProductID: p.ID, Qty: 2},
		{ProductID: p.ID, Qty: 3},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Qty)
	assert.Equal(t, int64(35), o.TotalCents)
}

func TestCreateOrder_RepeatedLinesMustNotOverflow(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 7, 10)

	_, err := f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{
		{ProductID: p.ID, Qty: 1},
		{ProductID: p.ID, Qty: math.MaxInt},
	})
	assert.ErrorIs(t, err, orders.ErrInvalidQuantity)
	assert.Zero(t, f.st.OrderCount())
	assert.Zero(t, f.st.ReservationCount())
}

func TestCreateOrder_LinesInAscendingProductOrder(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	a := f.product("seller", 1, 10)
	b := f.product("seller", 2, 10)
	c := f.product("seller", 3, 10)

	o, err := f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{
		{ProductID: c.ID, Qty: 1},
		{ProductID: a.ID, Qty: 1},
		{ProductID: b.ID, Qty: 1},
		{ProductID: a.ID, Qty: 2},
	})
	require.NoError(t, err)

	var ids []int64
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids)
	assert.Equal(t, 3, o.Items[0].Qty)
}

func TestCreateOrder_OppositeCartOrdersBothSettle(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("s1", 0)
	f.st.PutAccount("s2", 0)
	a := f.product("s1", 10, 100)
	b := f.product("s2", 10, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		f.st.PutAccount(buyer, 100)
		items := []orders.CartItem{{ProductID: a.ID, Qty: 1}, {ProductID: b.ID, Qty: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.m.CreateOrder(ctx, buyer, items)
			if err != nil {
				errs <- err
				return
			}
			_, err = f.m.PayOrder(ctx, o.ID, buyer)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 80, f.stock(t, a.ID))
	assert.Equal(t, 80, f.stock(t, b.ID))
	assert.Equal(t, int64(200), f.balance(t, "s1"))
	assert.Equal(t, int64(200), f.balance(t, "s2"))
}

func TestCreateOrder_UnknownProductRollsBack(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 7, 10)

	_, err := f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{
		{ProductID: p.ID, Qty: 1},
		{ProductID: 999, Qty: 1},
	})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
	assert.Zero(t, f.st.OrderCount())
	assert.Zero(t, f.st.ReservationCount())
}

func TestCreateOrder_StoreFailureIsOperationFailed(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	a := f.product("seller", 5, 10)
	b := f.product("seller", 5, 10)
	boom := errors.New("connection reset")
	f.st.FailOn("Commit", boom)

	_, err := f.m.CreateOrder(context.Background(), "buyer", []orders.CartItem{
		{ProductID: a.ID, Qty: 1},
		{ProductID: b.ID, Qty: 1},
	})

	assert.ErrorIs(t, err, orders.ErrOrderOperationFailed)
	assert.ErrorIs(t, err, boom)
	var oe *orders.OpError
	assert.ErrorAs(t, err, &oe)
	assert.Zero(t, f.st.OrderCount())
	assert.Zero(t, f.st.ReservationCount())
}

func TestPayOrder_SettlementBalancesAcrossSellers(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 10_000)
	f.st.PutAccount("s1", 500)
	f.st.PutAccount("s2", 0)
	a := f.st.PutProduct(orders.Product{Seller: "s1", Name: "book", Category: orders.CategoryBook, PriceCents: 1999, DiscountPercent: 15, Quantity: 10})
	b := f.product("s2", 250, 10)
	c := f.product("s1", 99, 10)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{
		{ProductID: a.ID, Qty: 2},
		{ProductID: b.ID, Qty: 3},
		{ProductID: c.ID, Qty: 4},
	})
	require.NoError(t, err)
	// 1999 * 0.85 = 1699.15 -> 1699
	assert.Equal(t, int64(2*1699+3*250+4*99), o.TotalCents)

	before := map[string]int64{"buyer": f.balance(t, "buyer"), "s1": f.balance(t, "s1"), "s2": f.balance(t, "s2")}
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)

	debit := before["buyer"] - f.balance(t, "buyer")
	credits := (f.balance(t, "s1") - before["s1"]) + (f.balance(t, "s2") - before["s2"])
	assert.Equal(t, o.TotalCents, debit)
	assert.Equal(t, debit, credits)
	assert.Equal(t, int64(2*1699+4*99), f.balance(t, "s1")-before["s1"])

	assert.Equal(t, 8, f.stock(t, a.ID))
	assert.Equal(t, 7, f.stock(t, b.ID))
	assert.Equal(t, 6, f.stock(t, c.ID))
	assert.Zero(t, f.st.ReservationCount())
}

func TestPayOrder_InsufficientBalanceLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 10)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	var be *orders.BalanceError
	require.ErrorAs(t, err, &be)
	assert.ErrorIs(t, err, orders.ErrInsufficientBalance)
	assert.Equal(t, int64(10), be.Shortfall())

	assert.Equal(t, int64(10), f.balance(t, "buyer"))
	assert.Equal(t, int64(0), f.balance(t, "seller"))
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Len(t, f.st.Reservations(o.ID), 1)
	stored, _ := f.st.Order(o.ID)
	assert.Equal(t, orders.StatusPending, stored.Status)

	// topped up, the same order can still be paid
	f.st.PutAccount("buyer", 25)
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.balance(t, "buyer"))
}

func TestPayOrder_TwiceChargesOnce(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 2}})
	require.NoError(t, err)

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")

	var se *orders.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, orders.StatusPaid, se.Status)
	assert.Equal(t, int64(60), f.balance(t, "buyer"))
	assert.Equal(t, int64(40), f.balance(t, "seller"))
	assert.Equal(t, 3, f.stock(t, p.ID))

	_, err = f.m.CancelOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrInvalidOrderState)
}

func TestCancelOrder_ReleasesWithoutTouchingStockOrBalances(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	a := f.product("seller", 20, 5)
	b := f.product("seller", 30, 2)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: a.ID, Qty: 3}, {ProductID: b.ID, Qty: 2}})
	require.NoError(t, err)

	cancelled, err := f.m.CancelOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))
	assert.Empty(t, f.st.Reservations(o.ID))
	assert.Equal(t, int64(100), f.balance(t, "buyer"))
	assert.Equal(t, int64(0), f.balance(t, "seller"))

	_, err = f.m.CancelOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrInvalidOrderState)
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrInvalidOrderState)
	assert.Equal(t, int64(100), f.balance(t, "buyer"))
}

func TestPayAndCancel_Guards(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)

	_, err = f.m.PayOrder(ctx, "missing", "buyer")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	_, err = f.m.PayOrder(ctx, o.ID, "mallory")
	assert.ErrorIs(t, err, orders.ErrNotOwner)
	_, err = f.m.CancelOrder(ctx, o.ID, "mallory")
	assert.ErrorIs(t, err, orders.ErrNotOwner)
	_, err = f.m.CancelOrder(ctx, o.ID, "")
	assert.ErrorIs(t, err, orders.ErrNotOwner)
	_, err = f.m.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	assert.Len(t, f.st.Reservations(o.ID), 1)
}

func TestPayOrder_StockInconsistencyRollsBack(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	a := f.product("seller", 10, 5)
	b := f.product("seller", 10, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: a.ID, Qty: 1}, {ProductID: b.ID, Qty: 3}})
	require.NoError(t, err)

	// owned stock shrinks behind the reservation's back
	b.Quantity = 2
	f.st.PutProduct(b)

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	var ie *orders.InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, orders.ErrStockInconsistency)
	assert.Equal(t, b.ID, ie.ProductID)
	assert.Equal(t, 2, ie.Owned)

	assert.Equal(t, int64(100), f.balance(t, "buyer"))
	assert.Equal(t, int64(0), f.balance(t, "seller"))
	assert.Equal(t, 5, f.stock(t, a.ID), "first line's decrement must be rolled back")
	assert.Len(t, f.st.Reservations(o.ID), 2)
	stored, _ := f.st.Order(o.ID)
	assert.Equal(t, orders.StatusPending, stored.Status)
}

func TestPayOrder_StoreFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)

	f.st.FailOn("SetOrderStatus", errors.New("disk full"))
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrOrderOperationFailed)

	assert.Equal(t, int64(100), f.balance(t, "buyer"))
	assert.Equal(t, int64(0), f.balance(t, "seller"))
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Len(t, f.st.Reservations(o.ID), 1)

	f.st.ClearFailures()
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	assert.NoError(t, err, "a retry after a failed attempt is safe")
	assert.Equal(t, int64(80), f.balance(t, "buyer"))
}

func TestPayOrder_MissingSellerAccountRollsBack(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	p := f.product("ghost", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrAccountNotFound)
	assert.Equal(t, int64(100), f.balance(t, "buyer"))
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestOrderTotal_FrozenAtCreation(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 2}})
	require.NoError(t, err)

	p.PriceCents = 45
	f.st.PutProduct(p)

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(60), f.balance(t, "buyer"))
	assert.Equal(t, int64(40), f.balance(t, "seller"))
}

func TestCreateOrder_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 1)
	ctx := context.Background()

	const buyers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     []orders.Order
		lostErr []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lostErr = append(lostErr, err)
				return
			}
			won = append(won, o)
		}(i)
	}
	wg.Wait()

	require.Len(t, won, 1)
	require.Len(t, lostErr, buyers-1)
	for _, err := range lostErr {
		assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	}
	assert.Equal(t, 1, f.st.OrderCount())
	assert.Equal(t, 1, f.st.ReservationCount())
	assert.Len(t, f.st.Reservations(won[0].ID), 1)
}

func TestFailOrder(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()
	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 2}})
	require.NoError(t, err)

	failed, err := f.m.FailOrder(ctx, o.ID, "seller closed shop")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, failed.Status)
	assert.Empty(t, f.st.Reservations(o.ID))
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, orders.ErrInvalidOrderState)

	evs := f.pub.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, orders.TopicOrderFailed, last.Topic)
	payload := decode[orders.OrderClosedPayload](t, last.Env.Payload)
	assert.Equal(t, "seller closed shop", payload.Reason)
	assert.Equal(t, orders.StatusFailed, payload.FinalStatus)
}

func TestGetUserOrders_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 1, 100)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		o, err := f.m.CreateOrder(ctx, "alice", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
		require.NoError(t, err)
		ids = append(ids, o.ID)
		f.clock.Advance(time.Minute)
	}
	_, err := f.m.CreateOrder(ctx, "bob", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)

	got, err := f.m.GetUserOrders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Len(t, got[0].Items, 1)

	none, err := f.m.GetUserOrders(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLifecycle_PublishesEventsAndUpdatesCache(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 100)
	f.st.PutAccount("s1", 0)
	f.st.PutAccount("s2", 0)
	a := f.product("s1", 10, 5)
	b := f.product("s2", 15, 5)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: a.ID, Qty: 1}, {ProductID: b.ID, Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, f.cache.Get(o.ID))
	_, err = f.m.PayOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, f.cache.Get(o.ID))

	evs := f.pub.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, orders.TopicOrderCreated, evs[0].Topic)
	assert.Equal(t, orders.EventOrderCreated, evs[0].Env.EventType)
	assert.Equal(t, o.ID, evs[0].Key)
	assert.Equal(t, "order-test", evs[0].Env.Producer)

	assert.Equal(t, orders.TopicOrderPaid, evs[1].Topic)
	paid := decode[orders.OrderPaidPayload](t, evs[1].Env.Payload)
	assert.Equal(t, int64(40), paid.TotalCents)
	assert.Equal(t, []orders.SellerCredit{{Seller: "s1", AmountCents: 10}, {Seller: "s2", AmountCents: 30}}, paid.Credits)
}

func TestManager_Metrics(t *testing.T) {
	f := newFixture(t)
	f.st.PutAccount("buyer", 5)
	f.st.PutAccount("seller", 0)
	p := f.product("seller", 20, 5)
	ctx := context.Background()

	o, err := f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)
	_, _ = f.m.PayOrder(ctx, o.ID, "buyer")
	_, _ = f.m.CreateOrder(ctx, "buyer", []orders.CartItem{{ProductID: p.ID, Qty: 9}})

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ops.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ops.WithLabelValues("create", "insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ops.WithLabelValues("pay", "insufficient_balance")))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
