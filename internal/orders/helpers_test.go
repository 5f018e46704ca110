package orders_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/prometheus/client_golang/prometheus"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	Topic string
	Key   string
	Env   orders.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic string, key []byte, env orders.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Topic: topic, Key: string(key), Env: env})
}

func (p *recordingPublisher) Events() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type recordingCache struct {
	mu       sync.Mutex
	statuses map[string]orders.Status
}

func (c *recordingCache) SetStatus(_ context.Context, orderID string, s orders.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses == nil {
		c.statuses = map[string]orders.Status{}
	}
	c.statuses[orderID] = s
	return nil
}

func (c *recordingCache) Get(orderID string) orders.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[orderID]
}

type fixture struct {
	st      *memstore.Store
	m       *orders.Manager
	pub     *recordingPublisher
	cache   *recordingCache
	clock   *clock
	metrics *metrics.OrderMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:      memstore.New(),
		pub:     &recordingPublisher{},
		cache:   &recordingCache{},
		clock:   &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics: metrics.NewOrderMetrics(prometheus.NewRegistry(), "test"),
	}
	f.m = &orders.Manager{
		Store:     f.st,
		Publisher: f.pub,
		Cache:     f.cache,
		Metrics:   f.metrics,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Service:   "order-test",
		Now:       f.clock.Now,
	}
	return f
}

func (f *fixture) product(seller string, priceCents int64, stock int) orders.Product {
	return f.st.PutProduct(orders.Product{Seller: seller, Name: "item", PriceCents: priceCents, Quantity: stock})
}

func (f *fixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	b, ok := f.st.Balance(user)
	if !ok {
		t.Fatalf("no account %q", user)
	}
	return b
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, ok := f.st.Product(id)
	if !ok {
		t.Fatalf("no product %d", id)
	}
	return p.Quantity
}
