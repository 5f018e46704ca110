package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
)

// Sweeper cancels PENDING orders older than TTL so abandoned checkouts give
// their stock back. It goes through Manager.CancelOrder like any buyer would.
type Sweeper struct {
	Manager  *Manager
	TTL      time.Duration
	Interval time.Duration
	Batch    int
	Metrics  *metrics.OrderMetrics
	Log      *slog.Logger
}

func (s *Sweeper) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Run sweeps once per Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log().Error("expiry sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce cancels one batch of expired orders and returns how many it cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	cutoff := s.Manager.now().Add(-s.TTL)

	var expired []PendingOrder
	err := readTx(ctx, s.Manager.Store, "list expired", func(tx Tx) error {
		var err error
		expired, err = tx.ListPendingBefore(ctx, cutoff, batch)
		return err
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range expired {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, err := s.Manager.CancelOrder(ctx, p.ID, p.Buyer)
		switch {
		case err == nil:
			n++
			s.Metrics.Expired()
			s.log().Info("expired pending order", "order_id", p.ID, "buyer", p.Buyer, "age", s.Manager.now().Sub(p.CreatedAt).Round(time.Second))
		case errors.Is(err, ErrInvalidOrderState):
			// paid or cancelled between the listing and the cancel
		default:
			s.log().Warn("could not expire order", "order_id", p.ID, "err", err)
		}
	}
	return n, nil
}
