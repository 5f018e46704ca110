// Package audit re-checks every settled order from the event stream: the
// seller credits must add up to the buyer debit, and the stored order must
// agree with the event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

// Dedup marks events as processed. First returns false for an id it has
// already seen.
type Dedup interface {
	First(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// OrderReader is the read side of the order store.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
}

type Service struct {
	Dedup   Dedup       // optional
	Orders  OrderReader // optional
	Metrics *metrics.OrderMetrics
	Log     *slog.Logger
}

// Finding is one discrepancy found while auditing an order.
type Finding struct {
	OrderID string
	Reason  string
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// HandleOrderPaid is installed as the consumer handler for order.paid. A
// returned error leaves the offset uncommitted and the consumer retries the
// same message.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a message that never decodes would block the partition forever
		s.log().Error("drop undecodable message", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}
	if v := kafkax.HeaderValue(m.Headers, "x-event-version"); v != "" && v != "1" {
		s.log().Warn("skip unknown event version", "event_id", env.EventID, "version", v)
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.First(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", env.EventID, err)
		}
		if !first {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		s.log().Error("drop undecodable payload", "event_id", env.EventID, "err", err)
		return nil
	}

	findings, err := s.Check(ctx, p)
	if err != nil {
		if s.Dedup != nil {
			_ = s.Dedup.Forget(ctx, env.EventID)
		}
		return err
	}
	for _, f := range findings {
		s.Metrics.Mismatch()
		s.log().Error("settlement mismatch", "order_id", f.OrderID, "reason", f.Reason, "event_id", env.EventID)
	}
	if len(findings) == 0 {
		s.log().Debug("settlement verified", "order_id", p.OrderID, "total_cents", p.TotalCents)
	}
	return nil
}

// Check audits one paid order. Store read errors are returned; discrepancies
// come back as findings.
func (s *Service) Check(ctx context.Context, p orders.OrderPaidPayload) ([]Finding, error) {
	var out []Finding
	var credited int64
	for _, c := range p.Credits {
		if c.AmountCents < 0 {
			out = append(out, Finding{p.OrderID, fmt.Sprintf("negative credit %d for %s", c.AmountCents, c.Seller)})
		}
		credited += c.AmountCents
	}
	if credited != p.TotalCents {
		out = append(out, Finding{p.OrderID, fmt.Sprintf("credits %d != debit %d", credited, p.TotalCents)})
	}

	if s.Orders == nil {
		return out, nil
	}
	o, err := s.Orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	if o.Status != orders.StatusPaid {
		out = append(out, Finding{p.OrderID, fmt.Sprintf("stored status %s, event says %s", o.Status, orders.StatusPaid)})
	}
	if o.TotalCents != p.TotalCents {
		out = append(out, Finding{p.OrderID, fmt.Sprintf("stored total %d, event total %d", o.TotalCents, p.TotalCents)})
	}
	if o.Buyer != p.Buyer {
		out = append(out, Finding{p.OrderID, fmt.Sprintf("stored buyer %s, event buyer %s", o.Buyer, p.Buyer)})
	}
	return out, nil
}
