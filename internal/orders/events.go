package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
	EventOrderFailed    = "OrderFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	Buyer      string      `json:"buyer"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
}

type SellerCredit struct {
	Seller      string `json:"seller"`
	AmountCents int64  `json:"amount_cents"`
}

type OrderPaidPayload struct {
	OrderID    string         `json:"order_id"`
	Buyer      string         `json:"buyer"`
	TotalCents int64          `json:"total_cents"`
	Credits    []SellerCredit `json:"credits"`
}

// OrderClosedPayload is shared by the cancelled and failed events.
type OrderClosedPayload struct {
	OrderID     string `json:"order_id"`
	Buyer       string `json:"buyer"`
	FinalStatus Status `json:"final_status"`
	Reason      string `json:"reason,omitempty"`
}

// Credits folds the order lines into one credit per seller, in the order the
// sellers first appear.
func Credits(items []OrderItem) []SellerCredit {
	idx := map[string]int{}
	var out []SellerCredit
	for _, it := range items {
		i, ok := idx[it.Seller]
		if !ok {
			idx[it.Seller] = len(out)
			out = append(out, SellerCredit{Seller: it.Seller})
			i = len(out) - 1
		}
		out[i].AmountCents += it.Subtotal()
	}
	return out
}

func newEnvelope(eventType, producer, orderID string, payload any, at time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}
