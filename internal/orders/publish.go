package orders

import (
	"context"

	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher receives lifecycle events after their transaction has committed.
type Publisher interface {
	Publish(topic string, key []byte, env Envelope)
}

// StatusCache is told about every committed status change so cached reads
// never outlive the row they mirror.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, status Status) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, []byte, Envelope) {}

// KafkaPublisher routes envelopes to one async producer per topic.
type KafkaPublisher struct {
	Producers map[string]*kafkax.Producer
}

func (p *KafkaPublisher) Publish(topic string, key []byte, env Envelope) {
	prod, ok := p.Producers[topic]
	if !ok {
		return
	}
	prod.Publish(key, kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
