// Package events carries viewed events from the streaming service to the
// history service over a fanout exchange.
//
// The vocabulary is the one of a classic broker: an exchange is declared,
// each subscriber binds its own queue to it, and every message published on
// the exchange is copied to every queue bound at that moment. Deliveries must
// be settled explicitly with Ack or Nak; anything not acked is delivered again.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/metrics"
	"github.com/alfredjeanlab/flixtube/internal/model"
)

// Exchange names and kinds.
const (
	ExchangeViewed = "viewed"
	KindFanout     = "fanout"
)

// Queue defaults.
const (
	DefaultAckWait = 30 * time.Second

	// DefaultExclusiveTTL is how long an anonymous queue outlives its owner
	// before the broker removes it together with any undelivered messages.
	DefaultExclusiveTTL = time.Minute
)

var (
	ErrUnsupportedExchangeKind = errors.New("events: unsupported exchange kind")
	ErrExchangeNotFound        = errors.New("events: exchange not declared")
	ErrClosed                  = errors.New("events: connection closed")
	ErrAlreadySettled          = errors.New("events: delivery already settled")
)

// Exchange describes a broadcast point messages are published to.
type Exchange struct {
	Name string
	Kind string
}

// ViewedExchange is the fanout exchange announcing video playbacks.
func ViewedExchange() Exchange {
	return Exchange{Name: ExchangeViewed, Kind: KindFanout}
}

func (e Exchange) validate() error {
	if e.Name == "" {
		return errors.New("events: exchange name is required")
	}
	if e.Kind != KindFanout {
		return fmt.Errorf("%w: %q", ErrUnsupportedExchangeKind, e.Kind)
	}
	return nil
}

// Publisher is the interface for emitting events.
//
// Fanout exchanges ignore the routing key; it is kept in the signature so
// callers state it explicitly ("" for viewed events).
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload []byte) error
	Close() error
}

// PublishViewed announces one playback of videoID on the viewed exchange.
// The publish is best effort: the broker's acknowledgment is not awaited.
func PublishViewed(ctx context.Context, p Publisher, videoID string) error {
	event := model.NewViewedEvent(videoID)
	if err := model.ValidateViewedEvent(event); err != nil {
		return err
	}
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.Publish(ctx, ExchangeViewed, "", data); err != nil {
		metrics.ViewedPublished.WithLabelValues(metrics.ResultError).Inc()
		return err
	}
	metrics.ViewedPublished.WithLabelValues(metrics.ResultOK).Inc()
	return nil
}

// QueueOptions control how a subscriber's queue is bound.
type QueueOptions struct {
	// Name of a shared, durable queue. Empty means an anonymous queue owned
	// exclusively by the binding connection and removed once it goes away.
	Name string

	// AckWait is how long a delivery may stay unsettled before the broker
	// hands it out again.
	AckWait time.Duration

	// MaxDeliver bounds delivery attempts; -1 or 0 means unbounded.
	MaxDeliver int

	// RedeliveryDelay is applied when a delivery is rejected with Nak.
	RedeliveryDelay time.Duration

	// ExclusiveTTL applies to anonymous queues only.
	ExclusiveTTL time.Duration
}

// Exclusive reports whether the options describe an anonymous queue.
func (o QueueOptions) Exclusive() bool { return o.Name == "" }

func (o QueueOptions) withDefaults() QueueOptions {
	if o.AckWait <= 0 {
		o.AckWait = DefaultAckWait
	}
	if o.MaxDeliver == 0 {
		o.MaxDeliver = -1
	}
	if o.ExclusiveTTL <= 0 {
		o.ExclusiveTTL = DefaultExclusiveTTL
	}
	return o
}

// Subscriber declares exchanges and binds queues to them. A Subscriber is
// one broker connection; closing it releases every exclusive queue it owns.
type Subscriber interface {
	DeclareExchange(ctx context.Context, ex Exchange) error
	BindQueue(ctx context.Context, exchange string, opts QueueOptions) (Queue, error)
	Close() error
}

// DialFunc opens a new broker connection.
type DialFunc func(ctx context.Context) (Subscriber, error)

// Queue is a bound queue.
type Queue interface {
	// Name is the broker-assigned name for anonymous queues.
	Name() string
	Exclusive() bool

	// Consume starts delivery. The channel is unbuffered and is closed when
	// ctx is done or the connection closes; deliveries still unsettled at
	// that point are redelivered later.
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Delivery is one message handed to a consumer. Exactly one of Ack or Nak
// takes effect; later calls return ErrAlreadySettled. A call that fails
// leaves the delivery unsettled.
type Delivery interface {
	Body() []byte
	Redelivered() bool
	Ack() error
	Nak() error
}
