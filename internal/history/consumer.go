// Package history records every viewed event in the history store.
//
// A Consumer binds its own queue to the viewed exchange and handles
// deliveries one at a time. A delivery is acknowledged only after its record
// was inserted; any failure rejects it so that the broker delivers it again.
// Delivery is therefore at least once: a redelivered event is stored twice.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/events"
	"github.com/alfredjeanlab/flixtube/internal/idgen"
	"github.com/alfredjeanlab/flixtube/internal/metrics"
	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// DefaultPersistTimeout bounds a single insert.
const DefaultPersistTimeout = 10 * time.Second

var (
	ErrNotOpen     = errors.New("history: consumer is not open")
	ErrAlreadyOpen = errors.New("history: consumer is already open")
	ErrStreamEnded = errors.New("history: delivery stream ended")
)

// Options configure a Consumer. The zero value binds an anonymous queue.
type Options struct {
	// Queue is passed to BindQueue. An empty Queue.Name gives every consumer
	// its own exclusive queue, so each instance stores every event.
	Queue events.QueueOptions

	// PersistTimeout bounds each insert (default DefaultPersistTimeout).
	PersistTimeout time.Duration

	// Now stamps WatchedAt (default time.Now).
	Now func() time.Time

	// NewID generates record IDs (default idgen.Record).
	NewID idgen.Func

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(State)

	// OnRecorded, if set, is called with every record after its delivery
	// was acknowledged.
	OnRecorded func(*model.HistoryRecord)
}

// Consumer is the history subscriber.
type Consumer struct {
	dial   events.DialFunc
	store  store.HistoryStore
	opts   Options
	logger *slog.Logger

	state atomic.Int32

	mu         sync.Mutex
	sub        events.Subscriber
	queue      events.Queue
	deliveries <-chan events.Delivery
	stop       context.CancelFunc
	closing    bool
}

// NewConsumer creates a Consumer. Nothing is contacted until Open.
func NewConsumer(dial events.DialFunc, s store.HistoryStore, opts Options, logger *slog.Logger) *Consumer {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = idgen.Record
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{dial: dial, store: s, opts: opts, logger: logger}
}

// State returns the current connection state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// QueueName returns the name of the bound queue, or "" before Open.
func (c *Consumer) QueueName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue == nil {
		return ""
	}
	return c.queue.Name()
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	metrics.SubscriberState.Set(float64(s))
	c.logger.Info("history subscriber state", "state", s.String())
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// Open connects, declares the viewed exchange, binds the queue and starts
// consuming. It returns once the consumer is CONSUMING, or a *StartupError
// naming the state in which it failed. ctx bounds the startup only.
func (c *Consumer) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateDisconnected || c.sub != nil {
		return ErrAlreadyOpen
	}

	c.setState(StateConnecting)
	sub, err := c.dial(ctx)
	if err != nil {
		return c.failStartup(nil, StateConnecting, fmt.Errorf("connecting to broker: %w", err))
	}

	c.setState(StateChannelReady)
	if err := sub.DeclareExchange(ctx, events.ViewedExchange()); err != nil {
		return c.failStartup(sub, StateChannelReady, err)
	}

	c.setState(StateExchangeBound)
	queue, err := sub.BindQueue(ctx, events.ExchangeViewed, c.opts.Queue)
	if err != nil {
		return c.failStartup(sub, StateExchangeBound, err)
	}

	c.setState(StateQueueBound)
	consumeCtx, stop := context.WithCancel(context.Background())
	deliveries, err := queue.Consume(consumeCtx)
	if err != nil {
		stop()
		return c.failStartup(sub, StateQueueBound, fmt.Errorf("starting consumer: %w", err))
	}

	c.sub = sub
	c.queue = queue
	c.deliveries = deliveries
	c.stop = stop
	c.closing = false
	c.setState(StateConsuming)
	c.logger.Info("history subscriber consuming", "queue", queue.Name(), "exclusive", queue.Exclusive())
	return nil
}

func (c *Consumer) failStartup(sub events.Subscriber, state State, err error) error {
	if sub != nil {
		if cerr := sub.Close(); cerr != nil {
			c.logger.Warn("closing broker connection after failed startup", "err", cerr)
		}
	}
	c.setState(StateDisconnected)
	return &StartupError{State: state, Err: err}
}

// Run handles deliveries one at a time until ctx is done or the consumer is
// closed, in which case it returns nil. If the broker ends the delivery
// stream on its own, Run returns ErrStreamEnded.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	deliveries, closing := c.deliveries, c.closing
	c.mu.Unlock()
	if deliveries == nil {
		if closing {
			return nil
		}
		return ErrNotOpen
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.mu.Lock()
				closing := c.closing
				c.mu.Unlock()
				if closing {
					return nil
				}
				return ErrStreamEnded
			}
			if err := c.HandleDelivery(ctx, d); err != nil {
				c.logger.Warn("viewed event not recorded; it will be delivered again", "err", err)
			}
		}
	}
}

// HandleDelivery decodes one viewed event, inserts its history record and
// acknowledges the delivery. Ack is only called after the insert succeeded.
// On any failure the delivery is rejected and the error returned.
func (c *Consumer) HandleDelivery(ctx context.Context, d events.Delivery) error {
	if d.Redelivered() {
		metrics.HistoryRedeliveries.Inc()
	}

	rec, err := c.record(d.Body())
	if err == nil {
		err = c.persist(ctx, rec)
	}
	if err != nil {
		metrics.HistoryDeliveries.WithLabelValues(metrics.OutcomeNacked).Inc()
		if nakErr := d.Nak(); nakErr != nil {
			c.logger.Warn("rejecting delivery", "err", nakErr)
		}
		return err
	}

	if err := d.Ack(); err != nil {
		// The record is stored; the broker will deliver the event again.
		return fmt.Errorf("acknowledging %s: %w", rec.ID, err)
	}
	metrics.HistoryDeliveries.WithLabelValues(metrics.OutcomeAcked).Inc()
	c.logger.Debug("recorded view", "video_id", rec.VideoID, "id", rec.ID)
	if c.opts.OnRecorded != nil {
		c.opts.OnRecorded(rec)
	}
	return nil
}

func (c *Consumer) record(body []byte) (*model.HistoryRecord, error) {
	event, err := model.DecodeViewedEvent(body)
	if err != nil {
		return nil, err
	}
	id, err := c.opts.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating record id: %w", err)
	}
	return model.NewHistoryRecord(id, event, c.opts.Now().UTC()), nil
}

func (c *Consumer) persist(ctx context.Context, rec *model.HistoryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PersistTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.InsertRecord(ctx, store.CollectionVideos, rec)
	metrics.HistoryPersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("recording view of %s: %w", rec.VideoID, err)
	}
	return nil
}

// Close stops consuming and closes the broker connection. Deliveries not yet
// acknowledged are left to the broker. Close is safe to call more than once.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	c.closing = true
	c.stop()
	err := c.sub.Close()
	c.sub = nil
	c.queue = nil
	c.deliveries = nil
	c.setState(StateDisconnected)
	if err != nil {
		return fmt.Errorf("closing broker connection: %w", err)
	}
	return nil
}
