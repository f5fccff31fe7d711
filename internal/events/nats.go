package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/alfredjeanlab/flixtube/internal/idgen"
	"github.com/alfredjeanlab/flixtube/internal/metrics"
)

// Exchanges map onto JetStream streams. A stream with interest retention
// keeps a message only until every consumer bound at publish time has acked
// it, and drops it outright when no consumer is bound, which is exactly the
// fanout contract. Queues map onto consumers filtered on the exchange subject.

// exchangeMaxAge bounds how long an unacked message can sit in a stream.
const exchangeMaxAge = 7 * 24 * time.Hour

// publishFlushTimeout bounds how long Close waits for in-flight publishes.
const publishFlushTimeout = 5 * time.Second

var streamNameReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// streamName returns the JetStream stream backing an exchange ("viewed" -> "VIEWED").
func streamName(exchange string) string {
	return strings.ToUpper(streamNameReplacer.Replace(exchange))
}

func streamConfig(ex Exchange) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        streamName(ex.Name),
		Description: "fanout exchange " + ex.Name,
		Subjects:    []string{ex.Name},
		Retention:   jetstream.InterestPolicy,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		MaxAge:      exchangeMaxAge,
		Duplicates:  2 * time.Minute,
	}
}

func consumerConfig(exchange string, opts QueueOptions) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Durable:       opts.Name,
		FilterSubject: exchange,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
	}
	if opts.Exclusive() {
		cfg.Description = "exclusive queue on " + exchange
		cfg.InactiveThreshold = opts.ExclusiveTTL
	}
	return cfg
}

// declareExchange is idempotent: redeclaring with the same settings is a no-op.
func declareExchange(ctx context.Context, js jetstream.JetStream, ex Exchange) error {
	if err := ex.validate(); err != nil {
		return err
	}
	if _, err := js.CreateOrUpdateStream(ctx, streamConfig(ex)); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", ex.Name, err)
	}
	return nil
}

func connectOptions(name string, logger *slog.Logger, extra []nats.Option) []nats.Option {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("broker disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker reconnected", "url", nc.ConnectedUrl())
		}),
	}
	return append(defaults, extra...)
}

// NATSPublisher publishes events to exchanges backed by NATS JetStream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	breaker *gobreaker.CircuitBreaker[any]
	newID   idgen.Func
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewNATSPublisher connects to the broker at url and declares the viewed
// exchange. An unreachable broker is reported as an error; callers treat it
// as fatal at startup.
func NewNATSPublisher(ctx context.Context, url string, logger *slog.Logger, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, connectOptions("flixtube-streaming", logger, opts)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			metrics.ViewedPublished.WithLabelValues(metrics.ResultAsyncError).Inc()
			logger.Warn("publish was not stored by the broker", "subject", msg.Subject, "err", err)
		}),
		jetstream.WithPublishAsyncMaxPending(1024),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	if err := declareExchange(ctx, js, ViewedExchange()); err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSPublisher{
		conn:    nc,
		js:      js,
		breaker: newBreaker(DefaultBreakerConfig(), logger),
		newID:   idgen.Message,
		logger:  logger,
	}, nil
}

// Publish hands payload to the broker without waiting for its acknowledgment.
// Each message carries a fresh Nats-Msg-Id so that client-side publish retries
// are not stored twice. Fanout exchanges ignore routingKey.
func (p *NATSPublisher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgID, err := p.newID()
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (any, error) {
		return p.js.PublishAsync(exchange, payload, jetstream.WithMsgID(msgID))
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", exchange, err)
	}
	return nil
}

// Close waits briefly for in-flight publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(publishFlushTimeout):
		p.logger.Warn("closing publisher with publishes still pending", "pending", p.js.PublishAsyncPending())
	}
	p.conn.Close()
	return nil
}

// NATSSubscriber is one broker connection used to bind and consume queues.
type NATSSubscriber struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger

	mu     sync.Mutex
	queues []*natsQueue
	closed bool
}

// Compile-time checks.
var (
	_ Publisher  = (*NATSPublisher)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)

// NewNATSSubscriber connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. disconnect/reconnect handlers) can be appended.
func NewNATSSubscriber(url string, logger *slog.Logger, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := nats.Connect(url, connectOptions("flixtube-history", logger, opts)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	return &NATSSubscriber{conn: nc, js: js, logger: logger}, nil
}

// NATSDialer returns a DialFunc connecting to url. The dial honours the
// context deadline as the connect timeout.
func NATSDialer(url string, logger *slog.Logger, opts ...nats.Option) DialFunc {
	return func(ctx context.Context) (Subscriber, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dialOpts := append([]nats.Option(nil), opts...)
		if deadline, ok := ctx.Deadline(); ok {
			dialOpts = append(dialOpts, nats.Timeout(time.Until(deadline)))
		}
		return NewNATSSubscriber(url, logger, dialOpts...)
	}
}

func (s *NATSSubscriber) DeclareExchange(ctx context.Context, ex Exchange) error {
	return declareExchange(ctx, s.js, ex)
}

// BindQueue creates the consumer that plays the role of a queue bound to
// exchange. Anonymous queues get a generated name and are removed by the
// broker once idle for opts.ExclusiveTTL.
func (s *NATSSubscriber) BindQueue(ctx context.Context, exchange string, opts QueueOptions) (Queue, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	q := &natsQueue{
		sub:      s,
		exchange: exchange,
		opts:     opts.withDefaults(),
	}
	if err := q.bind(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.queues = append(s.queues, q)
	s.mu.Unlock()
	return q, nil
}

// Close stops every consumer, removes exclusive queues and closes the
// connection. Unacked deliveries are redelivered to whoever still listens.
func (s *NATSSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	queues := s.queues
	s.queues = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, q := range queues {
		q.stop()
		if q.Exclusive() {
			if err := s.js.DeleteConsumer(ctx, streamName(q.exchange), q.Name()); err != nil &&
				!errors.Is(err, jetstream.ErrConsumerNotFound) {
				s.logger.Warn("removing exclusive queue", "queue", q.Name(), "err", err)
			}
		}
	}
	s.conn.Close()
	return nil
}

type natsQueue struct {
	sub      *NATSSubscriber
	exchange string
	opts     QueueOptions

	mu       sync.Mutex
	consumer jetstream.Consumer
	name     string
	iter     jetstream.MessagesContext
	stopped  bool
}

func (q *natsQueue) Name() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.name
}

func (q *natsQueue) Exclusive() bool { return q.opts.Exclusive() }

func (q *natsQueue) bind(ctx context.Context) error {
	stream := streamName(q.exchange)
	cfg := consumerConfig(q.exchange, q.opts)

	var (
		cons jetstream.Consumer
		err  error
	)
	if q.opts.Exclusive() {
		cons, err = q.sub.js.CreateConsumer(ctx, stream, cfg)
	} else {
		cons, err = q.sub.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	}
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("binding queue to %s: %w", q.exchange, ErrExchangeNotFound)
	}
	if err != nil {
		return fmt.Errorf("binding queue to %s: %w", q.exchange, err)
	}

	q.mu.Lock()
	q.consumer = cons
	q.name = cons.CachedInfo().Name
	q.mu.Unlock()
	return nil
}

func (q *natsQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	it, err := q.messages()
	if err != nil {
		return nil, err
	}
	ch := make(chan Delivery)
	go q.pump(ctx, it, ch)
	return ch, nil
}

func (q *natsQueue) messages() (jetstream.MessagesContext, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, ErrClosed
	}
	it, err := q.consumer.Messages(jetstream.PullMaxMessages(16))
	if err != nil {
		return nil, fmt.Errorf("consuming %s: %w", q.name, err)
	}
	q.iter = it
	return it, nil
}

func (q *natsQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	if q.iter != nil {
		q.iter.Stop()
	}
}

// pump feeds deliveries to ch one at a time until ctx ends or the queue is
// stopped. If the broker drops the consumer underneath us (an exclusive
// queue idle past its TTL while the connection was down), it is bound again.
func (q *natsQueue) pump(ctx context.Context, it jetstream.MessagesContext, ch chan<- Delivery) {
	defer close(ch)
	stopOnCancel := context.AfterFunc(ctx, q.stop)
	defer stopOnCancel()

	bo := newBackoff(250*time.Millisecond, 10*time.Second)
	for {
		msg, err := it.Next()
		switch {
		case err == nil:
			bo.reset()
		case errors.Is(err, jetstream.ErrMsgIteratorClosed):
			return
		case errors.Is(err, jetstream.ErrConsumerDeleted), errors.Is(err, jetstream.ErrConsumerNotFound):
			it.Stop()
			if it, err = q.rebind(ctx, bo); err != nil {
				q.sub.logger.Error("queue lost and could not be bound again", "exchange", q.exchange, "err", err)
				return
			}
			continue
		default:
			q.sub.logger.Warn("queue delivery error", "queue", q.Name(), "err", err)
			if !bo.wait(ctx) {
				return
			}
			continue
		}

		select {
		case ch <- &natsDelivery{msg: msg, nakDelay: q.opts.RedeliveryDelay}:
		case <-ctx.Done():
			// Left unsettled; the broker redelivers it after AckWait.
			return
		}
	}
}

// rebindAttempts bounds how often a lost queue is bound again before giving up.
const rebindAttempts = 8

func (q *natsQueue) rebind(ctx context.Context, bo *backoff) (jetstream.MessagesContext, error) {
	old := q.Name()
	var lastErr error
	for attempt := 1; attempt <= rebindAttempts; attempt++ {
		if err := q.bind(ctx); err != nil {
			lastErr = err
			q.sub.logger.Warn("rebinding queue", "exchange", q.exchange, "attempt", attempt, "err", err)
			if !bo.wait(ctx) {
				return nil, ctx.Err()
			}
			continue
		}
		it, err := q.messages()
		if err != nil {
			return nil, err
		}
		if q.Exclusive() {
			q.sub.logger.Warn("exclusive queue was removed by the broker; events published while it was gone are not recorded",
				"old_queue", old, "new_queue", q.Name())
		}
		return it, nil
	}
	return nil, fmt.Errorf("rebinding queue to %s after %d attempts: %w", q.exchange, rebindAttempts, lastErr)
}

type natsDelivery struct {
	msg      jetstream.Msg
	nakDelay time.Duration

	mu      sync.Mutex
	settled bool
}

func (d *natsDelivery) Body() []byte { return d.msg.Data() }

func (d *natsDelivery) Redelivered() bool {
	md, err := d.msg.Metadata()
	return err == nil && md.NumDelivered > 1
}

// settle runs the broker call and marks the delivery settled only if it
// succeeded, so a failed Ack can still be followed by Nak.
func (d *natsDelivery) settle(call func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	if err := call(); err != nil {
		return err
	}
	d.settled = true
	return nil
}

func (d *natsDelivery) Ack() error {
	return d.settle(d.msg.Ack)
}

func (d *natsDelivery) Nak() error {
	return d.settle(func() error {
		if d.nakDelay > 0 {
			return d.msg.NakWithDelay(d.nakDelay)
		}
		return d.msg.Nak()
	})
}
