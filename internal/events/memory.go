package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBroker is an in-process broker with the same fanout semantics as the
// NATS implementation. It is used in tests and for running both services in
// one process.
//
// Unacked deliveries are handed out again when the consumer that holds them
// closes its connection or rejects them with Nak. There is no ack timeout.
type MemoryBroker struct {
	mu        sync.Mutex
	exchanges map[string]Exchange
	queues    map[string]*memQueue
	seq       int
	closed    bool
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		exchanges: make(map[string]Exchange),
		queues:    make(map[string]*memQueue),
	}
}

var (
	_ Publisher  = (*MemoryBroker)(nil)
	_ Subscriber = (*MemoryConn)(nil)
)

// DeclareExchange creates ex if it does not exist yet.
func (b *MemoryBroker) DeclareExchange(_ context.Context, ex Exchange) error {
	if err := ex.validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.exchanges[ex.Name] = ex
	return nil
}

// Publish copies payload into every queue currently bound to exchange.
// With no queue bound the message is dropped.
func (b *MemoryBroker) Publish(ctx context.Context, exchange, _ string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return fmt.Errorf("publishing to %s: %w", exchange, ErrExchangeNotFound)
	}
	for _, q := range b.queues {
		if q.exchange != exchange {
			continue
		}
		body := make([]byte, len(payload))
		copy(body, payload)
		q.ready = append(q.ready, &memMessage{body: body})
		q.broadcast()
	}
	return nil
}

// Close shuts the broker down. Open connections see their deliveries end.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for name, q := range b.queues {
		q.deleted = true
		q.broadcast()
		delete(b.queues, name)
	}
	return nil
}

// Dial opens a new connection. It satisfies DialFunc.
func (b *MemoryBroker) Dial(ctx context.Context) (Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &MemoryConn{broker: b, done: make(chan struct{})}, nil
}

// Queues returns the names of the queues bound to exchange, sorted.
func (b *MemoryBroker) Queues(exchange string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for name, q := range b.queues {
		if q.exchange == exchange {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// QueueStats reports how many messages of a queue wait for delivery and how
// many are delivered but unsettled.
func (b *MemoryBroker) QueueStats(name string) (ready, unacked int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0, 0, false
	}
	return len(q.ready), len(q.unacked), true
}

// SimulateReconnect behaves like every connection dropping its channel and
// recovering it at once: queues and bindings survive, and every delivered but
// unsettled message is queued again at the head of its queue. Deliveries
// handed out before the reconnect can no longer be settled.
func (b *MemoryBroker) SimulateReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		if len(q.unacked) == 0 {
			continue
		}
		returned := make([]*memMessage, 0, len(q.unacked))
		for m := range q.unacked {
			returned = append(returned, m)
		}
		clear(q.unacked)
		q.ready = append(returned, q.ready...)
		q.broadcast()
	}
}

// MemoryConn is one connection to a MemoryBroker.
type MemoryConn struct {
	broker *MemoryBroker

	// guarded by broker.mu
	owned  []*memQueue
	closed bool
	done   chan struct{}
}

func (c *MemoryConn) DeclareExchange(ctx context.Context, ex Exchange) error {
	c.broker.mu.Lock()
	closed := c.closed
	c.broker.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.broker.DeclareExchange(ctx, ex)
}

// BindQueue binds an anonymous queue owned by this connection, or joins the
// named queue, creating it on first use.
func (c *MemoryConn) BindQueue(_ context.Context, exchange string, opts QueueOptions) (Queue, error) {
	opts = opts.withDefaults()
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed || b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return nil, fmt.Errorf("binding queue to %s: %w", exchange, ErrExchangeNotFound)
	}

	if !opts.Exclusive() {
		if q, ok := b.queues[opts.Name]; ok {
			return &memQueueHandle{q: q, conn: c}, nil
		}
	}

	name := opts.Name
	if opts.Exclusive() {
		b.seq++
		name = fmt.Sprintf("amq.gen-%d", b.seq)
	}
	q := &memQueue{
		name:       name,
		exchange:   exchange,
		exclusive:  opts.Exclusive(),
		maxDeliver: opts.MaxDeliver,
		unacked:    make(map[*memMessage]*memDelivery),
		signal:     make(chan struct{}),
	}
	b.queues[name] = q
	if q.exclusive {
		c.owned = append(c.owned, q)
	}
	return &memQueueHandle{q: q, conn: c}, nil
}

// Close drops the exclusive queues of this connection together with their
// messages and returns its unsettled deliveries on shared queues.
func (c *MemoryConn) Close() error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	for _, q := range c.owned {
		q.deleted = true
		q.broadcast()
		delete(b.queues, q.name)
	}
	c.owned = nil

	for _, q := range b.queues {
		var returned []*memMessage
		for m, holder := range q.unacked {
			if holder.conn == c {
				returned = append(returned, m)
				delete(q.unacked, m)
			}
		}
		if len(returned) > 0 {
			q.ready = append(returned, q.ready...)
			q.broadcast()
		}
	}
	return nil
}

type memMessage struct {
	body       []byte
	deliveries int
}

// memQueue state is guarded by the broker mutex.
type memQueue struct {
	name       string
	exchange   string
	exclusive  bool
	maxDeliver int

	ready   []*memMessage
	deleted bool

	// unacked maps each message handed out to the delivery that may settle
	// it. A redelivery replaces the entry, so older deliveries go stale.
	unacked map[*memMessage]*memDelivery

	// signal is closed and replaced whenever the queue changes.
	signal chan struct{}
}

func (q *memQueue) broadcast() {
	close(q.signal)
	q.signal = make(chan struct{})
}

type memQueueHandle struct {
	q    *memQueue
	conn *MemoryConn
}

func (h *memQueueHandle) Name() string    { return h.q.name }
func (h *memQueueHandle) Exclusive() bool { return h.q.exclusive }

func (h *memQueueHandle) Consume(ctx context.Context) (<-chan Delivery, error) {
	b := h.conn.broker
	b.mu.Lock()
	closed := h.conn.closed || h.q.deleted
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	ch := make(chan Delivery)
	go h.pump(ctx, ch)
	return ch, nil
}

func (h *memQueueHandle) pump(ctx context.Context, ch chan<- Delivery) {
	defer close(ch)
	b := h.conn.broker
	for {
		if ctx.Err() != nil {
			return
		}
		b.mu.Lock()
		if h.conn.closed || h.q.deleted {
			b.mu.Unlock()
			return
		}
		if len(h.q.ready) == 0 {
			signal := h.q.signal
			b.mu.Unlock()
			select {
			case <-signal:
				continue
			case <-h.conn.done:
				return
			case <-ctx.Done():
				return
			}
		}
		m := h.q.ready[0]
		h.q.ready = h.q.ready[1:]
		m.deliveries++
		d := &memDelivery{q: h.q, conn: h.conn, msg: m, redelivered: m.deliveries > 1}
		h.q.unacked[m] = d
		b.mu.Unlock()

		select {
		case ch <- d:
		case <-h.conn.done:
			return
		case <-ctx.Done():
			// Never handed out: put it back as if it was not delivered.
			b.mu.Lock()
			if h.q.unacked[m] == d {
				delete(h.q.unacked, m)
				m.deliveries--
				h.q.ready = append([]*memMessage{m}, h.q.ready...)
				h.q.broadcast()
			}
			b.mu.Unlock()
			return
		}
	}
}

type memDelivery struct {
	q           *memQueue
	conn        *MemoryConn
	msg         *memMessage
	redelivered bool

	settled bool // guarded by broker.mu
}

func (d *memDelivery) Body() []byte      { return d.msg.body }
func (d *memDelivery) Redelivered() bool { return d.redelivered }

func (d *memDelivery) Ack() error {
	return d.settle(func(q *memQueue) {})
}

// Nak puts the message back at the head of its queue unless it has used up
// its delivery attempts.
func (d *memDelivery) Nak() error {
	return d.settle(func(q *memQueue) {
		if q.maxDeliver > 0 && d.msg.deliveries >= q.maxDeliver {
			return
		}
		q.ready = append([]*memMessage{d.msg}, q.ready...)
		q.broadcast()
	})
}

func (d *memDelivery) settle(fn func(q *memQueue)) error {
	b := d.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case d.settled:
		return ErrAlreadySettled
	case d.conn.closed, d.q.unacked[d.msg] != d:
		return ErrClosed
	}
	d.settled = true
	delete(d.q.unacked, d.msg)
	if !d.q.deleted {
		fn(d.q)
	}
	return nil
}
