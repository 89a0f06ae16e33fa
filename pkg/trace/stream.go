package trace

import (
	"context"
	"sync"
)

// Stream is a bounded in-memory broadcast of Records that a trace backend
// (console printer, wire exporter, test harness) can subscribe to. Records
// that cannot be delivered because a subscriber's buffer is full are
// dropped from that subscriber only, and separately retained in the
// Stream's shared Overflow ring so nothing is silently lost from the
// stream's perspective.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	buffer   int
	overflow *Overflow

	mu       sync.RWMutex
	subs     []*subscriber
	shutdown sync.Once
}

type subscriber struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan Record
	once   sync.Once
}

// NewStream constructs a stream with per-subscriber buffer size and an
// overflow ring of the given capacity (a capacity <= 0 leaves the ring
// unbounded, as NewOverflow does).
func NewStream(buffer, overflowCapacity int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		ctx:      ctx,
		cancel:   cancel,
		buffer:   buffer,
		overflow: NewOverflow(overflowCapacity),
	}
}

// Observe implements Sink, letting a Stream be wired directly into a
// HookSet.
func (s *Stream) Observe(r Record) {
	s.mu.RLock()
	subs := append([]*subscriber(nil), s.subs...)
	s.mu.RUnlock()

	if len(subs) == 0 {
		s.overflow.Offer(r)
		return
	}
	for _, sub := range subs {
		select {
		case sub.ch <- r:
		default:
			s.overflow.Offer(r)
		}
	}
}

// Subscribe registers for the stream's records until ctx is done or
// Unsubscribe is called.
func (s *Stream) Subscribe(ctx context.Context) (<-chan Record, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{ctx: subCtx, cancel: cancel, ch: make(chan Record, s.buffer)}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go s.observeClose(sub)
	return sub.ch, func() { sub.close() }
}

func (s *Stream) observeClose(sub *subscriber) {
	<-sub.ctx.Done()
	s.mu.Lock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	sub.close()
}

// Close shuts down the stream and all subscriptions.
func (s *Stream) Close() {
	s.shutdown.Do(func() {
		s.cancel()
		s.mu.Lock()
		for _, sub := range s.subs {
			sub.close()
		}
		s.subs = nil
		s.mu.Unlock()
	})
}

func (sub *subscriber) close() {
	sub.once.Do(func() {
		sub.cancel()
		close(sub.ch)
	})
}

// Overflow is a bounded ring retaining the most recent records that a
// Stream could not deliver to some subscriber.
type Overflow struct {
	mu       sync.Mutex
	capacity int
	records  []Record
}

// NewOverflow constructs a ring with the given capacity. Capacity <= 0
// means unbounded.
func NewOverflow(capacity int) *Overflow {
	return &Overflow{capacity: capacity, records: make([]Record, 0)}
}

// Offer records r, evicting the oldest entry if the ring is at capacity.
func (o *Overflow) Offer(r Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.capacity > 0 && len(o.records) >= o.capacity {
		copy(o.records[0:], o.records[1:])
		o.records[len(o.records)-1] = r
		return
	}
	o.records = append(o.records, r)
}

// Drain retrieves and clears all retained records.
func (o *Overflow) Drain() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	drained := make([]Record, len(o.records))
	copy(drained, o.records)
	o.records = o.records[:0]
	return drained
}

// Len returns the number of retained records.
func (o *Overflow) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}
