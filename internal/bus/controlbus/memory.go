package controlbus

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/coachpo/rkh/errs"
)

// MemoryBus provides an in-memory control bus backed by bounded channels.
type MemoryBus struct {
	cfg MemoryConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	consumers []*consumer
	once      sync.Once

	limiterMu sync.Mutex
	limiters  map[uint8]*rate.Limiter
}

type consumer struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan Message
	once   sync.Once
}

// NewMemoryBus constructs a memory-backed control bus.
func NewMemoryBus(cfg MemoryConfig) *MemoryBus {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	bus := new(MemoryBus)
	bus.cfg = cfg
	bus.ctx = ctx
	bus.cancel = cancel
	if cfg.PerPriorityRate > 0 {
		bus.limiters = make(map[uint8]*rate.Limiter)
	}
	return bus
}

// limiterFor returns (creating if necessary) the rate limiter governing
// cmd's priority, or nil if no rate limit is configured.
func (b *MemoryBus) limiterFor(priority uint8) *rate.Limiter {
	if b.limiters == nil {
		return nil
	}
	b.limiterMu.Lock()
	defer b.limiterMu.Unlock()
	lim, ok := b.limiters[priority]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(b.cfg.PerPriorityRate), b.cfg.PerPriorityBurst)
		b.limiters[priority] = lim
	}
	return lim
}

// Send enqueues the given command and waits for the acknowledgement.
func (b *MemoryBus) Send(ctx context.Context, cmd Command) (Acknowledgement, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cmd.Kind == "" {
		return Acknowledgement{}, errs.New("controlbus/send", errs.CodeInvalid, errs.WithMessage("command kind required"))
	}
	if lim := b.limiterFor(cmd.Priority); lim != nil && !lim.Allow() {
		return Acknowledgement{}, errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("command rate limit exceeded"))
	}
	reply := make(chan Acknowledgement, 1)
	message := Message{Command: cmd, Reply: reply}

	b.mu.RLock()
	consumers := append([]*consumer(nil), b.consumers...)
	b.mu.RUnlock()
	if len(consumers) == 0 {
		return Acknowledgement{}, errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("no consumers available"))
	}

	for _, con := range consumers {
		if con == nil || con.ctx.Err() != nil {
			continue
		}
		if err := b.enqueue(ctx, con, message); err != nil {
			return Acknowledgement{}, err
		}
		return b.awaitAck(ctx, reply)
	}
	return Acknowledgement{}, errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("no active consumers"))
}

func (b *MemoryBus) awaitAck(ctx context.Context, reply <-chan Acknowledgement) (Acknowledgement, error) {
	select {
	case <-ctx.Done():
		return Acknowledgement{}, fmt.Errorf("await acknowledgement context: %w", ctx.Err())
	case <-b.ctx.Done():
		return Acknowledgement{}, errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	case ack := <-reply:
		return ack, nil
	}
}

// Consume registers a control bus consumer backed by a bounded queue.
func (b *MemoryBus) Consume(ctx context.Context) (<-chan Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	con := new(consumer)
	con.ctx = ctx
	con.cancel = cancel
	con.ch = make(chan Message, b.cfg.BufferSize)

	b.mu.Lock()
	b.consumers = append(b.consumers, con)
	b.mu.Unlock()

	go b.observe(con)
	return con.ch, nil
}

// Close shuts down the bus.
func (b *MemoryBus) Close() {
	b.once.Do(func() {
		b.cancel()
		b.mu.Lock()
		for _, con := range b.consumers {
			if con != nil {
				con.close()
			}
		}
		b.consumers = nil
		b.mu.Unlock()
	})
}

func (b *MemoryBus) observe(con *consumer) {
	<-con.ctx.Done()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.consumers {
		if candidate == con {
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
			break
		}
	}
	con.close()
}

func (b *MemoryBus) enqueue(ctx context.Context, con *consumer, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// consumer closed channel concurrently; treat as unavailable.
			err = errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("consumer closed"))
		}
	}()
	select {
	case <-b.ctx.Done():
		return errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	case <-ctx.Done():
		return fmt.Errorf("enqueue context: %w", ctx.Err())
	case <-con.ctx.Done():
		return errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("consumer closed"))
	case con.ch <- msg:
		return nil
	default:
		return errs.New("controlbus/send", errs.CodeUnavailable, errs.WithMessage("consumer queue full"))
	}
}

func (c *consumer) close() {
	c.once.Do(func() {
		c.cancel()
		close(c.ch)
	})
}
