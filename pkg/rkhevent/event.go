// Package rkhevent implements the event lifecycle manager: fixed-block
// allocation pools for dynamic events (C1) and the bounded per-active-object
// event queue (C2).
package rkhevent

import "sync/atomic"

// Signal identifies the kind of an event. The framework treats it as a
// small, opaque integer; applications define their own signal space
// starting at UserSignal.
type Signal uint32

// UserSignal is the first signal value applications may assign to their own
// events; signals below it are reserved for framework-internal use (timer
// expiry, framework lifecycle notifications).
const UserSignal Signal = 16

const (
	// SignalNone is never a valid event signal; zero value sentinel.
	SignalNone Signal = iota
	// SignalEntry is dispatched to a state's entry action path by the HSM
	// engine; it never travels through a queue.
	SignalEntry
	// SignalExit is dispatched to a state's exit action path.
	SignalExit
	// SignalInit is dispatched once, at state-machine initialization.
	SignalInit
)

// staticPool is the sentinel pool tag carried by events that were never
// allocated from a pool and must never be recycled.
const staticPool = -1

// Event is a signal plus an optional payload, a pool tag identifying its
// origin (or staticPool for static events), and a reference count. Dynamic
// events are recycled when their refcount reaches zero; static events are
// never recycled. The invariant per the framework: refcount > 0 while any
// queue or processing context holds the event.
type Event struct {
	Signal  Signal
	Payload any

	poolID   int
	refcount atomic.Int32
	returned atomic.Bool
}

// NewStatic constructs a static event: one that is never pool-allocated and
// whose Recycle call is always a silent no-op.
func NewStatic(signal Signal, payload any) *Event {
	return &Event{Signal: signal, Payload: payload, poolID: staticPool}
}

// IsDynamic reports whether the event originated from a pool and is subject
// to reference counting.
func (e *Event) IsDynamic() bool {
	return e != nil && e.poolID != staticPool
}

// Reset clears the event's fields for pool reuse. Required by
// internal/pool.PooledObject.
func (e *Event) Reset() {
	if e == nil {
		return
	}
	e.Signal = SignalNone
	e.Payload = nil
	e.poolID = staticPool
	e.refcount.Store(0)
}

// SetReturned marks whether the event currently sits on its pool's free
// list. Required by internal/pool.PooledObject.
func (e *Event) SetReturned(v bool) {
	if e == nil {
		return
	}
	e.returned.Store(v)
}

// IsReturned reports whether the event currently sits on its pool's free
// list. Required by internal/pool.PooledObject.
func (e *Event) IsReturned() bool {
	return e != nil && e.returned.Load()
}
