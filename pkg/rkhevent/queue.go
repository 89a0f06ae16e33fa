package rkhevent

import (
	"github.com/coachpo/rkh/errs"
)

// Queue is a bounded ring buffer of event references belonging to a single
// active object. FIFO posts insert at the tail; LIFO posts prepend at the
// head for urgent delivery. Queue is not safe for concurrent use on its own
// — callers must serialize access through the framework critical section,
// exactly as the scheduler and its producers do.
type Queue struct {
	buf         []*Event
	head        int
	count       int
	highWater   int
	refs        *Manager
	onNonEmpty  func()
	onEmptyFrom func()
}

// NewQueue constructs a queue with the given fixed capacity. refs is used to
// bump a dynamic event's reference count on every successful post; it may be
// nil if the queue only ever carries static events. onNonEmpty is invoked
// when a post transitions the queue from empty to non-empty (the scheduler
// wires this to mark the owning active object ready); onEmpty is invoked
// when Get drains the last event (wired to clear the ready bit).
func NewQueue(capacity int, refs *Manager, onNonEmpty, onEmpty func()) *Queue {
	if capacity <= 0 {
		panic("rkhevent: queue capacity must be positive")
	}
	return &Queue{
		buf:         make([]*Event, capacity),
		refs:        refs,
		onNonEmpty:  onNonEmpty,
		onEmptyFrom: onEmpty,
	}
}

// Capacity returns the queue's fixed capacity.
func (q *Queue) Capacity() int { return len(q.buf) }

// Len returns the number of events currently queued.
func (q *Queue) Len() int { return q.count }

// HighWater returns the highest Len the queue has observed since
// construction.
func (q *Queue) HighWater() int { return q.highWater }

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool { return q.count == len(q.buf) }

// IsEmpty reports whether the queue currently holds no events.
func (q *Queue) IsEmpty() bool { return q.count == 0 }

// PostFIFO inserts ev at the tail. The unconditional post treats overflow as
// a fatal precondition violation: callers that cannot guarantee capacity
// should use TryPostFIFO instead.
func (q *Queue) PostFIFO(ev *Event, assert func(msg string)) {
	if !q.tryInsert(ev, false) {
		if assert != nil {
			assert("rkhevent: queue overflow on unconditional post")
			return
		}
		panic("rkhevent: queue overflow on unconditional post")
	}
}

// TryPostFIFO inserts ev at the tail, returning an errs.CodeQueueFull error
// instead of panicking when the queue is at capacity.
func (q *Queue) TryPostFIFO(ev *Event) error {
	if !q.tryInsert(ev, false) {
		return errs.New("rkhevent/post_fifo", errs.CodeQueueFull, errs.WithMessage("queue at capacity"))
	}
	return nil
}

// PostLIFO prepends ev at the head for urgent delivery, ahead of any
// previously posted FIFO entries.
func (q *Queue) PostLIFO(ev *Event, assert func(msg string)) {
	if !q.tryInsert(ev, true) {
		if assert != nil {
			assert("rkhevent: queue overflow on unconditional post")
			return
		}
		panic("rkhevent: queue overflow on unconditional post")
	}
}

// TryPostLIFO prepends ev at the head, returning an error instead of
// panicking when the queue is at capacity.
func (q *Queue) TryPostLIFO(ev *Event) error {
	if !q.tryInsert(ev, true) {
		return errs.New("rkhevent/post_lifo", errs.CodeQueueFull, errs.WithMessage("queue at capacity"))
	}
	return nil
}

func (q *Queue) tryInsert(ev *Event, front bool) bool {
	if q.count == len(q.buf) {
		return false
	}
	if q.refs != nil {
		q.refs.AddRef(ev)
	}
	wasEmpty := q.count == 0
	if front {
		q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
		q.buf[q.head] = ev
	} else {
		tail := (q.head + q.count) % len(q.buf)
		q.buf[tail] = ev
	}
	q.count++
	if q.count > q.highWater {
		q.highWater = q.count
	}
	if wasEmpty && q.onNonEmpty != nil {
		q.onNonEmpty()
	}
	return true
}

// Get removes and returns the event at the head, or nil if the queue is
// empty. The caller becomes the event's holder; refcount is left unchanged
// (the reference transferred by the post is now owned by the caller).
func (q *Queue) Get() *Event {
	if q.count == 0 {
		return nil
	}
	ev := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	if q.count == 0 && q.onEmptyFrom != nil {
		q.onEmptyFrom()
	}
	return ev
}
