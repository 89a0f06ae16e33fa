package rkhtimer

import "github.com/coachpo/rkh/pkg/rkhevent"

// Target receives the event a timer posts on expiry. pkg/ao's active object
// queue satisfies this directly.
type Target interface {
	PostFIFO(ev *rkhevent.Event, assert func(msg string))
}

// Metrics receives wheel occupancy updates. A nil Metrics is valid.
type Metrics interface {
	SetArmedCount(n int)
}

// Wheel owns the single active-timer list and is the sole timer lifecycle
// manager (C3). Tick is the only time source; it must be invoked from
// exactly one caller under the framework critical section.
type Wheel struct {
	head    *Timer
	tail    *Timer
	armed   int
	metrics Metrics
}

// NewWheel constructs an empty wheel. metrics may be nil.
func NewWheel(metrics Metrics) *Wheel {
	return &Wheel{metrics: metrics}
}

// Start arms t to fire after nticks ticks, targeting target with the given
// signal and payload carried by the posted event. period of zero means
// one-shot; a non-zero period re-arms the timer with that many ticks after
// every expiry. Starting an already-active timer re-positions it at its new
// delay without duplicating the list entry.
func (w *Wheel) Start(t *Timer, target Target, nticks, period int) {
	if t == nil {
		panic("rkhtimer: nil timer")
	}
	if nticks <= 0 {
		panic("rkhtimer: nticks must be positive")
	}
	if period < 0 {
		panic("rkhtimer: period must be non-negative")
	}
	if t.active {
		w.unlink(t)
	}
	t.ticksLeft = nticks
	t.period = period
	t.target = target
	w.link(t)
	w.reportArmed()
}

// Stop deactivates t, reporting whether it was previously active. Stop is
// idempotent: calling it on an already-inactive timer is a safe no-op that
// returns false.
func (w *Wheel) Stop(t *Timer) bool {
	if t == nil || !t.active {
		return false
	}
	w.unlink(t)
	w.reportArmed()
	return true
}

// Tick advances every armed timer by one unit, posting the configured event
// for each timer that reaches zero in this call, in list order (insertion
// order), and either retiring or reloading it.
func (w *Wheel) Tick(assert func(msg string)) {
	// Snapshot the expiring set before posting: expiry handlers may start or
	// stop other timers, and a post can reach a queue whose state we must
	// not observe mid-mutation of our own list.
	var expired []*Timer
	for cur := w.head; cur != nil; cur = cur.next {
		cur.ticksLeft--
		if cur.ticksLeft <= 0 {
			expired = append(expired, cur)
		}
	}

	for _, t := range expired {
		target := t.target
		w.unlink(t)
		if t.period > 0 {
			t.ticksLeft = t.period
			w.link(t)
		}
		if target != nil {
			ev := rkhevent.NewStatic(t.Signal, t.Payload)
			target.PostFIFO(ev, assert)
		}
	}
	if len(expired) > 0 {
		w.reportArmed()
	}
}

// ArmedCount returns the number of currently active timers.
func (w *Wheel) ArmedCount() int { return w.armed }

func (w *Wheel) link(t *Timer) {
	t.active = true
	t.prev = w.tail
	t.next = nil
	if w.tail != nil {
		w.tail.next = t
	} else {
		w.head = t
	}
	w.tail = t
	w.armed++
}

func (w *Wheel) unlink(t *Timer) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		w.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		w.tail = t.prev
	}
	t.prev = nil
	t.next = nil
	t.active = false
	w.armed--
}

func (w *Wheel) reportArmed() {
	if w.metrics != nil {
		w.metrics.SetArmedCount(w.armed)
	}
}
