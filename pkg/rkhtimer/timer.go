// Package rkhtimer implements the timing wheel (C3): a single list of armed
// timers driven by one external Tick call, with no per-timer heap allocation
// beyond the Timer struct itself.
package rkhtimer

import "github.com/coachpo/rkh/pkg/rkhevent"

// Timer is an intrusive node in a Wheel's active-timer list. Applications
// embed or construct a Timer directly; the wheel never allocates on Start,
// Stop, or Tick. Fields other than Signal/Payload are owned by the wheel and
// must not be touched by callers once the timer has been started.
type Timer struct {
	Signal  rkhevent.Signal
	Payload any

	ticksLeft int
	period    int
	active    bool
	target    Target
	prev      *Timer
	next      *Timer
}

// IsActive reports whether the timer is currently armed.
func (t *Timer) IsActive() bool { return t != nil && t.active }
