// Package trace implements the observation hooks (C7): synchronous callbacks
// emitted inline from the dispatch engine, filterable by category and by AO
// priority and event signal. Only the dispatch engine emits records through
// HookSet; the pool, queue, timer, and scheduler do not.
package trace

import (
	"github.com/coachpo/rkh/pkg/hsm"
	"github.com/coachpo/rkh/pkg/rkhevent"
)

// Category identifies which subsystem emitted a Record.
type Category string

const (
	CategoryPool      Category = "pool"
	CategoryQueue     Category = "queue"
	CategoryAO        Category = "ao"
	CategorySM        Category = "sm"
	CategoryTimer     Category = "timer"
	CategoryFramework Category = "framework"
)

// Record is a single observation point. Fields beyond Category/AO/Signal are
// populated only where relevant to the event that produced the record.
type Record struct {
	Category   Category
	AOName     string
	AOPriority uint16
	Signal     rkhevent.Signal
	SourceName string
	TargetName string
	EntryCount int
	ExitCount  int
	Outcome    hsm.Outcome
}

// Filter restricts which records a Sink receives. A zero-value Filter
// accepts everything.
type Filter struct {
	Categories map[Category]bool // nil/empty means all categories pass
	MinPriority uint16
	Signals    map[rkhevent.Signal]bool // nil/empty means all signals pass
}

// Matches reports whether r passes f.
func (f Filter) Matches(r Record) bool {
	if len(f.Categories) > 0 && !f.Categories[r.Category] {
		return false
	}
	if r.AOPriority < f.MinPriority {
		return false
	}
	if len(f.Signals) > 0 && !f.Signals[r.Signal] {
		return false
	}
	return true
}

// Sink receives filtered records. Implementations must execute in bounded
// time and must not call back into dispatch/post/alloc.
type Sink interface {
	Observe(r Record)
}

// HookSet adapts hsm.Hooks to a set of filtered Sinks. It implements only
// hsm.Hooks and emits sm-category records; the pool, queue, timer, and
// scheduler emit no records through it.
type HookSet struct {
	sinks []filteredSink
}

type filteredSink struct {
	filter Filter
	sink   Sink
}

// NewHookSet constructs an empty hook set. Add sinks with AddSink.
func NewHookSet() *HookSet {
	return &HookSet{}
}

// AddSink registers sink to receive records matching filter.
func (h *HookSet) AddSink(filter Filter, sink Sink) {
	h.sinks = append(h.sinks, filteredSink{filter: filter, sink: sink})
}

func (h *HookSet) emit(r Record) {
	for _, fs := range h.sinks {
		if fs.filter.Matches(r) {
			fs.sink.Observe(r)
		}
	}
}

// OnExit implements hsm.Hooks.
func (h *HookSet) OnExit(ao *hsm.AO, s *hsm.State) {
	h.emit(Record{Category: CategorySM, AOName: ao.Name, SourceName: s.Name, ExitCount: 1})
}

// OnEntry implements hsm.Hooks.
func (h *HookSet) OnEntry(ao *hsm.AO, s *hsm.State) {
	h.emit(Record{Category: CategorySM, AOName: ao.Name, TargetName: s.Name, EntryCount: 1})
}

// OnTransitionAction implements hsm.Hooks.
func (h *HookSet) OnTransitionAction(ao *hsm.AO, action string) {
	h.emit(Record{Category: CategorySM, AOName: ao.Name, SourceName: action})
}

// OnOutcome implements hsm.Hooks.
func (h *HookSet) OnOutcome(ao *hsm.AO, ev *rkhevent.Event, outcome hsm.Outcome) {
	signal := rkhevent.SignalNone
	if ev != nil {
		signal = ev.Signal
	}
	h.emit(Record{Category: CategorySM, AOName: ao.Name, Signal: signal, Outcome: outcome})
}

var _ hsm.Hooks = (*HookSet)(nil)
