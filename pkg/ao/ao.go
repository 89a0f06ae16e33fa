// Package ao implements the cooperative active-object scheduler (C6): a
// fixed-priority, non-preemptive run-to-completion loop over AOs, each
// pairing a hierarchical state machine with a private bounded event queue.
package ao

import (
	"sort"
	"sync"

	"github.com/coachpo/rkh/errs"
	"github.com/coachpo/rkh/pkg/hsm"
	"github.com/coachpo/rkh/pkg/rkhevent"
	"github.com/coachpo/rkh/pkg/rkhset"
)

// lifecycleState tracks the cooperative pause/resume/terminate flag checked
// only between RTC steps, never inside one — preserving run-to-completion.
type lifecycleState int

const (
	lifecycleRunning lifecycleState = iota
	lifecyclePaused
	lifecycleTerminated
)

// Handle identifies a registered active object to the scheduler's control
// surface (pause/resume/terminate), returned by Register.
type Handle struct {
	priority uint16
	sched    *Scheduler
}

// Pause requests the AO stop being considered for dispatch after its
// in-flight step (if any) completes. Idempotent.
func (h Handle) Pause() { h.sched.setLifecycle(h.priority, lifecyclePaused) }

// Resume re-admits a paused AO to scheduling. Idempotent.
func (h Handle) Resume() { h.sched.setLifecycle(h.priority, lifecycleRunning) }

// Terminate permanently removes the AO from scheduling. Idempotent;
// terminated AOs cannot be resumed.
func (h Handle) Terminate() { h.sched.setLifecycle(h.priority, lifecycleTerminated) }

type registeredAO struct {
	priority  uint16
	instance  *hsm.AO
	queue     *rkhevent.Queue
	lifecycle lifecycleState
}

// IdleHook is invoked when no AO has a pending event. It may block (sleep,
// wait for interrupt); the scheduler re-reads the ready set after it
// returns.
type IdleHook func()

// Scheduler owns the priority-ready set and the registered AOs, and drives
// the cooperative dispatch loop (§4.6 steps 1-4).
type Scheduler struct {
	mu       sync.Mutex
	ready    rkhset.Set
	aos      map[uint16]*registeredAO
	events   *rkhevent.Manager
	hooks    hsm.Hooks
	idle     IdleHook
	assert   func(msg string)
	stopping bool
}

// Config bundles the collaborators a Scheduler needs.
type Config struct {
	Events *rkhevent.Manager
	Hooks  hsm.Hooks
	Idle   IdleHook
	Assert func(msg string)
}

// NewScheduler constructs an empty scheduler. cfg.Events must not be nil;
// cfg.Idle defaults to a no-op if nil.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Events == nil {
		panic("ao: Config.Events must not be nil")
	}
	if cfg.Idle == nil {
		cfg.Idle = func() {}
	}
	return &Scheduler{
		aos:    make(map[uint16]*registeredAO),
		events: cfg.Events,
		hooks:  cfg.Hooks,
		idle:   cfg.Idle,
		assert: cfg.Assert,
	}
}

// Register binds state machine instance to priority with a queue of the
// given capacity, runs its initial transition, and returns a handle for
// cooperative lifecycle control. priority must be unique and within
// rkhset.MaxPriority.
func (s *Scheduler) Register(instance *hsm.AO, priority uint16, queueCapacity int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.aos[priority]; exists {
		return Handle{}, errs.New("ao/register", errs.CodeConflict, errs.WithMessage("priority already registered"))
	}

	ra := &registeredAO{priority: priority, instance: instance}
	ra.queue = rkhevent.NewQueue(queueCapacity, s.events,
		func() {
			if ra.lifecycle == lifecycleRunning {
				s.ready.MarkReady(priority)
			}
		},
		func() { s.ready.ClearReady(priority) },
	)
	s.aos[priority] = ra

	hsm.Init(instance, s.hooks)
	return Handle{priority: priority, sched: s}, nil
}

// Post enqueues ev on the FIFO path of the AO registered at priority. The
// enqueue runs under the scheduler's own critical section, so it is safe to
// call from any producer context without external synchronization.
func (s *Scheduler) Post(priority uint16, ev *rkhevent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.aos[priority]
	if !ok {
		return errs.New("ao/post", errs.CodeNotFound, errs.WithMessage("priority not registered"))
	}
	ra.queue.PostFIFO(ev, s.assert)
	return nil
}

// PostLIFO enqueues ev ahead of any pending FIFO entries for the AO
// registered at priority. Overflow is fatal under the default policy, per
// PostFIFO.
func (s *Scheduler) PostLIFO(priority uint16, ev *rkhevent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.aos[priority]
	if !ok {
		return errs.New("ao/post", errs.CodeNotFound, errs.WithMessage("priority not registered"))
	}
	ra.queue.PostLIFO(ev, s.assert)
	return nil
}

// TryPost is the non-fatal variant of Post: it returns a queue-full error
// instead of invoking the assert hook when the target AO's queue is at
// capacity.
func (s *Scheduler) TryPost(priority uint16, ev *rkhevent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.aos[priority]
	if !ok {
		return errs.New("ao/post", errs.CodeNotFound, errs.WithMessage("priority not registered"))
	}
	return ra.queue.TryPostFIFO(ev)
}

// TryPostLIFO is the non-fatal variant of PostLIFO.
func (s *Scheduler) TryPostLIFO(priority uint16, ev *rkhevent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.aos[priority]
	if !ok {
		return errs.New("ao/post", errs.CodeNotFound, errs.WithMessage("priority not registered"))
	}
	return ra.queue.TryPostLIFO(ev)
}

func (s *Scheduler) lookup(priority uint16) (*registeredAO, error) {
	s.mu.Lock()
	ra, ok := s.aos[priority]
	s.mu.Unlock()
	if !ok {
		return nil, errs.New("ao/post", errs.CodeNotFound, errs.WithMessage("priority not registered"))
	}
	return ra, nil
}

// Publish posts a static event carrying signal and payload to every
// non-terminated AO whose current state, or one of its ancestors, has a
// transition triggered by signal (see subscribes). Order of delivery is
// ascending priority, and every post runs under the scheduler's lock.
// Delivery uses the non-fatal try-post path: a publish that finds one
// subscriber's queue full skips that subscriber rather than aborting the
// whole broadcast.
func (s *Scheduler) Publish(signal rkhevent.Signal, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subscribersLocked(signal)
	sort.Slice(subs, func(i, j int) bool { return subs[i].priority < subs[j].priority })

	for _, ra := range subs {
		ev := rkhevent.NewStatic(signal, payload)
		ra.queue.TryPostFIFO(ev)
	}
}

// Enter and Exit implement framework.CriticalSection by acquiring the same
// mutex Step, Post, and every other scheduler operation use. This lets the
// framework drive the timing wheel and any other producer path through the
// scheduler's own lock instead of a second, unrelated one — the ready set
// and per-AO queues only ever have one lock protecting them.
func (s *Scheduler) Enter() { s.mu.Lock() }
func (s *Scheduler) Exit()  { s.mu.Unlock() }

// QueueFor exposes the raw per-AO queue as an rkhtimer.Target, letting a
// Wheel post directly to a registered AO on timer expiry. Callers driving a
// Wheel against this queue from outside Step must hold the scheduler's own
// critical section (Enter/Exit) for the duration of the post, exactly as
// pkg/framework's Tick does.
func (s *Scheduler) QueueFor(priority uint16) (*rkhevent.Queue, bool) {
	ra, err := s.lookup(priority)
	if err != nil {
		return nil, false
	}
	return ra.queue, true
}

func (s *Scheduler) subscribersLocked(signal rkhevent.Signal) []*registeredAO {
	var subs []*registeredAO
	for _, ra := range s.aos {
		if ra.lifecycle == lifecycleTerminated {
			continue
		}
		if subscribes(ra.instance, signal) {
			subs = append(subs, ra)
		}
	}
	return subs
}

// subscribes reports whether any state in an AO's current ancestor chain
// declares a transition on signal. There is no separate subscription table:
// interest is derived from the state machine's own transition tables.
func subscribes(instance *hsm.AO, signal rkhevent.Signal) bool {
	for st := instance.Current; st != nil; st = st.Parent {
		for _, t := range st.Transitions {
			if t.Trigger == signal {
				return true
			}
		}
	}
	return false
}

// setLifecycle transitions an AO's cooperative lifecycle flag. A paused AO's
// ready bit is cleared so Highest() never selects it, regardless of how
// many events remain queued; resuming restores the bit if the queue is
// still non-empty. This keeps selection O(1) without the scheduler ever
// needing to skip past an ineligible priority.
func (s *Scheduler) setLifecycle(priority uint16, state lifecycleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.aos[priority]
	if !ok || ra.lifecycle == lifecycleTerminated {
		return
	}
	switch state {
	case lifecyclePaused:
		if ra.lifecycle == lifecycleRunning {
			ra.lifecycle = lifecyclePaused
			s.ready.ClearReady(priority)
		}
	case lifecycleRunning:
		if ra.lifecycle == lifecyclePaused {
			ra.lifecycle = lifecycleRunning
			if !ra.queue.IsEmpty() {
				s.ready.MarkReady(priority)
			}
		}
	case lifecycleTerminated:
		ra.lifecycle = lifecycleTerminated
		s.ready.ClearReady(priority)
	}
}

// PauseHandle pauses the AO registered at priority directly, without
// requiring callers to have retained its Handle (used by control-plane
// consumers that address AOs by priority alone).
func (s *Scheduler) PauseHandle(priority uint16) { s.setLifecycle(priority, lifecyclePaused) }

// ResumeHandle resumes the AO registered at priority directly.
func (s *Scheduler) ResumeHandle(priority uint16) { s.setLifecycle(priority, lifecycleRunning) }

// TerminateHandle terminates the AO registered at priority directly.
func (s *Scheduler) TerminateHandle(priority uint16) { s.setLifecycle(priority, lifecycleTerminated) }

// Stop requests the Run loop to return after its current idle or dispatch
// iteration.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

// Step performs exactly one cooperative scheduling decision: if an eligible
// AO is ready, dequeue and dispatch one event and recycle it, returning
// true. If none are ready, it calls the idle hook and returns false. This
// is the pure, scheduler-loop-independent unit Run repeatedly calls,
// exposed separately so tests can drive individual steps.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	priority := s.ready.Highest()
	if priority == rkhset.NoneReady {
		s.mu.Unlock()
		s.idle()
		return false
	}
	ra := s.aos[uint16(priority)]
	ev := ra.queue.Get()
	s.mu.Unlock()

	if ev == nil {
		return false
	}
	hsm.Dispatch(ra.instance, ev, s.hooks)
	s.mu.Lock()
	s.events.Recycle(ev)
	s.mu.Unlock()
	return true
}

// Run drives the cooperative loop until Stop is called or every registered
// AO has been terminated.
func (s *Scheduler) Run() {
	for {
		s.mu.Lock()
		stop := s.stopping
		if !stop && len(s.aos) > 0 {
			stop = true
			for _, ra := range s.aos {
				if ra.lifecycle != lifecycleTerminated {
					stop = false
					break
				}
			}
		}
		s.mu.Unlock()
		if stop {
			return
		}
		s.Step()
	}
}
