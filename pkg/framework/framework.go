// Package framework implements the framework lifecycle (C8): init, run,
// exit, the abstract critical-section primitive shared by every other
// component, and the cooperative control-plane wiring used to
// pause/resume/terminate active objects from outside the scheduler loop.
package framework

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/rkh/internal/bus/controlbus"
	"github.com/coachpo/rkh/pkg/ao"
	"github.com/coachpo/rkh/pkg/rkhtimer"
)

// CriticalSection is the abstract enter/exit pair the framework requires
// only to nest correctly and to prevent producer contexts (interrupts,
// other AOs) from racing the scheduler loop. ao.Scheduler itself implements
// this interface over its own mutex, and is the default: the ready set and
// per-AO queues the scheduler already guards are exactly what Tick's wheel
// drive and every producer Post mutate, so sharing one lock between them is
// both necessary and sufficient. MutexCriticalSection is provided for a
// target integration that genuinely needs a critical section independent of
// the scheduler (e.g. one also guarding non-scheduler state).
type CriticalSection interface {
	Enter()
	Exit()
}

// MutexCriticalSection implements CriticalSection with a plain sync.Mutex.
type MutexCriticalSection struct {
	mu sync.Mutex
}

func (m *MutexCriticalSection) Enter() { m.mu.Lock() }
func (m *MutexCriticalSection) Exit()  { m.mu.Unlock() }

// Hooks are the integration points named in the external-interface
// contract: on_start, on_idle, on_tick, on_exit, and assert. Any may be nil.
// The framework calls OnStart, OnTick, OnExit, and Assert (the latter from
// Tick only); it never calls OnIdle. The scheduler's idle hook is
// ao.Config.Idle.
type Hooks struct {
	OnStart func()
	OnIdle  func()
	OnTick  func()
	OnExit  func()
	Assert  func(msg string)
}

// Framework owns the critical section, the scheduler, the timing wheel, and
// the control bus used to deliver cooperative pause/resume/terminate/
// shutdown commands into the scheduler loop between RTC steps.
type Framework struct {
	cs        CriticalSection
	scheduler *ao.Scheduler
	wheel     *rkhtimer.Wheel
	bus       controlbus.Bus
	hooks     Hooks
	exitOnce  sync.Once
	cancelBus context.CancelFunc
	busCtx    context.Context
	lifecycle conc.WaitGroup
}

// Config bundles what Init needs to wire a Framework together.
type Config struct {
	Scheduler       *ao.Scheduler
	Wheel           *rkhtimer.Wheel
	Bus             controlbus.Bus
	CriticalSection CriticalSection
	Hooks           Hooks
}

// Init zeroes framework state and binds the provided collaborators. A nil
// CriticalSection defaults to cfg.Scheduler itself, since the scheduler
// already holds the one lock that must serialize Tick's wheel-driven posts
// against Step's dequeue; a nil Bus disables the cooperative control plane
// (pause/resume/terminate become unavailable from outside the owning
// goroutine).
func Init(cfg Config) *Framework {
	if cfg.Scheduler == nil {
		panic("framework: Config.Scheduler must not be nil")
	}
	cs := cfg.CriticalSection
	if cs == nil {
		cs = cfg.Scheduler
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Framework{
		cs:        cs,
		scheduler: cfg.Scheduler,
		wheel:     cfg.Wheel,
		bus:       cfg.Bus,
		hooks:     cfg.Hooks,
		busCtx:    ctx,
		cancelBus: cancel,
	}
	return f
}

// EnterCritical serializes producer-context mutation of shared structures
// (pools, ready set, queues, timer list) against the scheduler loop.
func (f *Framework) EnterCritical() { f.cs.Enter() }

// ExitCritical releases the critical section entered by EnterCritical.
func (f *Framework) ExitCritical() { f.cs.Exit() }

// Tick advances the timing wheel by one unit under the critical section, as
// required: tick must be serialized against Start/Stop.
func (f *Framework) Tick() {
	if f.wheel == nil {
		return
	}
	f.EnterCritical()
	defer f.ExitCritical()
	f.wheel.Tick(f.hooks.Assert)
	if f.hooks.OnTick != nil {
		f.hooks.OnTick()
	}
}

// Run starts the control-bus consumer (if a bus was configured) and drives
// the cooperative scheduler loop until Exit is called or every registered
// active object has been terminated.
func (f *Framework) Run() {
	if f.hooks.OnStart != nil {
		f.hooks.OnStart()
	}
	if f.bus != nil {
		f.lifecycle.Go(f.consumeControlCommands)
	}
	f.scheduler.Run()
}

// Exit stops the scheduler loop, the control-bus consumer, and runs the
// on_exit hook exactly once.
func (f *Framework) Exit() {
	f.exitOnce.Do(func() {
		f.scheduler.Stop()
		f.cancelBus()
		if f.bus != nil {
			f.bus.Close()
		}
		f.lifecycle.Wait()
		if f.hooks.OnExit != nil {
			f.hooks.OnExit()
		}
	})
}

// consumeControlCommands runs as a conc.WaitGroup goroutine: a panic here is
// captured and re-raised from Exit's Wait call rather than crashing the
// process silently.
func (f *Framework) consumeControlCommands() {
	commands, err := f.bus.Consume(f.busCtx)
	if err != nil {
		return
	}
	for {
		select {
		case <-f.busCtx.Done():
			return
		case msg, ok := <-commands:
			if !ok {
				return
			}
			f.handleCommand(msg)
		}
	}
}

func (f *Framework) handleCommand(msg controlbus.Message) {
	ack := controlbus.Acknowledgement{ID: msg.Command.ID, Success: true}
	switch msg.Command.Kind {
	case controlbus.CommandPauseAO:
		f.scheduler.PauseHandle(uint16(msg.Command.Priority))
	case controlbus.CommandResumeAO:
		f.scheduler.ResumeHandle(uint16(msg.Command.Priority))
	case controlbus.CommandTerminateAO:
		f.scheduler.TerminateHandle(uint16(msg.Command.Priority))
	case controlbus.CommandShutdown:
		go f.Exit()
	default:
		ack.Success = false
	}
	if msg.Reply != nil {
		msg.Reply <- ack
	}
}
