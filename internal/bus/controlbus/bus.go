// Package controlbus provides in-memory control plane messaging primitives
// used to deliver cooperative lifecycle commands to a running scheduler.
package controlbus

import (
	"context"

	"github.com/google/uuid"
)

// CommandKind enumerates the cooperative lifecycle requests a consumer
// (typically an active-object scheduler) can be asked to honor between
// run-to-completion steps.
type CommandKind string

const (
	// CommandPauseAO asks the scheduler to stop dispatching to one active
	// object until a matching CommandResumeAO arrives.
	CommandPauseAO CommandKind = "pause_ao"
	// CommandResumeAO lifts a prior CommandPauseAO.
	CommandResumeAO CommandKind = "resume_ao"
	// CommandTerminateAO asks the scheduler to stop dispatching to an active
	// object for good after its in-flight step; events left in its queue
	// are never dispatched.
	CommandTerminateAO CommandKind = "terminate_ao"
	// CommandShutdown asks the scheduler to stop its run loop after the
	// current step and return.
	CommandShutdown CommandKind = "shutdown"
)

// Command is a single lifecycle request addressed to an active object by
// priority, or to the scheduler as a whole when Priority is zero.
type Command struct {
	Kind     CommandKind
	Priority uint8
	ID       string
}

// NewCommand builds a Command with a fresh correlation ID, so callers that
// only care about fire-and-forget delivery don't need to mint their own.
func NewCommand(kind CommandKind, priority uint8) Command {
	return Command{Kind: kind, Priority: priority, ID: uuid.NewString()}
}

// Acknowledgement reports whether a command was honored.
type Acknowledgement struct {
	ID      string
	Success bool
	Err     error
}

// Message encapsulates a command and reply channel for consumers.
type Message struct {
	Command Command
	Reply   chan<- Acknowledgement
}

// Bus allows control-plane commands to be distributed to interested consumers.
type Bus interface {
	Send(ctx context.Context, cmd Command) (Acknowledgement, error)
	Consume(ctx context.Context) (<-chan Message, error)
	Close()
}

// MemoryConfig configures the in-memory control bus buffer sizing and, when
// PerPriorityRate is positive, a per-priority send rate limit so a
// misbehaving controller can't flood a single active object with
// pause/resume/terminate churn.
type MemoryConfig struct {
	BufferSize       int
	PerPriorityRate  float64
	PerPriorityBurst int
}

func (c MemoryConfig) normalize() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 1
	}
	if c.PerPriorityRate > 0 && c.PerPriorityBurst <= 0 {
		c.PerPriorityBurst = 1
	}
	return c
}
