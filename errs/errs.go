// Package errs provides the structured error envelope used across the
// kernel: resource-exhaustion and try-operation failures as described by the
// framework's error taxonomy.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category drawn from the framework's taxonomy of
// resource exhaustion and try-operation failures. Precondition violations
// and HSM semantic outcomes are deliberately not represented here: the
// former route through the assert hook, the latter are returned directly as
// dispatch outcomes rather than wrapped as errors.
type Code string

const (
	// CodeOutOfMemory indicates an event pool had no free block of
	// sufficient size to satisfy an allocation.
	CodeOutOfMemory Code = "out_of_memory"
	// CodeQueueFull indicates a try-post found the target queue at capacity.
	CodeQueueFull Code = "queue_full"
	// CodeInvalid indicates invalid input supplied by the caller (a
	// malformed configuration, a zero capacity, a nil factory).
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a lookup against an unregistered pool, active
	// object, or subscription failed.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a concurrent mutation conflict (double put,
	// duplicate priority registration).
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the component is shutting down or its
	// buffer is saturated and cannot currently service the request.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout indicates a bounded wait elapsed before the operation
	// could complete.
	CodeTimeout Code = "timeout"
)

// E captures structured error information produced across the kernel.
type E struct {
	Component string
	Code      Code
	Message   string
	Metadata  map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given component and code.
// Component identifies the subsystem raising the error (for example
// "rkhevent/alloc" or "ao/post_fifo").
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithMetadata merges the provided metadata into the error envelope.
func WithMetadata(meta map[string]string) Option {
	return func(e *E) {
		if len(meta) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			e.Metadata[key] = strings.TrimSpace(v)
		}
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "metadata="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target carries the same Code, so callers can match with
// errors.Is(err, errs.New("", errs.CodeOutOfMemory)) without comparing
// component or message.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok || other == nil || e == nil {
		return false
	}
	return e.Code == other.Code
}
