package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoolRejectsNonPositiveWorkers(t *testing.T) {
	if _, err := NewPool(0, 1); err == nil {
		t.Fatalf("expected error for zero workers")
	}
}

func TestSubmitRunsTask(t *testing.T) {
	p, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	var ran atomic.Bool
	done := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) error {
		ran.Store(true)
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task did not run")
	}
	if !ran.Load() {
		t.Fatalf("expected task to run")
	}
}

func TestSubmitBackpressureWhenSaturated(t *testing.T) {
	p, err := NewPool(1, 0)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	block := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	// The single worker is now blocked and the unbuffered queue is full.
	if err := p.Submit(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected backpressure error on saturated pool")
	}
	close(block)
}

func TestSubmitWithRetrySucceedsAfterCapacityFrees(t *testing.T) {
	p, err := NewPool(1, 0)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	block := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var ran atomic.Bool
	if err := p.SubmitWithRetry(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	}, 10*time.Millisecond); err != nil {
		t.Fatalf("SubmitWithRetry: %v", err)
	}

	deadline := time.After(time.Second)
	for !ran.Load() {
		select {
		case <-deadline:
			t.Fatalf("expected retried task to eventually run")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShutdownWaitsForInFlightTasks(t *testing.T) {
	p, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	var completed atomic.Bool
	if err := p.Submit(context.Background(), func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		completed.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !completed.Load() {
		t.Fatalf("expected in-flight task to complete before Shutdown returns")
	}
}
