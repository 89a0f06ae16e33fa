package controlbus

import (
	"context"
	"testing"
	"time"
)

func TestNewMemoryBus(t *testing.T) {
	cfg := MemoryConfig{BufferSize: 10}
	bus := NewMemoryBus(cfg)

	if bus == nil {
		t.Fatal("expected non-nil bus")
	}

	bus.Close()
}

func TestMemoryBusSendNoConsumers(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10})
	defer bus.Close()

	ctx := context.Background()
	cmd := Command{
		Kind: CommandPauseAO,
		ID:   "cmd-1",
	}

	_, err := bus.Send(ctx, cmd)
	if err == nil {
		t.Error("expected error when no consumers available")
	}
}

func TestMemoryBusSendEmptyKind(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10})
	defer bus.Close()

	ctx := context.Background()
	cmd := Command{
		Kind: "", // Empty
	}

	_, err := bus.Send(ctx, cmd)
	if err == nil {
		t.Error("expected error for empty command kind")
	}
}

func TestMemoryBusSendAndReceive(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10})
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Start consumer
	msgCh, err := bus.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	// Consumer goroutine
	go func() {
		select {
		case msg := <-msgCh:
			if msg.Command.Kind != CommandPauseAO {
				t.Errorf("expected pause command, got %s", msg.Command.Kind)
			}
			// Send acknowledgement
			msg.Reply <- Acknowledgement{
				ID:      msg.Command.ID,
				Success: true,
			}
		case <-time.After(1 * time.Second):
			t.Error("consumer timeout waiting for message")
		}
	}()

	// Send command
	cmd := Command{
		Kind: CommandPauseAO,
		ID:   "cmd-1",
	}

	ack, err := bus.Send(ctx, cmd)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !ack.Success {
		t.Error("expected successful acknowledgement")
	}
	if ack.ID != "cmd-1" {
		t.Errorf("expected ack ID cmd-1, got %s", ack.ID)
	}
}

func TestMemoryBusConsumeMultiple(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10})
	defer bus.Close()

	ctx := context.Background()

	// Start first consumer
	ch1, err1 := bus.Consume(ctx)
	if err1 != nil {
		t.Fatalf("Consume 1 error = %v", err1)
	}

	// Start second consumer
	ch2, err2 := bus.Consume(ctx)
	if err2 != nil {
		t.Fatalf("Consume 2 error = %v", err2)
	}

	if ch1 == nil || ch2 == nil {
		t.Error("expected non-nil channels")
	}
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10})

	ctx := context.Background()
	msgCh, err := bus.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	bus.Close()

	// Channel should be closed
	select {
	case _, ok := <-msgCh:
		if ok {
			t.Error("expected channel to be closed after bus close")
		}
	case <-time.After(100 * time.Millisecond):
		// Expected
	}
}

func TestNewCommandGeneratesUniqueIDs(t *testing.T) {
	a := NewCommand(CommandPauseAO, 3)
	b := NewCommand(CommandPauseAO, 3)

	if a.ID == "" || b.ID == "" {
		t.Fatal("expected non-empty correlation IDs")
	}
	if a.ID == b.ID {
		t.Error("expected distinct correlation IDs across commands")
	}
	if a.Priority != 3 || a.Kind != CommandPauseAO {
		t.Errorf("expected kind/priority to round-trip, got %+v", a)
	}
}

func TestMemoryConfigNormalize(t *testing.T) {
	cfg := MemoryConfig{BufferSize: 0}
	normalized := cfg.normalize()

	if normalized.BufferSize <= 0 {
		t.Error("expected positive buffer size after normalization")
	}
}

func TestMemoryBusSendRateLimited(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 10, PerPriorityRate: 1, PerPriorityBurst: 1})
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgCh, err := bus.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	go func() {
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				msg.Reply <- Acknowledgement{ID: msg.Command.ID, Success: true}
			case <-ctx.Done():
				return
			}
		}
	}()

	first := NewCommand(CommandPauseAO, 2)
	if _, err := bus.Send(ctx, first); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	second := NewCommand(CommandPauseAO, 2)
	if _, err := bus.Send(ctx, second); err == nil {
		t.Fatalf("expected second Send on same priority to be rate limited")
	}

	// A different priority has its own limiter bucket.
	other := NewCommand(CommandPauseAO, 9)
	if _, err := bus.Send(ctx, other); err != nil {
		t.Fatalf("Send on distinct priority should not be rate limited: %v", err)
	}
}

func TestMemoryBusSendContextCanceled(t *testing.T) {
	bus := NewMemoryBus(MemoryConfig{BufferSize: 1})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())

	// Start consumer but don't process messages
	_, err := bus.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	// Cancel context immediately
	cancel()

	// Try to send
	cmd := Command{
		Kind: CommandShutdown,
		ID:   "cmd-1",
	}

	_, err = bus.Send(ctx, cmd)
	if err == nil {
		t.Error("expected error when context is canceled")
	}
}
