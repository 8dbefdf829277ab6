package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/logger"
)

func newTestManager(cfg *Config) *Manager {
	return NewManager(ManagerParams{
		Logger: logger.NewNop(),
		Config: cfg,
	})
}

func TestShutdownHookTimeout(t *testing.T) {
	m := newTestManager(&Config{
		Timeout:     time.Second,
		HookTimeout: 50 * time.Millisecond,
	})

	var fastCalled atomic.Bool

	m.RegisterHookWithPriority("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, PriorityNormal)
	m.RegisterHookWithPriority("fast", func(ctx context.Context) error {
		fastCalled.Store(true)
		return nil
	}, PriorityNormal)

	start := time.Now()
	m.Shutdown(context.Background())
	elapsed := time.Since(start)

	if !fastCalled.Load() {
		t.Fatalf("fast hook not executed")
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("shutdown took too long: %v", elapsed)
	}
}

func TestShutdownPriorityOrder(t *testing.T) {
	m := newTestManager(DefaultConfig())

	var mu sync.Mutex
	var order []string
	record := func(name string) Hook {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	m.RegisterHookWithPriority("db", record("db"), PriorityLow)
	m.RegisterHookWithPriority("http", record("http"), PriorityFirst)
	m.RegisterHookWithPriority("producer", record("producer"), PriorityHigh)

	m.Shutdown(context.Background())

	want := []string{"http", "producer", "db"}
	if len(order) != len(want) {
		t.Fatalf("executed %d hooks, want %d", len(order), len(want))
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("position %d: got %s, want %s", i, order[i], name)
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	m := newTestManager(DefaultConfig())

	var calls atomic.Int32
	m.RegisterHook("once", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	m.Shutdown(context.Background())
	m.Shutdown(context.Background())

	if got := calls.Load(); got != 1 {
		t.Fatalf("hook executed %d times, want 1", got)
	}
	if !m.IsShutdown() {
		t.Fatalf("IsShutdown = false after Shutdown")
	}
	select {
	case <-m.Done():
	default:
		t.Fatalf("Done channel not closed")
	}
}

func TestShutdownGlobalTimeoutSkipsLaterBatches(t *testing.T) {
	m := newTestManager(&Config{Timeout: 50 * time.Millisecond})

	var lateCalled atomic.Bool
	m.RegisterHookWithPriority("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, PriorityFirst)
	m.RegisterHookWithPriority("late", func(ctx context.Context) error {
		lateCalled.Store(true)
		return nil
	}, PriorityLast)

	m.Shutdown(context.Background())

	if lateCalled.Load() {
		t.Fatalf("later batch executed after global timeout")
	}
}
