package ingest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterTryAcquire(t *testing.T) {
	l := NewLimiter(2, time.Second)

	if !l.TryAcquire() {
		t.Fatal("first slot refused")
	}
	if !l.TryAcquire() {
		t.Fatal("second slot refused")
	}
	if l.TryAcquire() {
		t.Fatal("third slot granted beyond the limit")
	}
	if got := l.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}

	l.Release()
	if !l.TryAcquire() {
		t.Error("slot not reusable after Release")
	}
}

func TestLimiterAcquireTimesOut(t *testing.T) {
	l := NewLimiter(1, 20*time.Millisecond)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := l.Acquire(context.Background())
	if !errors.Is(err, ErrTooManyIngests) {
		t.Errorf("error = %v, want ErrTooManyIngests", err)
	}
}

func TestLimiterAcquirePrefersContextError(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestLimiterWaitForDrain(t *testing.T) {
	l := NewLimiter(1, time.Second)
	if !l.TryAcquire() {
		t.Fatal("slot refused")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain = %v, want nil once released", err)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	if got := l.MaxConcurrent(); got != DefaultMaxConcurrentIngests {
		t.Errorf("MaxConcurrent = %d, want default %d", got, DefaultMaxConcurrentIngests)
	}
}
