package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3}
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	p := Policy{Attempts: 3}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("broken")
	})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected last attempt error, got %v", err)
	}
}

func TestDo_RetryIfStopsEarly(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	p := Policy{
		Attempts: 5,
		RetryIf:  func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Fatalf("expected no retries for a permanent error, got %d calls", calls)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		Attempts: 3,
		Backoff:  func(int) time.Duration { return time.Minute },
	}
	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(2 * time.Second)
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := b(i); got != w {
			t.Fatalf("Exponential(2s)(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestLinear(t *testing.T) {
	b := Linear(3 * time.Second)
	want := []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second}
	for i, w := range want {
		if got := b(i); got != w {
			t.Fatalf("Linear(3s)(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected a single call, got calls=%d err=%v", calls, err)
	}
}
