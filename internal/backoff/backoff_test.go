package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.delayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 3 * time.Second, Factor: 10, Jitter: 0}
	if got := p.delayWithRand(5, 0); got != 3*time.Second {
		t.Errorf("delay = %v, want clamp at 3s", got)
	}
}

func TestDelayJitterBounded(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0.5}
	lo := p.delayWithRand(1, 0)
	hi := p.delayWithRand(1, 1)
	if lo != 100*time.Millisecond {
		t.Errorf("zero jitter roll = %v, want 100ms", lo)
	}
	if hi != 150*time.Millisecond {
		t.Errorf("full jitter roll = %v, want 150ms", hi)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1, Jitter: 0}

	calls := 0
	got, err := Retry(context.Background(), p, 5, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1, Jitter: 0}

	cause := errors.New("boom")
	_, err := Retry(context.Background(), p, 3, func(int) (int, error) {
		return 0, cause
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestRetryRespectsCancellation(t *testing.T) {
	p := Policy{Initial: time.Hour, Max: time.Hour, Factor: 1, Jitter: 0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, p, 3, func(int) (int, error) {
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt the backoff sleep")
	}
}
