package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testPolicy(t *testing.T) (retryPolicy, *[]time.Duration) {
	t.Helper()
	slept := &[]time.Duration{}
	policy := newRetryPolicy(5, 4*time.Second, zap.NewNop())
	policy.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return policy, slept
}

func TestRetrySucceedsOnFifthAttempt(t *testing.T) {
	policy, slept := testPolicy(t)

	attempts := 0
	result, err := policy.run(context.Background(), func() (string, error) {
		attempts++
		if attempts < 5 {
			return "", markTransient(errors.New("rate limited"))
		}
		return "Hardware Failure", nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != "Hardware Failure" {
		t.Errorf("result = %q, want Hardware Failure", result)
	}
	if attempts != 5 {
		t.Errorf("attempts = %d, want exactly 5", attempts)
	}
	if len(*slept) != 4 {
		t.Errorf("backoff sleeps = %d, want 4", len(*slept))
	}
}

func TestRetryExhaustionStopsAtMax(t *testing.T) {
	policy, slept := testPolicy(t)

	attempts := 0
	_, err := policy.run(context.Background(), func() (string, error) {
		attempts++
		return "", markTransient(errors.New("rate limited"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 5 {
		t.Errorf("attempts = %d, want 5 (no sixth attempt)", attempts)
	}
	// No sleep after the final failure.
	if len(*slept) != 4 {
		t.Errorf("backoff sleeps = %d, want 4", len(*slept))
	}
}

func TestRetryNonTransientShortCircuits(t *testing.T) {
	policy, slept := testPolicy(t)

	attempts := 0
	_, err := policy.run(context.Background(), func() (string, error) {
		attempts++
		return "", errors.New("invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for non-transient failure", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times, want 0", len(*slept))
	}
}

func TestDelayBeforeSchedule(t *testing.T) {
	policy := newRetryPolicy(5, 4*time.Second, zap.NewNop())

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 4 * time.Second, 5 * time.Second},
		{2, 8 * time.Second, 9 * time.Second},
		{3, 16 * time.Second, 17 * time.Second},
		{4, 32 * time.Second, 33 * time.Second},
	}
	for _, tt := range tests {
		got := policy.delayBefore(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("delayBefore(%d) = %v, want within [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestRetrySleepHonorsContext(t *testing.T) {
	policy := newRetryPolicy(5, 4*time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := policy.run(ctx, func() (string, error) {
		return "", markTransient(errors.New("rate limited"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
