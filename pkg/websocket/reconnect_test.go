package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestReconnecter_BackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	r := newReconnecter(reconnectConfig{
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          40 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	r.grow()
	if r.backoff != 20*time.Millisecond {
		t.Errorf("backoff after one failure = %v, want 20ms", r.backoff)
	}

	r.grow()
	r.grow()
	if r.backoff != 40*time.Millisecond {
		t.Errorf("backoff = %v, want capped at 40ms", r.backoff)
	}

	r.Reset()
	if r.backoff != 10*time.Millisecond {
		t.Errorf("backoff after reset = %v, want 10ms", r.backoff)
	}
}

func TestReconnecter_JitterStaysBounded(t *testing.T) {
	t.Parallel()

	r := newReconnecter(reconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
	}, zaptest.NewLogger(t))

	for i := 0; i < 50; i++ {
		d := r.nextDelay()
		if d < 100*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("nextDelay() = %v, want within [100ms, 120ms]", d)
		}
	}
}

func TestReconnecter_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	r := newReconnecter(reconnectConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	attempts := 0
	err := r.Reconnect(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if r.backoff != time.Millisecond {
		t.Errorf("backoff after success = %v, want reset to 1ms", r.backoff)
	}
}

func TestReconnecter_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	r := newReconnecter(reconnectConfig{
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Reconnect(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Reconnect() error = %v, want context.Canceled", err)
	}
}
