package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsAfterRetries(t *testing.T) {
	transient := errors.New("transient")

	calls := 0
	result, err := WithRetry(context.Background(), Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	}, func(err error) bool { return errors.Is(err, transient) }, func() (string, error) {
		calls++
		if calls < 3 {
			return "", transient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q; want %q", result, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")

	calls := 0
	_, err := WithRetry(context.Background(), Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	}, func(err error) bool { return false }, func() (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("error = %v; want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")

	calls := 0
	_, err := WithRetry(context.Background(), Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func(err error) bool { return true }, func() (int, error) {
		calls++
		return 0, transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("error = %v; want %v", err, transient)
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestPollCompletes(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), time.Millisecond, 10, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestPollBudgetExhausted(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), time.Millisecond, 4, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Errorf("error = %v; want ErrBudgetExhausted", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d; want 4", calls)
	}
}

func TestPollCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Poll(ctx, time.Hour, 100, func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v; want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1 (no further queries after abort)", calls)
	}
}

func TestPollPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(context.Background(), time.Millisecond, 10, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v; want %v", err, boom)
	}
}
