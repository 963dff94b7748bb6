package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDoFirstAttemptSucceeds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryDoEventualSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryDoExhaustionReturnsLastError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}

	wantErr := errors.New("final failure")
	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt == 2 {
			return wantErr
		}
		return errors.New("earlier failure")
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestRetryDoZeroAttemptsRunsOnce(t *testing.T) {
	p := RetryPolicy{}

	calls := 0
	p.Do(context.Background(), func(int) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryDoContextCancelsBackoff(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Hour),
	}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(int) error {
			calls++
			return errors.New("boom")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(2 * time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 6 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
