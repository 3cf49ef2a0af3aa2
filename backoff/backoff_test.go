package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/drafter/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{30, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 4*time.Second)
	for i := 0; i < 200; i++ {
		d := e.Delay(5)
		if d < 0 || d > 4*time.Second {
			t.Fatalf("Delay(5) = %v, outside [0, 4s]", d)
		}
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := backoff.Retry(context.Background(), 3, backoff.NewConstant(time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	want := errors.New("down")
	err := backoff.Retry(context.Background(), 2, backoff.NewConstant(time.Millisecond), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetry_Permanent(t *testing.T) {
	calls := 0
	want := errors.New("bad request")
	err := backoff.Retry(context.Background(), 5, backoff.NewConstant(time.Millisecond), func(context.Context) error {
		calls++
		return backoff.Permanent(want)
	})
	if err != want || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetry_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := backoff.Retry(ctx, 10, backoff.NewConstant(time.Hour), func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if err == nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}
