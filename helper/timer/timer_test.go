package timer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunWithTickerImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	first := make(chan struct{})

	go RunWithTicker(ctx, &Interval{Duration: time.Hour, Immediate: true}, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(first)
		}
		return nil
	})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("Immediate run did not happen")
	}
}

func TestRunWithTickerStopsOnError(t *testing.T) {
	errBoom := errors.New("boom")
	var calls atomic.Int32

	err := RunWithTicker(context.Background(), &Interval{Duration: 10 * time.Millisecond}, func(ctx context.Context) error {
		if calls.Add(1) == 3 {
			return errBoom
		}
		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected errBoom, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestRunWithTickerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- RunWithTicker(ctx, &Interval{Duration: 10 * time.Millisecond, Jitter: 2 * time.Millisecond}, func(ctx context.Context) error {
			return nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunWithTicker did not return after cancel")
	}
}
