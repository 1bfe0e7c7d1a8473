package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 8, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	var ran atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		last := i == 4
		err := pool.Submit(func(context.Context) {
			ran.Add(1)
			if last {
				close(done)
			}
		})
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run in time")
	}
}

func TestSubmitReturnsQueueFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	pool := NewPool(1, 2, testLogger())

	if err := pool.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}
	if err := pool.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}
	err := pool.Submit(func(context.Context) {})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	pool := NewPool(1, 8, testLogger())
	pool.Start(context.Background())

	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		if err := pool.Submit(func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}
	pool.Stop()

	if got := ran.Load(); got != 4 {
		t.Fatalf("expected all 4 tasks drained before Stop returned, got %d", got)
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	pool := NewPool(1, 8, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	if err := pool.Submit(func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	done := make(chan struct{})
	if err := pool.Submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestSubmitRacingStopDoesNotPanic(t *testing.T) {
	pool := NewPool(2, 4, testLogger())
	pool.Start(context.Background())

	stop := make(chan struct{})
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := pool.Submit(func(context.Context) {}); errors.Is(err, ErrStopped) {
				return
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	pool.Stop()
	close(stop)

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("submitter goroutine did not finish")
	}
}

func TestNilTaskIsIgnored(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	if err := pool.Submit(nil); err != nil {
		t.Fatalf("nil task must be a no-op, got %v", err)
	}
}
