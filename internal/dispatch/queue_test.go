package dispatch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"linkrelay/internal/dispatch"
	"linkrelay/internal/logging"
)

func TestGoRunsAndWaitBlocks(t *testing.T) {
	q := dispatch.New(context.Background(), logging.NewNop(), nil)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		q.Go("count", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil
		})
	}
	q.Wait()
	if ran.Load() != 10 {
		t.Fatalf("expected 10 jobs, got %d", ran.Load())
	}
	if q.Inflight() != 0 {
		t.Fatalf("expected no inflight jobs, got %d", q.Inflight())
	}
}

func TestAfterHonoursDelay(t *testing.T) {
	q := dispatch.New(context.Background(), logging.NewNop(), nil)
	start := time.Now()
	var startedAt time.Time
	q.After(40*time.Millisecond, "delayed", func(context.Context) error {
		startedAt = time.Now()
		return nil
	})
	if q.Inflight() != 1 {
		t.Fatalf("expected delayed job counted as inflight, got %d", q.Inflight())
	}
	q.Wait()
	if elapsed := startedAt.Sub(start); elapsed < 40*time.Millisecond {
		t.Fatalf("job started too early: %s", elapsed)
	}
}

func TestCloseDropsDelayedJobs(t *testing.T) {
	q := dispatch.New(context.Background(), logging.NewNop(), nil)
	var ran atomic.Bool
	q.After(time.Hour, "never", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	q.Close()
	q.Wait()
	if ran.Load() {
		t.Fatal("expected delayed job to be dropped")
	}
}

func TestFailuresAndPanicsAreContained(t *testing.T) {
	q := dispatch.New(context.Background(), logging.NewNop(), nil)
	q.Go("fails", func(context.Context) error { return errors.New("boom") })
	q.Go("panics", func(context.Context) error { panic("kaboom") })
	var after atomic.Bool
	q.Go("ok", func(context.Context) error {
		after.Store(true)
		return nil
	})
	q.Wait()
	if !after.Load() {
		t.Fatal("expected sibling job to run")
	}
}

func TestJobIDsAreUnique(t *testing.T) {
	q := dispatch.New(context.Background(), logging.NewNop(), nil)
	a := q.Go("a", func(context.Context) error { return nil })
	b := q.Go("b", func(context.Context) error { return nil })
	q.Wait()
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}
}
