package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
)

// Job is one independent unit of work.
type Job func(ctx context.Context) error

// Scheduler is the subset of Queue used by components that dispatch work.
type Scheduler interface {
	Go(name string, job Job) string
	After(delay time.Duration, name string, job Job) string
}

// Queue runs jobs on their own goroutines and tracks them until they finish.
// It applies no back-pressure: every submitted job starts immediately (or
// after its delay).
type Queue struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	metrics  *observability.Metrics
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// New returns a queue whose jobs inherit ctx. Cancelling ctx, or calling
// Close, aborts delayed jobs that have not started yet.
func New(ctx context.Context, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Queue{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
		metrics: metrics,
	}
}

// Go starts job now and returns its id.
func (q *Queue) Go(name string, job Job) string {
	return q.After(0, name, job)
}

// After starts job once delay has elapsed and returns its id.
func (q *Queue) After(delay time.Duration, name string, job Job) string {
	id := uuid.NewString()
	q.wg.Add(1)
	q.metrics.SetInflight(int(q.inflight.Add(1)))
	go q.run(id, name, delay, job)
	return id
}

// Wait blocks until every submitted job has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Inflight reports jobs submitted but not yet finished, including delayed ones.
func (q *Queue) Inflight() int {
	return int(q.inflight.Load())
}

// Close cancels the queue context. Running jobs observe the cancellation;
// delayed jobs are dropped.
func (q *Queue) Close() {
	q.cancel()
}

func (q *Queue) run(id, name string, delay time.Duration, job Job) {
	logger := q.logger.With(logging.String("job_id", id), logging.String("job", name))
	defer func() {
		q.metrics.SetInflight(int(q.inflight.Add(-1)))
		q.wg.Done()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-q.ctx.Done():
			timer.Stop()
			logger.Debug("delayed job dropped", logging.String(logging.FieldEventType, "job_dropped"))
			return
		}
	}

	if err := q.invoke(job); err != nil {
		q.metrics.ObserveJobFailure(jobKind(name))
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the journal and remote state; the daily sweep retries link provisioning"),
		)
	}
}

func (q *Queue) invoke(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job(q.ctx)
}

// jobKind strips the per-task suffix from names like "create:42" so metric
// labels stay bounded.
func jobKind(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
