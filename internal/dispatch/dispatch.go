// Package dispatch implements the Work Dispatcher (C7): three named,
// durable job queues (I/O, AI, Render) with distinct timeout and backoff
// policies, at-least-once execution against a worker pool, and handlers
// resolved by stable string name rather than callable identity so a
// restarted worker can pick up where a previous one left off.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/autoclipper/pipeline/internal/observe"
)

// QueueName identifies one of the Dispatcher's three named queues.
type QueueName string

const (
	QueueIO     QueueName = "io"
	QueueAI     QueueName = "ai"
	QueueRender QueueName = "render"
)

// Policy is a queue's timeout and backoff schedule. MaxRetries is implied by
// len(Backoff): a job that fails after exhausting every backoff entry moves
// to JobFailed permanently.
type Policy struct {
	Timeout time.Duration
	Backoff []time.Duration
}

// Policies holds the exact per-queue timeout/backoff table.
var Policies = map[QueueName]Policy{
	QueueIO: {
		Timeout: 600 * time.Second,
		Backoff: []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
	},
	QueueAI: {
		Timeout: 3600 * time.Second,
		Backoff: []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second, 120 * time.Second, 120 * time.Second},
	},
	QueueRender: {
		Timeout: 1800 * time.Second,
		Backoff: []time.Duration{30 * time.Second, 60 * time.Second},
	},
}

// JobStatus is a Job's lifecycle state.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	// JobFailed is terminal: every backoff attempt for the queue's policy was
	// exhausted.
	JobFailed JobStatus = "FAILED"
)

// Job is one durable unit of work. Args is opaque to the Dispatcher; a
// handler unmarshals it into whatever shape it expects.
type Job struct {
	ID        string
	Queue     QueueName
	Handler   string
	Args      json.RawMessage
	Status    JobStatus
	Attempts  int
	NextRunAt time.Time
	LastError string
	CreatedAt time.Time
}

// JobStore persists Jobs durably so they survive a Dispatcher restart.
// Implementations must make Claim safe for concurrent callers: only one
// caller may ever claim a given pending job.
type JobStore interface {
	Enqueue(ctx context.Context, job Job) (Job, error)
	// Claim atomically finds one job in queues whose NextRunAt has elapsed
	// and Status is JobPending, marks it JobRunning, and returns it. The
	// second return is false if no claimable job exists.
	Claim(ctx context.Context, queues []QueueName, now time.Time) (Job, bool, error)
	MarkDone(ctx context.Context, id string) error
	// MarkRetry records a failed attempt and reschedules the job at nextRunAt
	// with status JobPending, or JobFailed if nextRunAt is nil (retries
	// exhausted).
	MarkRetry(ctx context.Context, id string, lastError string, nextRunAt *time.Time) error
}

// ErrUnknownHandler is returned when a claimed Job names a handler that was
// never registered with this Dispatcher instance.
var ErrUnknownHandler = errors.New("dispatch: unknown handler")

// FatalError marks a handler failure as non-retryable: the Dispatcher moves
// straight to JobFailed (and invokes OnPermanentFailure) on the first
// occurrence, regardless of how many backoff attempts the queue's policy
// still allows. Handlers return this for deterministic failures that a
// retry cannot fix (e.g. an invalid source URL, a zero-chapter zero-audio
// item) rather than the transient transport errors retries are for.
type FatalError struct{ Err error }

func (e FatalError) Error() string { return e.Err.Error() }
func (e FatalError) Unwrap() error { return e.Err }

// HandlerFunc executes one Job's payload. Handlers must be idempotent with
// respect to the persistent store: at-least-once execution means the same
// Job may run more than once for the same id.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// Dispatcher owns the handler registry and drives worker goroutines that
// claim and execute Jobs from JobStore.
type Dispatcher struct {
	Store JobStore
	Log   *slog.Logger

	// OnPermanentFailure, if set, is invoked whenever a job exhausts its
	// queue's retries (or fails with a FatalError) and moves to JobFailed.
	// The orchestrator uses this to move the owning Item to PhaseError.
	OnPermanentFailure func(ctx context.Context, job Job, cause error)

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates a Dispatcher backed by store. A nil logger falls back to
// slog.Default().
func New(store JobStore, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Store: store, Log: log, handlers: make(map[string]HandlerFunc)}
}

// RegisterHandler binds name to fn. Call this for every handler a worker
// process needs to resolve before calling Run; a restarted process must
// re-register the same names before it can claim jobs that reference them.
func (d *Dispatcher) RegisterHandler(name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

func (d *Dispatcher) handler(name string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.handlers[name]
	return fn, ok
}

// Enqueue durably schedules handlerName to run immediately on queue with
// args marshaled to JSON.
func (d *Dispatcher) Enqueue(ctx context.Context, queue QueueName, handlerName string, args any) (Job, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return Job{}, fmt.Errorf("dispatch: marshal args: %w", err)
	}
	job := Job{
		Queue:     queue,
		Handler:   handlerName,
		Args:      payload,
		Status:    JobPending,
		NextRunAt: time.Now(),
	}
	return d.Store.Enqueue(ctx, job)
}

// pollInterval is how often a worker checks for a claimable job when the
// queues are empty.
const pollInterval = 500 * time.Millisecond

// Run drives workers workers concurrently, each repeatedly claiming and
// executing jobs from queues until ctx is canceled. It returns ctx.Err()
// once every worker has exited.
func (d *Dispatcher) Run(ctx context.Context, queues []QueueName, workers int) error {
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return ctx.Err()
		}

		job, ok, err := d.Store.Claim(ctx, queues, time.Now())
		if err != nil {
			sem.Release(1)
			d.Log.Error("dispatch: claim failed", "error", err)
			time.Sleep(pollInterval)
			continue
		}
		if !ok {
			sem.Release(1)
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer sem.Release(1)
			d.execute(ctx, job)
		}(job)
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) {
	metrics := observe.DefaultMetrics()
	metrics.ActiveWorkers.Add(ctx, 1)
	defer metrics.ActiveWorkers.Add(ctx, -1)
	start := time.Now()

	policy, ok := Policies[job.Queue]
	if !ok {
		policy = Policies[QueueIO]
	}

	fn, ok := d.handler(job.Handler)
	if !ok {
		d.fail(ctx, job, policy, ErrUnknownHandler, metrics, start)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	if err := fn(runCtx, job.Args); err != nil {
		d.fail(ctx, job, policy, err, metrics, start)
		return
	}

	if err := d.Store.MarkDone(ctx, job.ID); err != nil {
		d.Log.Error("dispatch: mark done failed", "job_id", job.ID, "error", err)
	}
	metrics.RecordJobCompleted(ctx, string(job.Queue), job.Handler, "done", time.Since(start).Seconds())
}

func (d *Dispatcher) fail(ctx context.Context, job Job, policy Policy, cause error, metrics *observe.Metrics, start time.Time) {
	var fatal FatalError
	isFatal := errors.As(cause, &fatal)

	attempt := job.Attempts + 1 // job.Attempts counts prior failures only
	var nextRunAt *time.Time
	if !isFatal && attempt <= len(policy.Backoff) {
		t := time.Now().Add(policy.Backoff[attempt-1])
		nextRunAt = &t
	}

	if err := d.Store.MarkRetry(ctx, job.ID, cause.Error(), nextRunAt); err != nil {
		d.Log.Error("dispatch: mark retry failed", "job_id", job.ID, "error", err)
	}

	if nextRunAt == nil {
		d.Log.Error("dispatch: job failed permanently", "job_id", job.ID, "queue", job.Queue, "handler", job.Handler, "error", cause)
		metrics.RecordJobCompleted(ctx, string(job.Queue), job.Handler, "failed", time.Since(start).Seconds())
		if d.OnPermanentFailure != nil {
			d.OnPermanentFailure(ctx, job, cause)
		}
	} else {
		d.Log.Warn("dispatch: job failed, retrying", "job_id", job.ID, "queue", job.Queue, "handler", job.Handler, "attempt", attempt, "next_run_at", *nextRunAt, "error", cause)
		metrics.RecordJobCompleted(ctx, string(job.Queue), job.Handler, "retried", time.Since(start).Seconds())
	}
}
