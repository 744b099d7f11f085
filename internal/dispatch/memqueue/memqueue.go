// Package memqueue provides a thread-safe, in-memory implementation of
// dispatch.JobStore, following the mutex-plus-map convention of
// internal/store/memstore. It is suitable for tests and single-process dry
// runs; it is not durable across process restarts — see
// internal/dispatch/pgqueue for the durable implementation.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoclipper/pipeline/internal/dispatch"
)

var _ dispatch.JobStore = (*Store)(nil)

// Store is an in-memory dispatch.JobStore. The zero value is not ready to
// use; call New.
type Store struct {
	mu   sync.Mutex
	jobs map[string]dispatch.Job
}

// New returns an initialised, empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]dispatch.Job)}
}

func (s *Store) Enqueue(_ context.Context, job dispatch.Job) (dispatch.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = dispatch.JobPending
	}
	s.jobs[job.ID] = job
	return job, nil
}

// Claim scans for the oldest pending, due job on any of queues. Linear scan
// is fine at this scale (a single process's in-flight job count); a durable
// backend uses an indexed query instead.
func (s *Store) Claim(_ context.Context, queues []dispatch.QueueName, now time.Time) (dispatch.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[dispatch.QueueName]struct{}, len(queues))
	for _, q := range queues {
		wanted[q] = struct{}{}
	}

	var best *dispatch.Job
	for id, job := range s.jobs {
		if job.Status != dispatch.JobPending {
			continue
		}
		if _, ok := wanted[job.Queue]; !ok {
			continue
		}
		if job.NextRunAt.After(now) {
			continue
		}
		if best == nil || job.NextRunAt.Before(best.NextRunAt) {
			j := s.jobs[id]
			best = &j
		}
	}
	if best == nil {
		return dispatch.Job{}, false, nil
	}

	best.Status = dispatch.JobRunning
	s.jobs[best.ID] = *best
	return *best, true, nil
}

func (s *Store) MarkDone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	job.Status = dispatch.JobDone
	s.jobs[id] = job
	return nil
}

func (s *Store) MarkRetry(_ context.Context, id string, lastError string, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	job.Attempts++
	job.LastError = lastError
	if nextRunAt == nil {
		job.Status = dispatch.JobFailed
	} else {
		job.Status = dispatch.JobPending
		job.NextRunAt = *nextRunAt
	}
	s.jobs[id] = job
	return nil
}

// Get returns the current state of a job, for tests.
func (s *Store) Get(id string) (dispatch.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok
}
