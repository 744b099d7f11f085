// Package pgqueue is the durable, pgx/v5-backed implementation of
// dispatch.JobStore, following the same pool-plus-DDL-migration convention
// as internal/store/postgres. Claim uses `FOR UPDATE SKIP LOCKED` so
// multiple worker processes can poll the same table without claiming the
// same row twice.
package pgqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/dispatch"
)

var _ dispatch.JobStore = (*Store)(nil)

const ddlJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT         PRIMARY KEY,
    queue        TEXT         NOT NULL,
    handler      TEXT         NOT NULL,
    args_json    JSONB        NOT NULL DEFAULT '{}',
    status       TEXT         NOT NULL DEFAULT 'PENDING',
    attempts     INTEGER      NOT NULL DEFAULT 0,
    next_run_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_error   TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs (queue, status, next_run_at);
`

// Store is the durable PostgreSQL-backed dispatch.JobStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to dsn, runs the jobs table
// migration, and returns a ready-to-use Store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgqueue: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlJobs); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgqueue: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Enqueue(ctx context.Context, job dispatch.Job) (dispatch.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = dispatch.JobPending
	}
	if job.NextRunAt.IsZero() {
		job.NextRunAt = time.Now()
	}

	const q = `
		INSERT INTO jobs (id, queue, handler, args_json, status, attempts, next_run_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, q,
		job.ID, string(job.Queue), job.Handler, job.Args, string(job.Status),
		job.Attempts, job.NextRunAt, job.LastError,
	).Scan(&job.CreatedAt)
	if err != nil {
		return dispatch.Job{}, fmt.Errorf("pgqueue: enqueue: %w", err)
	}
	return job, nil
}

// Claim selects and locks the oldest-due pending job on any of queues inside
// a single transaction, marking it RUNNING before committing. SKIP LOCKED
// lets concurrent worker processes poll without contending on the same row.
func (s *Store) Claim(ctx context.Context, queues []dispatch.QueueName, now time.Time) (dispatch.Job, bool, error) {
	if len(queues) == 0 {
		return dispatch.Job{}, false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("pgqueue: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	placeholders := make([]string, len(queues))
	args := make([]any, 0, len(queues)+1)
	args = append(args, now)
	for i, q := range queues {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, string(q))
	}

	selectQ := fmt.Sprintf(`
		SELECT id, queue, handler, args_json, status, attempts, next_run_at, last_error, created_at
		FROM jobs
		WHERE status = 'PENDING' AND next_run_at <= $1 AND queue IN (%s)
		ORDER BY next_run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, strings.Join(placeholders, ", "))

	var job dispatch.Job
	var queue, status string
	err = tx.QueryRow(ctx, selectQ, args...).Scan(
		&job.ID, &queue, &job.Handler, &job.Args, &status,
		&job.Attempts, &job.NextRunAt, &job.LastError, &job.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return dispatch.Job{}, false, nil
	}
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("pgqueue: claim select: %w", err)
	}
	job.Queue = dispatch.QueueName(queue)
	job.Status = dispatch.JobStatus(status)

	if _, err := tx.Exec(ctx, `UPDATE jobs SET status = 'RUNNING' WHERE id = $1`, job.ID); err != nil {
		return dispatch.Job{}, false, fmt.Errorf("pgqueue: claim update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dispatch.Job{}, false, fmt.Errorf("pgqueue: claim commit: %w", err)
	}

	job.Status = dispatch.JobRunning
	return job, true, nil
}

func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET status = 'DONE' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgqueue: mark done: %w", err)
	}
	return nil
}

func (s *Store) MarkRetry(ctx context.Context, id string, lastError string, nextRunAt *time.Time) error {
	var err error
	if nextRunAt == nil {
		_, err = s.pool.Exec(ctx, `
			UPDATE jobs SET status = 'FAILED', attempts = attempts + 1, last_error = $2
			WHERE id = $1`, id, lastError)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE jobs SET status = 'PENDING', attempts = attempts + 1, last_error = $2, next_run_at = $3
			WHERE id = $1`, id, lastError, *nextRunAt)
	}
	if err != nil {
		return fmt.Errorf("pgqueue: mark retry: %w", err)
	}
	return nil
}
