package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/store"
)

// postJobStore is the pgx-backed implementation of store.PostJobs.
type postJobStore struct {
	pool *pgxpool.Pool
}

const postJobColumns = `id, clip_id, mode, status, publish_id, error_message, created_at`

func (s *postJobStore) Create(ctx context.Context, j domain.PostJob) (domain.PostJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	const q = `
		INSERT INTO post_jobs (id, clip_id, mode, status, publish_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, q,
		j.ID, j.ClipID, string(j.Mode), string(j.Status), j.PublishID, j.ErrorMessage,
	).Scan(&j.CreatedAt)
	if isUniqueViolation(err) {
		return domain.PostJob{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.PostJob{}, fmt.Errorf("postgres: create post job: %w", err)
	}
	return j, nil
}

func (s *postJobStore) Get(ctx context.Context, id string) (domain.PostJob, error) {
	const q = `SELECT ` + postJobColumns + ` FROM post_jobs WHERE id = $1`
	return scanPostJob(s.pool.QueryRow(ctx, q, id))
}

func (s *postJobStore) ListByClip(ctx context.Context, clipID string) ([]domain.PostJob, error) {
	const q = `SELECT ` + postJobColumns + ` FROM post_jobs WHERE clip_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, clipID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list post jobs by clip: %w", err)
	}
	defer rows.Close()

	var out []domain.PostJob
	for rows.Next() {
		j, err := scanPostJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *postJobStore) Update(ctx context.Context, j domain.PostJob) error {
	const q = `
		UPDATE post_jobs SET mode = $2, status = $3, publish_id = $4, error_message = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, j.ID, string(j.Mode), string(j.Status), j.PublishID, j.ErrorMessage)
	if err != nil {
		return fmt.Errorf("postgres: update post job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanPostJob(row rowScanner) (domain.PostJob, error) {
	var (
		j             domain.PostJob
		mode, status  string
	)
	err := row.Scan(&j.ID, &j.ClipID, &mode, &status, &j.PublishID, &j.ErrorMessage, &j.CreatedAt)
	if isNoRows(err) {
		return domain.PostJob{}, store.ErrNotFound
	}
	if err != nil {
		return domain.PostJob{}, fmt.Errorf("postgres: scan post job: %w", err)
	}
	j.Mode = domain.PostJobMode(mode)
	j.Status = domain.PostJobStatus(status)
	return j, nil
}
