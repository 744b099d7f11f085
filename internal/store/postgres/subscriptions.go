package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/store"
)

// subscriptionStore is the pgx-backed implementation of store.Subscriptions.
// Obtain one via Store.Subscriptions rather than constructing directly.
type subscriptionStore struct {
	pool *pgxpool.Pool
}

const subscriptionColumns = `
	id, external_feed_id, name, feed_url, active, target_count,
	min_clip_sec, max_clip_sec, baseline_set, last_seen_item_id,
	last_seen_published_at, created_at`

func (s *subscriptionStore) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	const q = `
		INSERT INTO subscriptions
			(id, external_feed_id, name, feed_url, active, target_count,
			 min_clip_sec, max_clip_sec, baseline_set, last_seen_item_id, last_seen_published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, q,
		sub.ID, sub.ExternalFeedID, sub.Name, sub.FeedURL, sub.Active, sub.TargetCount,
		sub.MinClipSec, sub.MaxClipSec, sub.BaselineSet, sub.LastSeenItemID, nullTime(sub.LastSeenPublishedAt),
	).Scan(&sub.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Subscription{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("postgres: create subscription: %w", err)
	}
	return sub, nil
}

func (s *subscriptionStore) Get(ctx context.Context, id string) (domain.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	return scanSubscription(row)
}

func (s *subscriptionStore) GetByExternalFeedID(ctx context.Context, externalFeedID string) (domain.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_feed_id = $1`
	row := s.pool.QueryRow(ctx, q, externalFeedID)
	return scanSubscription(row)
}

func (s *subscriptionStore) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE active = true ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscriptionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *subscriptionStore) Update(ctx context.Context, sub domain.Subscription) error {
	const q = `
		UPDATE subscriptions SET
			name = $2, feed_url = $3, active = $4, target_count = $5,
			min_clip_sec = $6, max_clip_sec = $7, baseline_set = $8,
			last_seen_item_id = $9, last_seen_published_at = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		sub.ID, sub.Name, sub.FeedURL, sub.Active, sub.TargetCount,
		sub.MinClipSec, sub.MaxClipSec, sub.BaselineSet, sub.LastSeenItemID, nullTime(sub.LastSeenPublishedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *subscriptionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.ExternalFeedID, &sub.Name, &sub.FeedURL, &sub.Active, &sub.TargetCount,
		&sub.MinClipSec, &sub.MaxClipSec, &sub.BaselineSet, &sub.LastSeenItemID,
		scanTime(&sub.LastSeenPublishedAt), &sub.CreatedAt,
	)
	if isNoRows(err) {
		return domain.Subscription{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("postgres: scan subscription: %w", err)
	}
	return sub, nil
}

func scanSubscriptionRows(rows pgx.Rows) (domain.Subscription, error) {
	return scanSubscription(rows)
}

// isNoRows reports whether err is the pgx "no rows" sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
