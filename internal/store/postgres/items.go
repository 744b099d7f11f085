package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/store"
)

// itemStore is the pgx-backed implementation of store.Items.
type itemStore struct {
	pool *pgxpool.Pool
}

const itemColumns = `
	id, subscription_id, external_item_id, title, published_at, phase, progress,
	error_message, source, duration_sec, chapters_json, strategy,
	min_clip_duration, max_clip_duration, max_clips_per_video, created_at`

func (s *itemStore) Create(ctx context.Context, it domain.Item) (domain.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	chaptersJSON, err := json.Marshal(it.Chapters)
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: marshal chapters: %w", err)
	}

	const q = `
		INSERT INTO items
			(id, subscription_id, external_item_id, title, published_at, phase, progress,
			 error_message, source, duration_sec, chapters_json, strategy,
			 min_clip_duration, max_clip_duration, max_clips_per_video)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`

	err = s.pool.QueryRow(ctx, q,
		it.ID, nullString(it.SubscriptionID), it.ExternalItemID, it.Title, nullTime(it.PublishedAt),
		string(it.Phase), it.Progress, it.ErrorMessage, string(it.Source), it.DurationSec,
		chaptersJSON, string(it.Strategy),
		nullFloat(it.MinClipDuration), nullFloat(it.MaxClipDuration), nullInt(it.MaxClipsPerVideo),
	).Scan(&it.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Item{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: create item: %w", err)
	}
	return it, nil
}

func (s *itemStore) Get(ctx context.Context, id string) (domain.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return scanItem(s.pool.QueryRow(ctx, q, id))
}

func (s *itemStore) GetByExternalItemID(ctx context.Context, externalItemID string) (domain.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE external_item_id = $1`
	return scanItem(s.pool.QueryRow(ctx, q, externalItemID))
}

func (s *itemStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE subscription_id = $1 ORDER BY published_at DESC`
	rows, err := s.pool.Query(ctx, q, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items by subscription: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *itemStore) Update(ctx context.Context, it domain.Item) error {
	chaptersJSON, err := json.Marshal(it.Chapters)
	if err != nil {
		return fmt.Errorf("postgres: marshal chapters: %w", err)
	}

	const q = `
		UPDATE items SET
			title = $2, published_at = $3, phase = $4, progress = $5, error_message = $6,
			source = $7, duration_sec = $8, chapters_json = $9, strategy = $10,
			min_clip_duration = $11, max_clip_duration = $12, max_clips_per_video = $13
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		it.ID, it.Title, nullTime(it.PublishedAt), string(it.Phase), it.Progress, it.ErrorMessage,
		string(it.Source), it.DurationSec, chaptersJSON, string(it.Strategy),
		nullFloat(it.MinClipDuration), nullFloat(it.MaxClipDuration), nullInt(it.MaxClipsPerVideo),
	)
	if err != nil {
		return fmt.Errorf("postgres: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *itemStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		it           domain.Item
		subscriptionID sql.NullString
		phase, source, strategy string
		chaptersJSON []byte
		minClip, maxClip sql.NullFloat64
		maxClips     sql.NullInt32
	)

	err := row.Scan(
		&it.ID, &subscriptionID, &it.ExternalItemID, &it.Title, scanTime(&it.PublishedAt),
		&phase, &it.Progress, &it.ErrorMessage, &source, &it.DurationSec,
		&chaptersJSON, &strategy, &minClip, &maxClip, &maxClips, &it.CreatedAt,
	)
	if isNoRows(err) {
		return domain.Item{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: scan item: %w", err)
	}

	it.SubscriptionID = subscriptionID.String
	it.Phase = domain.Phase(phase)
	it.Source = domain.Source(source)
	it.Strategy = domain.Strategy(strategy)
	if len(chaptersJSON) > 0 {
		if err := json.Unmarshal(chaptersJSON, &it.Chapters); err != nil {
			return domain.Item{}, fmt.Errorf("postgres: unmarshal chapters: %w", err)
		}
	}
	if minClip.Valid {
		v := minClip.Float64
		it.MinClipDuration = &v
	}
	if maxClip.Valid {
		v := maxClip.Float64
		it.MaxClipDuration = &v
	}
	if maxClips.Valid {
		v := int(maxClips.Int32)
		it.MaxClipsPerVideo = &v
	}
	return it, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
