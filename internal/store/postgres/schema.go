package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSubscriptions = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id                    TEXT         PRIMARY KEY,
    external_feed_id      TEXT         NOT NULL UNIQUE,
    name                  TEXT         NOT NULL DEFAULT '',
    feed_url              TEXT         NOT NULL DEFAULT '',
    active                BOOLEAN      NOT NULL DEFAULT true,
    target_count          INTEGER      NOT NULL DEFAULT 0,
    min_clip_sec          DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_clip_sec          DOUBLE PRECISION NOT NULL DEFAULT 0,
    baseline_set          BOOLEAN      NOT NULL DEFAULT false,
    last_seen_item_id     TEXT         NOT NULL DEFAULT '',
    last_seen_published_at TIMESTAMPTZ,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions (active);
`

const ddlItems = `
CREATE TABLE IF NOT EXISTS items (
    id                     TEXT         PRIMARY KEY,
    subscription_id        TEXT         REFERENCES subscriptions (id) ON DELETE CASCADE,
    external_item_id        TEXT         NOT NULL UNIQUE,
    title                  TEXT         NOT NULL DEFAULT '',
    published_at           TIMESTAMPTZ,
    phase                  TEXT         NOT NULL DEFAULT 'NEW',
    progress               INTEGER      NOT NULL DEFAULT 0,
    error_message          TEXT         NOT NULL DEFAULT '',
    source                 TEXT         NOT NULL DEFAULT 'FEED',
    duration_sec           DOUBLE PRECISION NOT NULL DEFAULT 0,
    chapters_json          JSONB        NOT NULL DEFAULT '[]',
    strategy               TEXT         NOT NULL DEFAULT '',
    min_clip_duration      DOUBLE PRECISION,
    max_clip_duration      DOUBLE PRECISION,
    max_clips_per_video    INTEGER,
    created_at             TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_items_subscription_id ON items (subscription_id);
CREATE INDEX IF NOT EXISTS idx_items_phase ON items (phase);
`

const ddlClips = `
CREATE TABLE IF NOT EXISTS clips (
    id                TEXT         PRIMARY KEY,
    item_id           TEXT         NOT NULL REFERENCES items (id) ON DELETE CASCADE,
    start_sec         DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_sec           DOUBLE PRECISION NOT NULL DEFAULT 0,
    source_strategy   TEXT         NOT NULL DEFAULT '',
    render_phase      TEXT         NOT NULL DEFAULT 'CANDIDATE',
    llm_viral_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
    features_json     JSONB        NOT NULL DEFAULT '{}',
    final_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
    risk_flags_json   JSONB        NOT NULL DEFAULT '[]',
    pass1             TEXT         NOT NULL DEFAULT '',
    pass2             TEXT         NOT NULL DEFAULT '',
    word_timing_json  JSONB        NOT NULL DEFAULT '[]',
    hook_text         TEXT         NOT NULL DEFAULT '',
    caption           TEXT         NOT NULL DEFAULT '',
    keywords_json     JSONB        NOT NULL DEFAULT '[]',
    hashtags_json     JSONB        NOT NULL DEFAULT '[]',
    file_ref          TEXT         NOT NULL DEFAULT '',
    thumb_ref         TEXT         NOT NULL DEFAULT '',
    subtitle_ref      TEXT         NOT NULL DEFAULT '',
    timing_offset     DOUBLE PRECISION NOT NULL DEFAULT 0,
    was_recut         BOOLEAN      NOT NULL DEFAULT false,
    source_info       TEXT         NOT NULL DEFAULT '',
    approved          BOOLEAN      NOT NULL DEFAULT false,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clips_item_id ON clips (item_id);
CREATE INDEX IF NOT EXISTS idx_clips_render_phase ON clips (render_phase);
CREATE INDEX IF NOT EXISTS idx_clips_item_phase ON clips (item_id, render_phase);
`

const ddlPostJobs = `
CREATE TABLE IF NOT EXISTS post_jobs (
    id            TEXT         PRIMARY KEY,
    clip_id       TEXT         NOT NULL REFERENCES clips (id) ON DELETE CASCADE,
    mode          TEXT         NOT NULL DEFAULT 'DRAFT',
    status        TEXT         NOT NULL DEFAULT 'QUEUED',
    publish_id    TEXT         NOT NULL DEFAULT '',
    error_message TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_post_jobs_clip_id ON post_jobs (clip_id);
`

// Migrate creates every table and index the store needs, idempotently. It is
// safe to call on every process start, following the teacher's postgres
// store convention of running DDL at NewStore time rather than via a
// separate migration tool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{ddlSubscriptions, ddlItems, ddlClips, ddlPostJobs}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
