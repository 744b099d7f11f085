package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/store"
)

// clipStore is the pgx-backed implementation of store.Clips.
type clipStore struct {
	pool *pgxpool.Pool
}

const clipColumns = `
	id, item_id, start_sec, end_sec, source_strategy, render_phase,
	llm_viral_score, features_json, final_score, risk_flags_json,
	pass1, pass2, word_timing_json, hook_text, caption, keywords_json,
	hashtags_json, file_ref, thumb_ref, subtitle_ref, timing_offset,
	was_recut, approved, source_info, created_at`

func (s *clipStore) Create(ctx context.Context, c domain.Clip) (domain.Clip, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	payload, err := marshalClipJSON(c)
	if err != nil {
		return domain.Clip{}, err
	}

	const q = `
		INSERT INTO clips
			(id, item_id, start_sec, end_sec, source_strategy, render_phase,
			 llm_viral_score, features_json, final_score, risk_flags_json,
			 pass1, pass2, word_timing_json, hook_text, caption, keywords_json,
			 hashtags_json, file_ref, thumb_ref, subtitle_ref, timing_offset,
			 was_recut, approved, source_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING created_at`

	err = s.pool.QueryRow(ctx, q,
		c.ID, c.ItemID, c.StartSec, c.EndSec, string(c.SourceStrategy), string(c.RenderPhase),
		c.LLMViralScore, payload.features, c.FinalScore, payload.riskFlags,
		c.Pass1Transcript, c.Pass2Transcript, payload.wordTiming, c.HookText, c.Caption, payload.keywords,
		payload.hashtags, c.FileRef, c.ThumbRef, c.SubtitleRef, c.TimingOffset,
		c.WasRecut, c.Approved, c.SourceInfo,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Clip{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Clip{}, fmt.Errorf("postgres: create clip: %w", err)
	}
	return c, nil
}

func (s *clipStore) Get(ctx context.Context, id string) (domain.Clip, error) {
	const q = `SELECT ` + clipColumns + ` FROM clips WHERE id = $1`
	return scanClip(s.pool.QueryRow(ctx, q, id))
}

func (s *clipStore) ListByItem(ctx context.Context, itemID string) ([]domain.Clip, error) {
	const q = `SELECT ` + clipColumns + ` FROM clips WHERE item_id = $1 ORDER BY start_sec`
	return queryClips(ctx, s.pool, q, itemID)
}

func (s *clipStore) ListByItemAndPhase(ctx context.Context, itemID string, phase domain.ClipRenderPhase) ([]domain.Clip, error) {
	const q = `SELECT ` + clipColumns + ` FROM clips WHERE item_id = $1 AND render_phase = $2 ORDER BY start_sec`
	return queryClips(ctx, s.pool, q, itemID, string(phase))
}

func (s *clipStore) CountByItem(ctx context.Context, itemID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clips WHERE item_id = $1`, itemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count clips by item: %w", err)
	}
	return n, nil
}

func (s *clipStore) Update(ctx context.Context, c domain.Clip) error {
	payload, err := marshalClipJSON(c)
	if err != nil {
		return err
	}

	const q = `
		UPDATE clips SET
			start_sec = $2, end_sec = $3, source_strategy = $4, render_phase = $5,
			llm_viral_score = $6, features_json = $7, final_score = $8, risk_flags_json = $9,
			pass1 = $10, pass2 = $11, word_timing_json = $12, hook_text = $13, caption = $14,
			keywords_json = $15, hashtags_json = $16, file_ref = $17, thumb_ref = $18,
			subtitle_ref = $19, timing_offset = $20, was_recut = $21, approved = $22,
			source_info = $23
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		c.ID, c.StartSec, c.EndSec, string(c.SourceStrategy), string(c.RenderPhase),
		c.LLMViralScore, payload.features, c.FinalScore, payload.riskFlags,
		c.Pass1Transcript, c.Pass2Transcript, payload.wordTiming, c.HookText, c.Caption,
		payload.keywords, payload.hashtags, c.FileRef, c.ThumbRef,
		c.SubtitleRef, c.TimingOffset, c.WasRecut, c.Approved,
		c.SourceInfo,
	)
	if err != nil {
		return fmt.Errorf("postgres: update clip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *clipStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete clip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// clipJSONPayload bundles every marshalled JSONB column for a Clip.
type clipJSONPayload struct {
	features   []byte
	riskFlags  []byte
	wordTiming []byte
	keywords   []byte
	hashtags   []byte
}

func marshalClipJSON(c domain.Clip) (clipJSONPayload, error) {
	var (
		p   clipJSONPayload
		err error
	)
	if p.features, err = json.Marshal(c.Features); err != nil {
		return p, fmt.Errorf("postgres: marshal features: %w", err)
	}
	if p.riskFlags, err = json.Marshal(c.RiskFlags); err != nil {
		return p, fmt.Errorf("postgres: marshal risk flags: %w", err)
	}
	if p.wordTiming, err = json.Marshal(c.WordTiming); err != nil {
		return p, fmt.Errorf("postgres: marshal word timing: %w", err)
	}
	if p.keywords, err = json.Marshal(c.Keywords); err != nil {
		return p, fmt.Errorf("postgres: marshal keywords: %w", err)
	}
	if p.hashtags, err = json.Marshal(c.Hashtags); err != nil {
		return p, fmt.Errorf("postgres: marshal hashtags: %w", err)
	}
	return p, nil
}

func queryClips(ctx context.Context, pool *pgxpool.Pool, q string, args ...any) ([]domain.Clip, error) {
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query clips: %w", err)
	}
	defer rows.Close()

	var out []domain.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClip(row rowScanner) (domain.Clip, error) {
	var (
		c                                               domain.Clip
		sourceStrategy, renderPhase                     string
		featuresJSON, riskFlagsJSON, wordTimingJSON     []byte
		keywordsJSON, hashtagsJSON                      []byte
	)

	err := row.Scan(
		&c.ID, &c.ItemID, &c.StartSec, &c.EndSec, &sourceStrategy, &renderPhase,
		&c.LLMViralScore, &featuresJSON, &c.FinalScore, &riskFlagsJSON,
		&c.Pass1Transcript, &c.Pass2Transcript, &wordTimingJSON, &c.HookText, &c.Caption, &keywordsJSON,
		&hashtagsJSON, &c.FileRef, &c.ThumbRef, &c.SubtitleRef, &c.TimingOffset,
		&c.WasRecut, &c.Approved, &c.SourceInfo, &c.CreatedAt,
	)
	if isNoRows(err) {
		return domain.Clip{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Clip{}, fmt.Errorf("postgres: scan clip: %w", err)
	}

	c.SourceStrategy = domain.Strategy(sourceStrategy)
	c.RenderPhase = domain.ClipRenderPhase(renderPhase)

	if err := unmarshalClipJSON(&c, featuresJSON, riskFlagsJSON, wordTimingJSON, keywordsJSON, hashtagsJSON); err != nil {
		return domain.Clip{}, err
	}
	return c, nil
}

func unmarshalClipJSON(c *domain.Clip, features, riskFlags, wordTiming, keywords, hashtags []byte) error {
	if len(features) > 0 {
		if err := json.Unmarshal(features, &c.Features); err != nil {
			return fmt.Errorf("postgres: unmarshal features: %w", err)
		}
	}
	if len(riskFlags) > 0 {
		if err := json.Unmarshal(riskFlags, &c.RiskFlags); err != nil {
			return fmt.Errorf("postgres: unmarshal risk flags: %w", err)
		}
	}
	if len(wordTiming) > 0 {
		if err := json.Unmarshal(wordTiming, &c.WordTiming); err != nil {
			return fmt.Errorf("postgres: unmarshal word timing: %w", err)
		}
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &c.Keywords); err != nil {
			return fmt.Errorf("postgres: unmarshal keywords: %w", err)
		}
	}
	if len(hashtags) > 0 {
		if err := json.Unmarshal(hashtags, &c.Hashtags); err != nil {
			return fmt.Errorf("postgres: unmarshal hashtags: %w", err)
		}
	}
	return nil
}
