// Package candidates partitions a source item's timeline into overlapping
// time windows using the best available structural signal, the orchestrator's
// GENERATING_CANDIDATES handler. Strategy selection falls through
// CHAPTER -> SILENCE -> FIXED_INTERVAL; each Window carries a stable id
// (rather than being re-identified by start/end time in later stages, per
// the source's known time-match fragility).
package candidates

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/pkg/gateway/media"
)

// Default silence-detection parameters.
const (
	defaultSilenceThresholdDB = -35
	defaultMinSilenceSec      = 0.35

	// speechBlockGuardSec prevents micro speech-blocks either side of a
	// silence interval from producing a usable block on their own.
	speechBlockGuardSec = 1.0
)

// Policy bounds the windows a Generator produces for one Item.
type Policy struct {
	MinLen   float64
	MaxLen   float64
	ShiftSec float64
	Limit    int
}

// Window is one emitted candidate, identified stably across every later
// pipeline stage.
type Window struct {
	ID         string
	Start      float64
	End        float64
	SourceInfo string
}

// Generator produces candidate windows for an Item's source timeline.
type Generator struct {
	Media media.Gateway
}

// NewGenerator creates a Generator that falls back to silence detection via m
// when no chapters are available. m may be nil if the caller never intends to
// pass a non-empty audioPath to Generate.
func NewGenerator(m media.Gateway) *Generator {
	return &Generator{Media: m}
}

// Generate selects a strategy and returns its windows, truncated to
// policy.Limit. audioPath may be empty, in which case SILENCE is skipped.
func (g *Generator) Generate(ctx context.Context, durationSec float64, chapters []domain.Chapter, audioPath string, policy Policy) ([]Window, domain.Strategy) {
	if len(chapters) > 0 {
		return truncate(fromChapters(durationSec, chapters, policy), policy.Limit), domain.StrategyChapter
	}

	if audioPath != "" && g.Media != nil {
		blocks, ok := g.speechBlocks(ctx, audioPath, durationSec)
		if ok {
			windows := fromSpeechBlocks(blocks, policy)
			if len(windows) > 0 {
				return truncate(windows, policy.Limit), domain.StrategySilence
			}
		}
	}

	return truncate(fromFixedInterval(durationSec, policy), policy.Limit), domain.StrategyFixedInterval
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func truncate(windows []Window, limit int) []Window {
	if limit > 0 && len(windows) > limit {
		return windows[:limit]
	}
	return windows
}

func newWindow(start, end float64, sourceInfo string) Window {
	return Window{ID: uuid.NewString(), Start: start, End: end, SourceInfo: sourceInfo}
}

// fromChapters slides w-length windows (w = clamp(chapter length, min, max))
// through each chapter at policy.ShiftSec stride.
func fromChapters(durationSec float64, chapters []domain.Chapter, policy Policy) []Window {
	var out []Window

	for _, ch := range chapters {
		if ch.End <= ch.Start {
			continue
		}
		chapterLen := ch.End - ch.Start
		win := clamp(chapterLen, policy.MinLen, policy.MaxLen)

		for offset := 0.0; offset < chapterLen; offset += policy.ShiftSec {
			start := ch.Start + offset
			end := start + win
			if end > ch.End {
				end = ch.End
				start = max(ch.Start, end-win)
			}
			start = clamp(start, 0, durationSec)
			end = clamp(end, 0, durationSec)

			if end-start >= policy.MinLen {
				out = append(out, newWindow(start, end, ch.Title))
			}
		}
	}
	return out
}

// speechBlock is a contiguous span of audio not covered by a detected
// silence interval.
type speechBlock struct {
	Start float64
	End   float64
}

// speechBlocks runs silence detection and derives the complementary speech
// blocks. The second return is false when detection failed or timed out,
// signalling the caller to fall back to FIXED_INTERVAL.
func (g *Generator) speechBlocks(ctx context.Context, audioPath string, durationSec float64) ([]speechBlock, bool) {
	intervals, err := g.Media.DetectSilence(ctx, audioPath, defaultSilenceThresholdDB, defaultMinSilenceSec)
	if err != nil {
		slog.Warn("candidate generator: silence detection failed, falling back to fixed interval", "error", err)
		return nil, false
	}

	var blocks []speechBlock
	cur := 0.0
	for _, iv := range intervals {
		if iv.Start > cur+speechBlockGuardSec {
			blocks = append(blocks, speechBlock{Start: cur, End: iv.Start})
		}
		cur = max(cur, iv.End)
	}
	if cur < durationSec-speechBlockGuardSec {
		blocks = append(blocks, speechBlock{Start: cur, End: durationSec})
	}
	return blocks, true
}

// fromSpeechBlocks slides w-length windows through each usable speech block
// (length >= min_len + 1.0s guard) at policy.ShiftSec stride. Unlike
// fromChapters, a window that runs past the block end is clipped to it
// rather than moved back.
func fromSpeechBlocks(blocks []speechBlock, policy Policy) []Window {
	var out []Window

	for _, b := range blocks {
		blockLen := b.End - b.Start
		if blockLen < policy.MinLen+speechBlockGuardSec {
			continue
		}
		win := clamp(blockLen, policy.MinLen, policy.MaxLen)

		for t := b.Start; t+policy.MinLen <= b.End; t += policy.ShiftSec {
			start := t
			end := t + win
			if end > b.End {
				end = b.End
			}
			if end-start >= policy.MinLen {
				out = append(out, newWindow(start, end, ""))
			}
		}
	}
	return out
}

// fromFixedInterval slides max_len-length windows at shift stride from 0 to
// D - min_len, clipping each to D.
func fromFixedInterval(durationSec float64, policy Policy) []Window {
	var out []Window

	for start := 0.0; start <= durationSec-policy.MinLen; start += policy.ShiftSec {
		end := start + policy.MaxLen
		if end > durationSec {
			end = durationSec
		}
		if end-start >= policy.MinLen {
			out = append(out, newWindow(start, end, ""))
		}
	}
	return out
}
