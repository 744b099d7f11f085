// Package render implements the Render Planner (C10): given a clip's word
// timing and cumulative timing offset, it synthesizes a one-word-per-cue SRT
// subtitle, invokes the Media Gateway's cut and thumbnail operations, and
// returns the resulting file references.
package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/pkg/gateway/media"
)

// editorPad is the cutter's fixed lead-in pad, a negative invariant of Cut.
const editorPad = -1.5

// Planner renders a clip by writing its SRT subtitle and delegating the cut
// and thumbnail to the Media Gateway.
type Planner struct {
	Media       media.Gateway
	SubtitleDir string
}

// NewPlanner creates a Planner that writes subtitle files under subtitleDir.
func NewPlanner(m media.Gateway, subtitleDir string) *Planner {
	return &Planner{Media: m, SubtitleDir: subtitleDir}
}

// Render executes the render plan from spec.md §4.10 and returns clip with
// FileRef, ThumbRef, and SubtitleRef populated.
func (p *Planner) Render(ctx context.Context, sourcePath string, clip domain.Clip) (domain.Clip, error) {
	totalStartShift := clip.TimingOffset + editorPad

	var srtPath string
	if len(clip.WordTiming) > 0 {
		var err error
		srtPath, err = p.writeSRT(clip, totalStartShift)
		if err != nil {
			return domain.Clip{}, fmt.Errorf("render: write subtitle: %w", err)
		}
	}

	outPath, err := p.Media.Cut(ctx, sourcePath, clip.StartSec, clip.EndSec, srtPath)
	if err != nil {
		return domain.Clip{}, fmt.Errorf("render: cut: %w", err)
	}

	thumbPath, err := p.Media.Thumbnail(ctx, outPath)
	if err != nil {
		return domain.Clip{}, fmt.Errorf("render: thumbnail: %w", err)
	}

	clip.FileRef = outPath
	clip.ThumbRef = thumbPath
	clip.SubtitleRef = srtPath
	return clip, nil
}

// writeSRT synthesizes one subtitle cue per recognized word, upper-cased,
// with cue times shifted by totalStartShift and clamped to >= 0.
func (p *Planner) writeSRT(clip domain.Clip, totalStartShift float64) (string, error) {
	var b strings.Builder
	for i, w := range clip.WordTiming {
		start := clampMin0(w.Start - totalStartShift)
		end := clampMin0(w.End - totalStartShift)
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(start), formatSRTTime(end), strings.ToUpper(w.Word))
	}

	path := filepath.Join(p.SubtitleDir, clip.ID+".srt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func clampMin0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// formatSRTTime renders seconds as an SRT timestamp: HH:MM:SS,mmm.
func formatSRTTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMs := int64(math.Round(sec * 1000))
	h := totalMs / 3_600_000
	totalMs %= 3_600_000
	m := totalMs / 60_000
	totalMs %= 60_000
	s := totalMs / 1_000
	ms := totalMs % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
