package candidates

import (
	"context"
	"testing"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/pkg/gateway/media"
	mockmedia "github.com/autoclipper/pipeline/pkg/gateway/media/mock"
)

func TestGenerate_ChapteredItem(t *testing.T) {
	chapters := []domain.Chapter{
		{Title: "Intro", Start: 0, End: 120},
		{Title: "Main", Start: 120, End: 540},
		{Title: "Outro", Start: 540, End: 600},
	}
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}

	g := NewGenerator(nil)
	windows, strategy := g.Generate(context.Background(), 600, chapters, "", policy)

	if strategy != domain.StrategyChapter {
		t.Fatalf("strategy = %v, want CHAPTER", strategy)
	}
	if len(windows) == 0 {
		t.Fatal("got 0 windows, want > 0")
	}
	for _, w := range windows {
		length := w.End - w.Start
		if length < 75 || length > 180 {
			t.Errorf("window %+v has length %v outside [75,180]", w, length)
		}
		if !containedInAnyChapter(w, chapters) {
			t.Errorf("window %+v not contained in any chapter", w)
		}
		if w.ID == "" {
			t.Error("window has empty ID")
		}
	}
}

func containedInAnyChapter(w Window, chapters []domain.Chapter) bool {
	for _, ch := range chapters {
		if w.Start >= ch.Start && w.End <= ch.End {
			return true
		}
	}
	return false
}

func TestGenerate_ChapterWithInvalidBoundsSkipped(t *testing.T) {
	chapters := []domain.Chapter{
		{Title: "broken", Start: 100, End: 50},
		{Title: "ok", Start: 0, End: 100},
	}
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}

	g := NewGenerator(nil)
	windows, strategy := g.Generate(context.Background(), 100, chapters, "", policy)

	if strategy != domain.StrategyChapter {
		t.Fatalf("strategy = %v, want CHAPTER", strategy)
	}
	for _, w := range windows {
		if w.Start >= 100 {
			t.Errorf("window %+v came from the broken chapter", w)
		}
	}
}

func TestGenerate_SilenceItem(t *testing.T) {
	m := &mockmedia.Gateway{
		DetectSilenceFunc: func(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error) {
			return []media.SilenceInterval{{Start: 30, End: 31}, {Start: 140, End: 142}}, nil
		},
	}
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}

	g := NewGenerator(m)
	windows, strategy := g.Generate(context.Background(), 300, nil, "audio.wav", policy)

	if strategy != domain.StrategySilence {
		t.Fatalf("strategy = %v, want SILENCE", strategy)
	}
	if len(windows) == 0 {
		t.Fatal("got 0 windows, want > 0")
	}
	// Speech blocks are (0,30), (31,140), (142,300); only (0,30) is shorter
	// than min_len+guard=76 and thus unusable.
	for _, w := range windows {
		if w.Start < 31 {
			t.Errorf("window %+v drawn from the too-short (0,30) speech block", w)
		}
	}
}

func TestGenerate_FallbackToFixedIntervalOnSilenceFailure(t *testing.T) {
	m := &mockmedia.Gateway{
		DetectSilenceFunc: func(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error) {
			return nil, context.DeadlineExceeded
		},
	}
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}

	g := NewGenerator(m)
	windows, strategy := g.Generate(context.Background(), 300, nil, "audio.wav", policy)

	if strategy != domain.StrategyFixedInterval {
		t.Fatalf("strategy = %v, want FIXED_INTERVAL", strategy)
	}
	if len(windows) == 0 {
		t.Fatal("got 0 windows, want > 0 from fixed-interval fallback")
	}
	if windows[0].Start != 0 {
		t.Errorf("first window start = %v, want 0", windows[0].Start)
	}
}

func TestGenerate_FixedIntervalWithoutAudioPath(t *testing.T) {
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}

	g := NewGenerator(nil)
	windows, strategy := g.Generate(context.Background(), 300, nil, "", policy)

	if strategy != domain.StrategyFixedInterval {
		t.Fatalf("strategy = %v, want FIXED_INTERVAL", strategy)
	}
	for i, w := range windows {
		wantStart := float64(i) * policy.ShiftSec
		if w.Start != wantStart {
			t.Errorf("window %d start = %v, want %v", i, w.Start, wantStart)
		}
		wantEnd := wantStart + policy.MaxLen
		if wantEnd > 300 {
			wantEnd = 300
		}
		if w.End != wantEnd {
			t.Errorf("window %d end = %v, want %v", i, w.End, wantEnd)
		}
	}
}

func TestFromFixedInterval_TooShortDurationYieldsNone(t *testing.T) {
	policy := Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 400}
	windows := fromFixedInterval(50, policy)
	if len(windows) != 0 {
		t.Errorf("got %d windows for duration < min_len, want 0", len(windows))
	}
}

func TestGenerate_TruncatesAtLimit(t *testing.T) {
	policy := Policy{MinLen: 10, MaxLen: 20, ShiftSec: 5, Limit: 3}

	g := NewGenerator(nil)
	windows, _ := g.Generate(context.Background(), 300, nil, "", policy)

	if len(windows) != 3 {
		t.Fatalf("got %d windows, want exactly limit=3", len(windows))
	}
}
