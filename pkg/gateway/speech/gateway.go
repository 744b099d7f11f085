// Package speech defines the Gateway interface for the clip extraction
// pipeline's two-pass transcription: a throughput-oriented first pass over
// candidate windows and a precision second pass over shortlisted clips that
// additionally produces per-word timing.
package speech

import (
	"context"

	"github.com/autoclipper/pipeline/internal/domain"
)

// Window names a [Start, End] span of source media to transcribe, relative
// to the source media's own timeline (not yet relative to a clip).
type Window struct {
	ID    string
	Start float64
	End   float64
}

// Pass1Result is the concatenated text recognized inside one window.
type Pass1Result struct {
	WindowID string
	Text     string
}

// Pass2Result is the precise transcript and word timing for one clip,
// expressed relative to the clip's own start (see domain.WordTiming).
type Pass2Result struct {
	ClipID string
	Text   string
	Words  []domain.WordTiming
}

// Gateway is the abstraction over the pipeline's single external speech
// recognition capability. Both methods are idempotent given the same source
// media and window set, and may run long; callers should apply a generous
// timeout rather than retry aggressively.
type Gateway interface {
	// Pass1 returns one Pass1Result per window, in no particular order, for
	// every window whose audio could be read. Word-level timing is not
	// requested; throughput is the priority.
	Pass1(ctx context.Context, sourceAudioPath string, windows []Window) ([]Pass1Result, error)

	// Pass2 returns one Pass2Result per window, with word timing relative
	// to the window start and clamped at 0, and included for any word whose
	// span has any overlap with the window. A word that runs past the window
	// end keeps its full end time.
	Pass2(ctx context.Context, sourceAudioPath string, windows []Window) ([]Pass2Result, error)
}
