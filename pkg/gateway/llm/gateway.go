// Package llm defines the Gateway interface for the clip extraction
// pipeline's five structured LLM operations: shortlist, refine,
// validate_opening, final_qc, and packaging. Each operation wraps a single
// low-level chat completion (see pkg/provider/llm) behind a strictly-typed
// request/response pair and fails the calling stage on malformed output
// rather than guessing at partial results.
package llm

import (
	"context"
	"errors"

	"github.com/autoclipper/pipeline/internal/domain"
)

// ErrMalformedOutput is returned when the model's response cannot be parsed
// into the operation's expected structured object.
var ErrMalformedOutput = errors.New("llm gateway: malformed output")

// CandidateWindow is one unscored window offered to Shortlist.
type CandidateWindow struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ShortlistedClip is one object in a Shortlist or Refine response.
type ShortlistedClip struct {
	ID         string            `json:"id"`
	Start      float64           `json:"start"`
	End        float64           `json:"end"`
	ViralScore float64           `json:"viral_score"`
	HookText   string            `json:"hook_text"`
	Caption    string            `json:"caption"`
	Reason     string            `json:"reason"`
	RiskFlags  []domain.RiskFlag `json:"risk_flags"`
	Keywords   []string          `json:"keywords"`
}

// ShortlistRequest carries the candidate pool and size cap for one Item.
type ShortlistRequest struct {
	Candidates []CandidateWindow
	MaxClips   int
}

// ShortlistResponse holds up to MaxClips selections.
type ShortlistResponse struct {
	Clips []ShortlistedClip
}

// RefineRequest re-asks the model to polish already-shortlisted clips. The
// timestamps it carries must not change across the round trip.
type RefineRequest struct {
	Clips []ShortlistedClip
}

// RefineResponse is the same-length, same-order refinement of RefineRequest.Clips.
type RefineResponse struct {
	Clips []ShortlistedClip
}

// OpeningType classifies how a clip's opening line hooks the viewer.
type OpeningType string

const (
	OpeningClaim    OpeningType = "claim"
	OpeningProblem  OpeningType = "problem"
	OpeningQuestion OpeningType = "question"
	OpeningStory    OpeningType = "story"
	OpeningWeak     OpeningType = "weak"
)

// ValidateOpeningRequest carries the clip's opening text and total duration.
type ValidateOpeningRequest struct {
	OpeningText string
	DurationSec float64
}

// ValidateOpeningResponse is the model's verdict on the opening.
type ValidateOpeningResponse struct {
	Pass        bool
	OpeningType OpeningType
	Reason      string
	Confidence  float64 // 0-100
}

// RecutAction names the adjustment final_qc proposes for a clip's bounds.
type RecutAction string

const (
	RecutNone       RecutAction = "none"
	RecutShiftStart RecutAction = "shift_start"
	RecutShiftEnd   RecutAction = "shift_end"
	RecutShiftBoth  RecutAction = "shift_both"
	RecutDrop       RecutAction = "drop"
)

// RecutPlan is the structured adjustment final_qc proposes.
type RecutPlan struct {
	Action          RecutAction
	ShiftStartBySec float64 // clamped to [-3, 3] by the caller
	ShiftEndBySec   float64 // clamped to [-3, 3] by the caller
	Notes           string
}

// FinalQCRequest carries a clip's opening and ending text windows.
type FinalQCRequest struct {
	ClipID      string
	DurationSec float64
	OpeningText string
	EndingText  string
}

// FinalQCResponse is the model's pass/fail verdict plus recut instructions.
type FinalQCResponse struct {
	Pass       bool
	Issues     []string
	RecutPlan  RecutPlan
	Confidence float64 // 0-100
}

// PackageRequest carries a clip's full transcript for title/caption/hashtag generation.
type PackageRequest struct {
	ClipID            string
	DurationSec       float64
	FullTranscript    string
}

// PackageResponse is the generated publish-ready metadata.
type PackageResponse struct {
	KeySentence          string
	Title                string
	Caption              string
	Hashtags             []string
	PackagingConfidence  float64 // 0-100
}

// Gateway is the abstraction over the pipeline's single external LLM
// capability. Implementations must be safe for concurrent use; each method
// should run at low temperature and request structured-object output, per
// the operation's schema.
type Gateway interface {
	Shortlist(ctx context.Context, req ShortlistRequest) (ShortlistResponse, error)
	Refine(ctx context.Context, req RefineRequest) (RefineResponse, error)
	ValidateOpening(ctx context.Context, req ValidateOpeningRequest) (ValidateOpeningResponse, error)
	FinalQC(ctx context.Context, req FinalQCRequest) (FinalQCResponse, error)
	Package(ctx context.Context, req PackageRequest) (PackageResponse, error)
}
