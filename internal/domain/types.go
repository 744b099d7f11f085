// Package domain defines the core entities of the clip extraction pipeline —
// Subscription, Item, Clip, and PostJob — and the invariants that every
// store implementation and orchestrated handler must uphold.
//
// Subscription exclusively owns Items; Items exclusively own Clips; Clips
// exclusively own PostJobs. Deletion cascades downward. Items and Clips are
// mutated only by internal/orchestrator; every handler reads fresh, checks
// the current Phase, and is a no-op if the expected precondition no longer
// holds (see internal/orchestrator's idempotency contract).
package domain

import "time"

// Subscription is a followed external feed (a "Channel" in spec terms).
type Subscription struct {
	ID             string
	ExternalFeedID string
	Name           string
	FeedURL        string
	Active         bool

	// Clip policy. MinClipSec must be strictly less than MaxClipSec.
	TargetCount int
	MinClipSec  float64
	MaxClipSec  float64

	// Forward-only baseline bookkeeping (see internal/feed).
	BaselineSet          bool
	LastSeenItemID       string
	LastSeenPublishedAt  time.Time

	CreatedAt time.Time
}

// ClipPolicy resolves the effective min/max clip length and clip count for
// an Item, falling back to its Subscription's policy when the Item carries
// no override.
type ClipPolicy struct {
	MinClipSec  float64
	MaxClipSec  float64
	TargetCount int
}

// Chapter is a named, pre-published subdivision of the source media.
type Chapter struct {
	Title string
	Start float64
	End   float64
}

// Item is a single piece of source video, owned by a Subscription (or, for
// manually submitted items, owned by no Subscription at all).
type Item struct {
	ID                 string
	SubscriptionID     string // empty when Source == SourceManual
	ExternalItemID     string
	Title              string
	PublishedAt        time.Time

	Phase        Phase
	Progress     int // 0-100
	ErrorMessage string
	Source       Source

	DurationSec float64
	Chapters    []Chapter
	Strategy    Strategy

	// Per-item overrides; nil means "fall back to Subscription policy".
	MinClipDuration  *float64
	MaxClipDuration  *float64
	MaxClipsPerVideo *int

	CreatedAt time.Time
}

// EffectivePolicy resolves it's per-item overrides against a Subscription's
// baseline policy. sub may be nil for manually submitted items; any field
// with neither a Subscription value nor an override is left at zero.
func (it Item) EffectivePolicy(sub *Subscription) ClipPolicy {
	policy := ClipPolicy{}
	if sub != nil {
		policy.MinClipSec = sub.MinClipSec
		policy.MaxClipSec = sub.MaxClipSec
		policy.TargetCount = sub.TargetCount
	}
	if it.MinClipDuration != nil {
		policy.MinClipSec = *it.MinClipDuration
	}
	if it.MaxClipDuration != nil {
		policy.MaxClipSec = *it.MaxClipDuration
	}
	if it.MaxClipsPerVideo != nil {
		policy.TargetCount = *it.MaxClipsPerVideo
	}
	return policy
}

// WordTiming is a single recognised word with timing relative to the clip's
// start as it was at pass-2 transcription. Recuts do not translate it; they
// add their start shift to Clip.TimingOffset instead, which internal/render
// subtracts when writing subtitle cues.
type WordTiming struct {
	Word  string
	Start float64
	End   float64
}

// Features holds the Heuristic Scorer's deterministic feature vector.
type Features struct {
	Hook    float64
	Finance float64
	Action  float64
	Payoff  float64
	Clarity float64
	Pacing  float64
}

// Clip is a candidate or promoted short-form clip window, owned by an Item.
type Clip struct {
	ID     string
	ItemID string

	StartSec float64
	EndSec   float64

	SourceStrategy Strategy
	RenderPhase    ClipRenderPhase

	// Scoring.
	LLMViralScore float64
	Features      Features
	FinalScore    float64
	RiskFlags     []RiskFlag

	// Text artifacts.
	Pass1Transcript string
	Pass2Transcript string
	WordTiming      []WordTiming

	// Editorial.
	HookText string
	Caption  string
	Keywords []string
	Hashtags []string

	// Render artifacts.
	FileRef      string
	ThumbRef     string
	SubtitleRef  string

	// Bookkeeping.
	TimingOffset float64
	WasRecut     bool
	Approved     bool // operator sign-off, required before a PostJob may be created

	SourceInfo string // e.g. chapter title, for CHAPTER strategy

	CreatedAt time.Time
}

// Duration returns end - start.
func (c Clip) Duration() float64 {
	return c.EndSec - c.StartSec
}

// PostJob tracks the external publish step for an approved, READY Clip.
type PostJob struct {
	ID           string
	ClipID       string
	Mode         PostJobMode
	Status       PostJobStatus
	PublishID    string
	ErrorMessage string
	CreatedAt    time.Time
}
