package domain

// Phase is the ordered state an Item moves through as the pipeline
// orchestrator advances it. Transitions are realised one at a time by
// internal/orchestrator; a fault at any phase moves the Item directly to
// PhaseError and stops the chain.
type Phase string

const (
	PhaseNew                   Phase = "NEW"
	PhaseProbing               Phase = "PROBING"
	PhaseGeneratingCandidates  Phase = "GENERATING_CANDIDATES"
	PhaseTranscribingPass1     Phase = "TRANSCRIBING_PASS1"
	PhaseLLMShortlisting       Phase = "LLM_SHORTLISTING"
	PhaseTranscribingPass2     Phase = "TRANSCRIBING_PASS2"
	PhaseLLMRefining           Phase = "LLM_REFINING"
	PhaseRenderingPreview      Phase = "RENDERING_PREVIEW"
	PhaseReady                 Phase = "READY"
	PhaseError                 Phase = "ERROR"
)

// phaseOrder fixes the sequence used by Next and IsTerminal. It is the single
// source of truth for the state machine's shape.
var phaseOrder = []Phase{
	PhaseNew,
	PhaseProbing,
	PhaseGeneratingCandidates,
	PhaseTranscribingPass1,
	PhaseLLMShortlisting,
	PhaseTranscribingPass2,
	PhaseLLMRefining,
	PhaseRenderingPreview,
	PhaseReady,
}

// IsValid reports whether p is one of the defined phases.
func (p Phase) IsValid() bool {
	if p == PhaseError {
		return true
	}
	for _, candidate := range phaseOrder {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether p ends the pipeline (no further stage follows).
func (p Phase) IsTerminal() bool {
	return p == PhaseReady || p == PhaseError
}

// Next returns the phase that follows p in the state machine and true, or
// the zero Phase and false when p is terminal or unrecognised. Used by the
// orchestrator to advance an Item's phase; it never skips a phase and never
// moves backward.
func (p Phase) Next() (Phase, bool) {
	for i, candidate := range phaseOrder {
		if candidate == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// ClipRenderPhase is the lifecycle of a single Clip's render pipeline,
// independent of its owning Item's Phase.
type ClipRenderPhase string

const (
	ClipCandidate   ClipRenderPhase = "CANDIDATE"
	ClipShortlisted ClipRenderPhase = "SHORTLISTED"
	ClipReady       ClipRenderPhase = "READY"
	ClipError       ClipRenderPhase = "ERROR"
)

// Strategy names the signal used by the candidate generator to partition the
// source timeline.
type Strategy string

const (
	StrategyChapter       Strategy = "CHAPTER"
	StrategySilence       Strategy = "SILENCE"
	StrategyFixedInterval Strategy = "FIXED_INTERVAL"
)

// Source distinguishes an Item created by feed ingestion from one submitted
// directly by an operator.
type Source string

const (
	SourceFeed   Source = "FEED"
	SourceManual Source = "MANUAL"
)

// PostJobMode selects whether an approved Clip is posted as a draft for
// manual review or published directly.
type PostJobMode string

const (
	PostJobDraft  PostJobMode = "DRAFT"
	PostJobDirect PostJobMode = "DIRECT"
)

// PostJobStatus tracks a PostJob's progress through the external publish step.
type PostJobStatus string

const (
	PostJobQueued     PostJobStatus = "QUEUED"
	PostJobUploading  PostJobStatus = "UPLOADING"
	PostJobProcessing PostJobStatus = "PROCESSING"
	PostJobPosted     PostJobStatus = "POSTED"
	PostJobFailed     PostJobStatus = "FAILED"
)

// RiskFlag enumerates the risk categories a clip can be flagged with by the
// LLM Gateway. The set is closed — internal/scoring's penalty table and the
// LLM Gateway's schema validation both range over exactly these values.
type RiskFlag string

const (
	RiskNeedsContext    RiskFlag = "needs_context"
	RiskTooSlow         RiskFlag = "too_slow"
	RiskSensitive       RiskFlag = "sensitive"
	RiskUnclearAudio    RiskFlag = "unclear_audio"
	RiskCopyrightMusic  RiskFlag = "copyright_music"
)
