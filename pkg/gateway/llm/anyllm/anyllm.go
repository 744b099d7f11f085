// Package anyllm implements pkg/gateway/llm.Gateway on top of
// pkg/provider/llm.Provider (itself backed by github.com/mozilla-ai/any-llm-go),
// turning five structured pipeline operations into low-temperature, JSON-object
// chat completions.
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autoclipper/pipeline/internal/domain"
	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
	"github.com/autoclipper/pipeline/pkg/provider/llm"
	"github.com/autoclipper/pipeline/pkg/types"
)

// Gateway implements gwllm.Gateway by issuing json_object-style completions
// against a wrapped llm.Provider.
type Gateway struct {
	provider llm.Provider
}

// New wraps provider as a gwllm.Gateway.
func New(provider llm.Provider) *Gateway {
	return &Gateway{provider: provider}
}

var _ gwllm.Gateway = (*Gateway)(nil)

const temperatureStructured = 0.2

func (g *Gateway) complete(ctx context.Context, system, user string, out any) error {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []types.Message{{Role: "user", Content: user}},
		Temperature:  temperatureStructured,
	})
	if err != nil {
		return fmt.Errorf("llm gateway: complete: %w", err)
	}
	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return fmt.Errorf("%w: %v", gwllm.ErrMalformedOutput, err)
	}
	return nil
}

const shortlistSystemPrompt = `You select the most viral short-form clips from a list of candidate
video windows. Respond with a JSON object only, no prose, shaped as:
{"clips": [{"id": string, "start": number, "end": number, "viral_score": number 0-100,
"hook_text": string (<=8 words), "caption": string (1-2 sentences), "reason": string,
"risk_flags": string[] (subset of needs_context,too_slow,sensitive,unclear_audio,copyright_music),
"keywords": string[] (3-5 items)}]}
Select at most max_clips entries, ranked by viral potential.`

func (g *Gateway) Shortlist(ctx context.Context, req gwllm.ShortlistRequest) (gwllm.ShortlistResponse, error) {
	payload, err := json.Marshal(struct {
		Candidates []gwllm.CandidateWindow `json:"candidates"`
		MaxClips   int                     `json:"max_clips"`
	}{req.Candidates, req.MaxClips})
	if err != nil {
		return gwllm.ShortlistResponse{}, fmt.Errorf("llm gateway: marshal shortlist request: %w", err)
	}

	var parsed struct {
		Clips []shortlistedClipWire `json:"clips"`
	}
	if err := g.complete(ctx, shortlistSystemPrompt, string(payload), &parsed); err != nil {
		return gwllm.ShortlistResponse{}, err
	}

	clips := make([]gwllm.ShortlistedClip, 0, len(parsed.Clips))
	for _, c := range parsed.Clips {
		clips = append(clips, c.toDomain())
	}
	return gwllm.ShortlistResponse{Clips: clips}, nil
}

const refineSystemPrompt = `You polish a set of already-selected short-form clips: improve hook_text,
caption, risk_flags, and keywords. Respond with a JSON object only, shaped as:
{"clips": [{"id": string, "start": number, "end": number, "hook_text": string, "caption": string,
"risk_flags": string[], "keywords": string[]}]}
The list must be the same length and order as the input, and start/end must be echoed unchanged.`

func (g *Gateway) Refine(ctx context.Context, req gwllm.RefineRequest) (gwllm.RefineResponse, error) {
	payload, err := json.Marshal(struct {
		Clips []gwllm.ShortlistedClip `json:"clips"`
	}{req.Clips})
	if err != nil {
		return gwllm.RefineResponse{}, fmt.Errorf("llm gateway: marshal refine request: %w", err)
	}

	var parsed struct {
		Clips []shortlistedClipWire `json:"clips"`
	}
	if err := g.complete(ctx, refineSystemPrompt, string(payload), &parsed); err != nil {
		return gwllm.RefineResponse{}, err
	}
	if len(parsed.Clips) != len(req.Clips) {
		return gwllm.RefineResponse{}, fmt.Errorf("%w: refine returned %d clips, want %d",
			gwllm.ErrMalformedOutput, len(parsed.Clips), len(req.Clips))
	}

	clips := make([]gwllm.ShortlistedClip, len(parsed.Clips))
	for i, c := range parsed.Clips {
		clips[i] = c.toDomain()
		// Timestamps must not change across refine; trust the request, not the echo.
		clips[i].Start = req.Clips[i].Start
		clips[i].End = req.Clips[i].End
	}
	return gwllm.RefineResponse{Clips: clips}, nil
}

const validateOpeningSystemPrompt = `You judge whether a short-form clip's opening line will hook a viewer
in the first two seconds. Respond with a JSON object only, shaped as:
{"pass": bool, "opening_type": one of "claim","problem","question","story","weak",
"reason": string, "confidence": number 0-100}`

func (g *Gateway) ValidateOpening(ctx context.Context, req gwllm.ValidateOpeningRequest) (gwllm.ValidateOpeningResponse, error) {
	payload, err := json.Marshal(struct {
		OpeningText string  `json:"opening_text"`
		DurationSec float64 `json:"duration_sec"`
	}{req.OpeningText, req.DurationSec})
	if err != nil {
		return gwllm.ValidateOpeningResponse{}, fmt.Errorf("llm gateway: marshal validate_opening request: %w", err)
	}

	var parsed struct {
		Pass        bool    `json:"pass"`
		OpeningType string  `json:"opening_type"`
		Reason      string  `json:"reason"`
		Confidence  float64 `json:"confidence"`
	}
	if err := g.complete(ctx, validateOpeningSystemPrompt, string(payload), &parsed); err != nil {
		return gwllm.ValidateOpeningResponse{}, err
	}
	return gwllm.ValidateOpeningResponse{
		Pass:        parsed.Pass,
		OpeningType: gwllm.OpeningType(parsed.OpeningType),
		Reason:      parsed.Reason,
		Confidence:  parsed.Confidence,
	}, nil
}

const finalQCSystemPrompt = `You perform final quality control on a short-form clip given its opening
and ending text. Respond with a JSON object only, shaped as:
{"pass": bool, "issues": string[], "recut_plan": {"action": one of
"none","shift_start","shift_end","shift_both","drop", "shift_start_by_sec": number -3..3,
"shift_end_by_sec": number -3..3, "notes": string}, "confidence": number 0-100}`

func (g *Gateway) FinalQC(ctx context.Context, req gwllm.FinalQCRequest) (gwllm.FinalQCResponse, error) {
	payload, err := json.Marshal(struct {
		ClipID      string  `json:"clip_id"`
		DurationSec float64 `json:"duration_sec"`
		OpeningText string  `json:"opening_text"`
		EndingText  string  `json:"ending_text"`
	}{req.ClipID, req.DurationSec, req.OpeningText, req.EndingText})
	if err != nil {
		return gwllm.FinalQCResponse{}, fmt.Errorf("llm gateway: marshal final_qc request: %w", err)
	}

	var parsed struct {
		Pass      bool     `json:"pass"`
		Issues    []string `json:"issues"`
		RecutPlan struct {
			Action          string  `json:"action"`
			ShiftStartBySec float64 `json:"shift_start_by_sec"`
			ShiftEndBySec   float64 `json:"shift_end_by_sec"`
			Notes           string  `json:"notes"`
		} `json:"recut_plan"`
		Confidence float64 `json:"confidence"`
	}
	if err := g.complete(ctx, finalQCSystemPrompt, string(payload), &parsed); err != nil {
		return gwllm.FinalQCResponse{}, err
	}
	return gwllm.FinalQCResponse{
		Pass:   parsed.Pass,
		Issues: parsed.Issues,
		RecutPlan: gwllm.RecutPlan{
			Action:          gwllm.RecutAction(parsed.RecutPlan.Action),
			ShiftStartBySec: clamp(parsed.RecutPlan.ShiftStartBySec, -3, 3),
			ShiftEndBySec:   clamp(parsed.RecutPlan.ShiftEndBySec, -3, 3),
			Notes:           parsed.RecutPlan.Notes,
		},
		Confidence: parsed.Confidence,
	}, nil
}

const packageSystemPrompt = `You write publish-ready metadata for a short-form clip given its full
transcript. Respond with a JSON object only, shaped as:
{"key_sentence": string (must appear in the transcript verbatim or nearly so),
"title": string (<=8 words), "caption": string (<=200 chars), "hashtags": string[] (5-6 items),
"packaging_confidence": number 0-100}`

func (g *Gateway) Package(ctx context.Context, req gwllm.PackageRequest) (gwllm.PackageResponse, error) {
	payload, err := json.Marshal(struct {
		ClipID         string  `json:"clip_id"`
		DurationSec    float64 `json:"duration_sec"`
		FullTranscript string  `json:"full_transcript"`
	}{req.ClipID, req.DurationSec, req.FullTranscript})
	if err != nil {
		return gwllm.PackageResponse{}, fmt.Errorf("llm gateway: marshal packaging request: %w", err)
	}

	var parsed struct {
		KeySentence         string   `json:"key_sentence"`
		Title               string   `json:"title"`
		Caption             string   `json:"caption"`
		Hashtags            []string `json:"hashtags"`
		PackagingConfidence float64  `json:"packaging_confidence"`
	}
	if err := g.complete(ctx, packageSystemPrompt, string(payload), &parsed); err != nil {
		return gwllm.PackageResponse{}, err
	}
	return gwllm.PackageResponse{
		KeySentence:         parsed.KeySentence,
		Title:               parsed.Title,
		Caption:             parsed.Caption,
		Hashtags:            parsed.Hashtags,
		PackagingConfidence: parsed.PackagingConfidence,
	}, nil
}

// shortlistedClipWire is the JSON wire shape shared by shortlist and refine responses.
type shortlistedClipWire struct {
	ID         string   `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	ViralScore float64  `json:"viral_score"`
	HookText   string   `json:"hook_text"`
	Caption    string   `json:"caption"`
	Reason     string   `json:"reason"`
	RiskFlags  []string `json:"risk_flags"`
	Keywords   []string `json:"keywords"`
}

func (w shortlistedClipWire) toDomain() gwllm.ShortlistedClip {
	flags := make([]domain.RiskFlag, 0, len(w.RiskFlags))
	for _, f := range w.RiskFlags {
		flags = append(flags, domain.RiskFlag(f))
	}
	return gwllm.ShortlistedClip{
		ID:         w.ID,
		Start:      w.Start,
		End:        w.End,
		ViralScore: w.ViralScore,
		HookText:   w.HookText,
		Caption:    w.Caption,
		Reason:     w.Reason,
		RiskFlags:  flags,
		Keywords:   w.Keywords,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
