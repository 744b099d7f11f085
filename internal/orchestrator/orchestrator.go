// Package orchestrator implements the Pipeline Orchestrator (C8): the state
// machine that drives an Item through PROBING, GENERATING_CANDIDATES,
// TRANSCRIBING_PASS1, LLM_SHORTLISTING, TRANSCRIBING_PASS2, LLM_REFINING, and
// RENDERING_PREVIEW to READY, one durable stage handler at a time.
//
// Each handler is named by the phase whose work it performs. It loads the
// Item fresh, no-ops unless the Item is still in that phase (idempotency
// under at-least-once redelivery), calls the appropriate gateway or
// component, persists the phase's required outputs, advances Item.Phase via
// domain.Phase.Next, and enqueues the next stage's handler on the Work
// Dispatcher. A handler that hits a deterministic failure returns a
// dispatch.FatalError so the Item moves straight to ERROR without burning
// the queue's retry budget.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/autoclipper/pipeline/internal/candidates"
	"github.com/autoclipper/pipeline/internal/dispatch"
	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/recut"
	"github.com/autoclipper/pipeline/internal/render"
	"github.com/autoclipper/pipeline/internal/scoring"
	"github.com/autoclipper/pipeline/internal/store"
	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
	"github.com/autoclipper/pipeline/pkg/gateway/media"
	"github.com/autoclipper/pipeline/pkg/gateway/speech"
)

// Handler names. Stable across process restarts: a worker re-registers these
// exact strings before it can claim a job that references one.
const (
	handlerProbe              = "probe"
	handlerGenerateCandidates = "generate_candidates"
	handlerTranscribePass1    = "transcribe_pass1"
	handlerLLMShortlist       = "llm_shortlist"
	handlerTranscribePass2    = "transcribe_pass2"
	handlerLLMRefine          = "llm_refine"
	handlerRenderPreview      = "render_preview"
)

// stageQueue routes each stage to the Dispatcher queue matching its
// resource profile: probing and candidate generation are I/O-bound fetches,
// the two transcription and two LLM stages are AI-bound, rendering is
// render-bound.
var stageQueue = map[string]dispatch.QueueName{
	handlerProbe:              dispatch.QueueIO,
	handlerGenerateCandidates: dispatch.QueueIO,
	handlerTranscribePass1:    dispatch.QueueAI,
	handlerLLMShortlist:       dispatch.QueueAI,
	handlerTranscribePass2:    dispatch.QueueAI,
	handlerLLMRefine:          dispatch.QueueAI,
	handlerRenderPreview:      dispatch.QueueRender,
}

// itemArgs is the job payload threaded through every stage: the Item id
// alone. Every handler re-loads the Item and its Clips from the store rather
// than carrying them in the payload, so a redelivered job always observes
// current state.
type itemArgs struct {
	ItemID string `json:"item_id"`
}

// Config bounds the pipeline's per-item behaviour.
type Config struct {
	Candidates       candidates.Policy
	ShortlistSendMax int // candidate windows offered to the LLM per Item, capped at 120 per spec
	ShortlistMax     int // default promoted-clip count when an Item/Subscription sets no override
	WorkDir          string
}

// DefaultShortlistSendMax is the spec's cap on candidates offered to the LLM
// Gateway's shortlist operation in one call.
const DefaultShortlistSendMax = 120

// Orchestrator wires the store, dispatcher, and every gateway/component the
// pipeline's seven stage handlers call.
type Orchestrator struct {
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	Media      media.Gateway
	Speech     speech.Gateway
	LLM        gwllm.Gateway
	Candidates *candidates.Generator
	QC         *recut.QualityControl
	Render     *render.Planner
	Config     Config
	Log        *slog.Logger

	// OnProgress, if set, is called after every successful phase transition
	// is persisted. The live progress stream (internal/wsprogress) wires
	// this to broadcast updates to connected operators.
	OnProgress func(item domain.Item)

	mu          sync.Mutex
	audioCache  map[string]string // item id -> downloaded audio path
	fullCache   map[string]string // item id -> downloaded full video path
}

// New creates an Orchestrator and wires OnPermanentFailure, but does not
// register handlers; call RegisterHandlers once before the worker process
// starts claiming jobs.
func New(st store.Store, d *dispatch.Dispatcher, m media.Gateway, sp speech.Gateway, llmGW gwllm.Gateway, gen *candidates.Generator, qc *recut.QualityControl, rp *render.Planner, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ShortlistSendMax <= 0 {
		cfg.ShortlistSendMax = DefaultShortlistSendMax
	}
	o := &Orchestrator{
		Store: st, Dispatcher: d, Media: m, Speech: sp, LLM: llmGW,
		Candidates: gen, QC: qc, Render: rp, Config: cfg, Log: log,
		audioCache: make(map[string]string),
		fullCache:  make(map[string]string),
	}
	d.OnPermanentFailure = o.onPermanentFailure
	return o
}

// publishProgress notifies OnProgress, if set, of item's current state.
func (o *Orchestrator) publishProgress(item domain.Item) {
	if o.OnProgress != nil {
		o.OnProgress(item)
	}
}

// RegisterHandlers binds every stage handler to the Dispatcher under its
// stable name. Call this once per worker process before Dispatcher.Run.
func (o *Orchestrator) RegisterHandlers() {
	o.Dispatcher.RegisterHandler(handlerProbe, o.handleProbe)
	o.Dispatcher.RegisterHandler(handlerGenerateCandidates, o.handleGenerateCandidates)
	o.Dispatcher.RegisterHandler(handlerTranscribePass1, o.handleTranscribePass1)
	o.Dispatcher.RegisterHandler(handlerLLMShortlist, o.handleLLMShortlist)
	o.Dispatcher.RegisterHandler(handlerTranscribePass2, o.handleTranscribePass2)
	o.Dispatcher.RegisterHandler(handlerLLMRefine, o.handleLLMRefine)
	o.Dispatcher.RegisterHandler(handlerRenderPreview, o.handleRenderPreview)
}

// Start transitions a freshly created Item from NEW into PROBING and
// enqueues the probe stage. Called by the Feed Poller and by manual-submit.
func (o *Orchestrator) Start(ctx context.Context, itemID string) error {
	item, err := o.Store.Items().Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("orchestrator: start: load item: %w", err)
	}
	if item.Phase != domain.PhaseNew {
		return nil
	}
	item.Phase = domain.PhaseProbing
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("orchestrator: start: persist phase: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerProbe, item.ID)
}

func (o *Orchestrator) enqueue(ctx context.Context, handler string, itemID string) error {
	queue, ok := stageQueue[handler]
	if !ok {
		queue = dispatch.QueueIO
	}
	_, err := o.Dispatcher.Enqueue(ctx, queue, handler, itemArgs{ItemID: itemID})
	return err
}

// sourceURL builds the external video-hosting URL for an Item from its
// external item id, the same template the source's youtube.py uses to
// recognise and construct "watch?v=" URLs.
func sourceURL(item domain.Item) string {
	return "https://www.youtube.com/watch?v=" + item.ExternalItemID
}

func decodeArgs(raw json.RawMessage) (itemArgs, error) {
	var a itemArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return itemArgs{}, fmt.Errorf("orchestrator: decode args: %w", err)
	}
	if a.ItemID == "" {
		return itemArgs{}, fmt.Errorf("orchestrator: decode args: missing item_id")
	}
	return a, nil
}

// onPermanentFailure is wired to Dispatcher.OnPermanentFailure: whatever
// stage exhausted its retries (or returned a FatalError) moves its Item to
// ERROR with the triggering cause recorded.
func (o *Orchestrator) onPermanentFailure(ctx context.Context, job dispatch.Job, cause error) {
	a, err := decodeArgs(job.Args)
	if err != nil {
		o.Log.Error("orchestrator: permanent failure with undecodable args", "job_id", job.ID, "error", err)
		return
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		o.Log.Error("orchestrator: permanent failure, item not found", "item_id", a.ItemID, "error", err)
		return
	}
	if item.Phase == domain.PhaseError || item.Phase == domain.PhaseReady {
		return
	}
	item.Phase = domain.PhaseError
	item.ErrorMessage = cause.Error()
	if err := o.Store.Items().Update(ctx, item); err != nil {
		o.Log.Error("orchestrator: failed to persist ERROR phase", "item_id", item.ID, "error", err)
	}
	o.publishProgress(item)
}

// getAudio returns a cached audio path for item, downloading it via the
// Media Gateway on first use. Concurrent renders and transcription passes
// over the same Item share the same downloaded file, per the shared
// resource policy.
func (o *Orchestrator) getAudio(ctx context.Context, item domain.Item) (string, error) {
	o.mu.Lock()
	if path, ok := o.audioCache[item.ID]; ok {
		o.mu.Unlock()
		return path, nil
	}
	o.mu.Unlock()

	path, err := o.Media.DownloadAudio(ctx, sourceURL(item))
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.audioCache[item.ID] = path
	o.mu.Unlock()
	return path, nil
}

// getFullVideo returns a cached full-video path for item, downloading it on
// first use.
func (o *Orchestrator) getFullVideo(ctx context.Context, item domain.Item) (string, error) {
	o.mu.Lock()
	if path, ok := o.fullCache[item.ID]; ok {
		o.mu.Unlock()
		return path, nil
	}
	o.mu.Unlock()

	path, err := o.Media.DownloadFull(ctx, sourceURL(item))
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.fullCache[item.ID] = path
	o.mu.Unlock()
	return path, nil
}

// releaseSource deletes any cached audio/full-video files for item and drops
// them from the cache, per the policy that the cached source is cleaned up
// after the final render stage.
func (o *Orchestrator) releaseSource(item domain.Item) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if path, ok := o.audioCache[item.ID]; ok {
		_ = os.Remove(path)
		delete(o.audioCache, item.ID)
	}
	if path, ok := o.fullCache[item.ID]; ok {
		_ = os.Remove(path)
		delete(o.fullCache, item.ID)
	}
}

// ─────────────────────────────────────────────────────────────────────────
// PROBING
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleProbe(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("probe: load item: %w", err)}
	}
	if item.Phase != domain.PhaseProbing {
		return nil // already past this stage
	}

	result, err := o.Media.Probe(ctx, sourceURL(item))
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if result.DurationSec <= 0 {
		return dispatch.FatalError{Err: fmt.Errorf("probe: item duration unknown")}
	}

	if item.Title == "" {
		item.Title = result.Title
	}
	item.DurationSec = result.DurationSec
	item.Chapters = make([]domain.Chapter, 0, len(result.Chapters))
	for _, ch := range result.Chapters {
		item.Chapters = append(item.Chapters, domain.Chapter{Title: ch.Title, Start: ch.StartSec, End: ch.EndSec})
	}
	// The strategy tag can only be fully resolved once candidate generation
	// runs (SILENCE requires downloaded audio); when chapters exist the
	// choice is already forced, so record it now rather than leaving every
	// probed Item's strategy blank until the next stage.
	if len(item.Chapters) > 0 {
		item.Strategy = domain.StrategyChapter
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("probe: persist: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerGenerateCandidates, item.ID)
}

// ─────────────────────────────────────────────────────────────────────────
// GENERATING_CANDIDATES
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleGenerateCandidates(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("generate_candidates: load item: %w", err)}
	}
	if item.Phase != domain.PhaseGeneratingCandidates {
		return nil
	}

	policy := o.effectiveCandidatePolicy(item)

	var audioPath string
	if len(item.Chapters) == 0 {
		// Only SILENCE needs audio; fetch it lazily so CHAPTER items never pay
		// for a download they don't use.
		path, err := o.getAudio(ctx, item)
		if err != nil {
			o.Log.Warn("generate_candidates: audio download failed, falling back to fixed interval", "item_id", item.ID, "error", err)
		} else {
			audioPath = path
		}
	}

	windows, strategy := o.Candidates.Generate(ctx, item.DurationSec, item.Chapters, audioPath, policy)
	if len(windows) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("generate_candidates: no candidate windows produced")}
	}

	for _, w := range windows {
		_, err := o.Store.Clips().Create(ctx, domain.Clip{
			ItemID:         item.ID,
			StartSec:       w.Start,
			EndSec:         w.End,
			SourceStrategy: strategy,
			RenderPhase:    domain.ClipCandidate,
			SourceInfo:     w.SourceInfo,
		})
		if err != nil {
			return fmt.Errorf("generate_candidates: create clip: %w", err)
		}
	}

	item.Strategy = strategy
	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("generate_candidates: persist: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerTranscribePass1, item.ID)
}

func (o *Orchestrator) effectiveCandidatePolicy(item domain.Item) candidates.Policy {
	policy := o.Config.Candidates
	if item.MinClipDuration != nil {
		policy.MinLen = *item.MinClipDuration
	}
	if item.MaxClipDuration != nil {
		policy.MaxLen = *item.MaxClipDuration
	}
	return policy
}

// effectiveMaxClips resolves an Item's target clip count, falling back to
// the shortlist stage's own configured max when neither the Item nor its
// Subscription overrides it.
func (o *Orchestrator) effectiveMaxClips(ctx context.Context, item domain.Item) int {
	if item.MaxClipsPerVideo != nil {
		return *item.MaxClipsPerVideo
	}
	if item.SubscriptionID != "" {
		if sub, err := o.Store.Subscriptions().Get(ctx, item.SubscriptionID); err == nil && sub.TargetCount > 0 {
			return sub.TargetCount
		}
	}
	return o.Config.ShortlistMax
}

// ─────────────────────────────────────────────────────────────────────────
// TRANSCRIBING_PASS1
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleTranscribePass1(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("transcribe_pass1: load item: %w", err)}
	}
	if item.Phase != domain.PhaseTranscribingPass1 {
		return nil
	}

	clips, err := o.Store.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipCandidate)
	if err != nil {
		return fmt.Errorf("transcribe_pass1: list clips: %w", err)
	}
	if len(clips) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("transcribe_pass1: no candidate clips")}
	}

	audioPath, err := o.getAudio(ctx, item)
	if err != nil {
		return fmt.Errorf("transcribe_pass1: download audio: %w", err)
	}

	windows := make([]speech.Window, len(clips))
	byID := make(map[string]domain.Clip, len(clips))
	for i, c := range clips {
		windows[i] = speech.Window{ID: c.ID, Start: c.StartSec, End: c.EndSec}
		byID[c.ID] = c
	}

	results, err := o.Speech.Pass1(ctx, audioPath, windows)
	if err != nil {
		return fmt.Errorf("transcribe_pass1: %w", err)
	}

	for _, r := range results {
		c, ok := byID[r.WindowID]
		if !ok {
			continue
		}
		c.Pass1Transcript = r.Text
		if err := o.Store.Clips().Update(ctx, c); err != nil {
			return fmt.Errorf("transcribe_pass1: persist clip %s: %w", c.ID, err)
		}
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("transcribe_pass1: persist item: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerLLMShortlist, item.ID)
}

// ─────────────────────────────────────────────────────────────────────────
// LLM_SHORTLISTING
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleLLMShortlist(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("llm_shortlist: load item: %w", err)}
	}
	if item.Phase != domain.PhaseLLMShortlisting {
		return nil
	}

	clips, err := o.Store.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipCandidate)
	if err != nil {
		return fmt.Errorf("llm_shortlist: list clips: %w", err)
	}
	if len(clips) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("llm_shortlist: no candidate clips")}
	}

	byID := make(map[string]domain.Clip, len(clips))
	sendN := len(clips)
	if sendN > o.Config.ShortlistSendMax {
		sendN = o.Config.ShortlistSendMax
	}
	candidatesReq := make([]gwllm.CandidateWindow, sendN)
	for i, c := range clips[:sendN] {
		byID[c.ID] = c
		candidatesReq[i] = gwllm.CandidateWindow{ID: c.ID, Start: c.StartSec, End: c.EndSec, Text: c.Pass1Transcript}
	}
	for _, c := range clips[sendN:] {
		byID[c.ID] = c
	}

	resp, err := o.LLM.Shortlist(ctx, gwllm.ShortlistRequest{
		Candidates: candidatesReq,
		MaxClips:   o.effectiveMaxClips(ctx, item),
	})
	if err != nil {
		return fmt.Errorf("llm_shortlist: shortlist: %w", err)
	}

	kept := make(map[string]gwllm.ShortlistedClip, len(resp.Clips))
	for _, sc := range resp.Clips {
		if _, ok := byID[sc.ID]; !ok {
			continue
		}
		if o.openingRejected(ctx, sc) {
			continue
		}
		kept[sc.ID] = sc
	}

	scored := make([]scoring.Candidate, 0, len(kept))
	finals := make(map[string]struct {
		features domain.Features
		final    float64
	}, len(kept))
	for id, sc := range kept {
		c := byID[id]
		features := scoring.Score(c.Pass1Transcript, c.Duration())
		final := scoring.Fuse(sc.ViralScore, features, sc.RiskFlags)
		finals[id] = struct {
			features domain.Features
			final    float64
		}{features, final}
		scored = append(scored, scoring.Candidate{ID: id, Score: final, Keywords: sc.Keywords})
	}

	survivorIDs := scoring.Diversify(scored)
	survivors := make(map[string]struct{}, len(survivorIDs))
	for _, id := range survivorIDs {
		survivors[id] = struct{}{}
	}

	for _, c := range clips {
		sc, isKept := kept[c.ID]
		if !isKept {
			if err := o.Store.Clips().Delete(ctx, c.ID); err != nil {
				return fmt.Errorf("llm_shortlist: delete unpromoted clip %s: %w", c.ID, err)
			}
			continue
		}
		if _, isSurvivor := survivors[c.ID]; !isSurvivor {
			if err := o.Store.Clips().Delete(ctx, c.ID); err != nil {
				return fmt.Errorf("llm_shortlist: delete non-diverse clip %s: %w", c.ID, err)
			}
			continue
		}

		f := finals[c.ID]
		c.LLMViralScore = sc.ViralScore
		c.HookText = sc.HookText
		c.Caption = sc.Caption
		c.RiskFlags = sc.RiskFlags
		c.Keywords = sc.Keywords
		c.Features = f.features
		c.FinalScore = f.final
		c.RenderPhase = domain.ClipShortlisted
		if err := o.Store.Clips().Update(ctx, c); err != nil {
			return fmt.Errorf("llm_shortlist: persist clip %s: %w", c.ID, err)
		}
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("llm_shortlist: persist item: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerTranscribePass2, item.ID)
}

// openingRejected runs validate_opening on a shortlisted clip's hook line as
// a cheap gate ahead of the expensive pass-2 transcription + refine stages:
// a clip whose opening the model judges weak is dropped here rather than
// after paying for precision transcription. Per the Gateway's own failure
// policy, a transport/parse error defaults to pass=true, so this can only
// reject on an explicit, successful weak verdict.
func (o *Orchestrator) openingRejected(ctx context.Context, sc gwllm.ShortlistedClip) bool {
	resp, err := o.LLM.ValidateOpening(ctx, gwllm.ValidateOpeningRequest{
		OpeningText: sc.HookText,
		DurationSec: sc.End - sc.Start,
	})
	if err != nil {
		return false
	}
	return !resp.Pass
}

// ─────────────────────────────────────────────────────────────────────────
// TRANSCRIBING_PASS2
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleTranscribePass2(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("transcribe_pass2: load item: %w", err)}
	}
	if item.Phase != domain.PhaseTranscribingPass2 {
		return nil
	}

	clips, err := o.Store.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipShortlisted)
	if err != nil {
		return fmt.Errorf("transcribe_pass2: list clips: %w", err)
	}
	if len(clips) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("transcribe_pass2: no shortlisted clips")}
	}

	audioPath, err := o.getAudio(ctx, item)
	if err != nil {
		return fmt.Errorf("transcribe_pass2: download audio: %w", err)
	}

	windows := make([]speech.Window, len(clips))
	for i, c := range clips {
		windows[i] = speech.Window{ID: c.ID, Start: c.StartSec, End: c.EndSec}
	}

	results, err := o.Speech.Pass2(ctx, audioPath, windows)
	if err != nil {
		return fmt.Errorf("transcribe_pass2: %w", err)
	}

	byID := make(map[string]domain.Clip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}
	for _, r := range results {
		c, ok := byID[r.ClipID]
		if !ok {
			continue
		}
		c.Pass2Transcript = r.Text
		c.WordTiming = r.Words
		if err := o.Store.Clips().Update(ctx, c); err != nil {
			return fmt.Errorf("transcribe_pass2: persist clip %s: %w", c.ID, err)
		}
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("transcribe_pass2: persist item: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerLLMRefine, item.ID)
}

// ─────────────────────────────────────────────────────────────────────────
// LLM_REFINING
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleLLMRefine(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("llm_refine: load item: %w", err)}
	}
	if item.Phase != domain.PhaseLLMRefining {
		return nil
	}

	clips, err := o.Store.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipShortlisted)
	if err != nil {
		return fmt.Errorf("llm_refine: list clips: %w", err)
	}
	if len(clips) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("llm_refine: no shortlisted clips")}
	}

	req := make([]gwllm.ShortlistedClip, len(clips))
	for i, c := range clips {
		req[i] = gwllm.ShortlistedClip{
			ID: c.ID, Start: c.StartSec, End: c.EndSec,
			ViralScore: c.LLMViralScore, HookText: c.HookText, Caption: c.Caption,
			RiskFlags: c.RiskFlags, Keywords: c.Keywords,
		}
	}

	resp, err := o.LLM.Refine(ctx, gwllm.RefineRequest{Clips: req})
	if err != nil {
		return fmt.Errorf("llm_refine: %w", err)
	}

	refinedByID := make(map[string]gwllm.ShortlistedClip, len(resp.Clips))
	for _, rc := range resp.Clips {
		refinedByID[rc.ID] = rc
	}

	for _, c := range clips {
		if rc, ok := refinedByID[c.ID]; ok {
			c.HookText = rc.HookText
			c.Caption = rc.Caption
			c.RiskFlags = rc.RiskFlags
			c.Keywords = rc.Keywords
		}

		c = recut.SnapAndClean(c)

		outcome, err := o.QC.Review(ctx, c)
		if err != nil {
			return fmt.Errorf("llm_refine: recut review clip %s: %w", c.ID, err)
		}
		if outcome.Dropped {
			if err := o.Store.Clips().Delete(ctx, c.ID); err != nil {
				return fmt.Errorf("llm_refine: delete dropped clip %s: %w", c.ID, err)
			}
			continue
		}

		c = outcome.Clip
		c.RenderPhase = domain.ClipReady
		if err := o.Store.Clips().Update(ctx, c); err != nil {
			return fmt.Errorf("llm_refine: persist clip %s: %w", c.ID, err)
		}
	}

	remaining, err := o.Store.Clips().CountByItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("llm_refine: count clips: %w", err)
	}
	if remaining == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("llm_refine: every clip was dropped by quality control")}
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("llm_refine: persist item: %w", err)
	}
	o.publishProgress(item)
	return o.enqueue(ctx, handlerRenderPreview, item.ID)
}

// ─────────────────────────────────────────────────────────────────────────
// RENDERING_PREVIEW
// ─────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleRenderPreview(ctx context.Context, args json.RawMessage) error {
	a, err := decodeArgs(args)
	if err != nil {
		return dispatch.FatalError{Err: err}
	}
	item, err := o.Store.Items().Get(ctx, a.ItemID)
	if err != nil {
		return dispatch.FatalError{Err: fmt.Errorf("render_preview: load item: %w", err)}
	}
	if item.Phase != domain.PhaseRenderingPreview {
		return nil
	}

	clips, err := o.Store.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipReady)
	if err != nil {
		return fmt.Errorf("render_preview: list clips: %w", err)
	}
	if len(clips) == 0 {
		return dispatch.FatalError{Err: fmt.Errorf("render_preview: no ready clips")}
	}

	sourcePath, err := o.getFullVideo(ctx, item)
	if err != nil {
		return fmt.Errorf("render_preview: download full video: %w", err)
	}

	for _, c := range clips {
		rendered, err := o.Render.Render(ctx, sourcePath, c)
		if err != nil {
			return fmt.Errorf("render_preview: render clip %s: %w", c.ID, err)
		}
		if err := o.Store.Clips().Update(ctx, rendered); err != nil {
			return fmt.Errorf("render_preview: persist clip %s: %w", c.ID, err)
		}
	}

	next, _ := item.Phase.Next()
	item.Phase = next
	if err := o.Store.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("render_preview: persist item: %w", err)
	}
	o.publishProgress(item)
	o.releaseSource(item)
	return nil
}
