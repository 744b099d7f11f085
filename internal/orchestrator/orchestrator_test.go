package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/autoclipper/pipeline/internal/candidates"
	"github.com/autoclipper/pipeline/internal/dispatch"
	"github.com/autoclipper/pipeline/internal/dispatch/memqueue"
	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/recut"
	"github.com/autoclipper/pipeline/internal/render"
	"github.com/autoclipper/pipeline/internal/store"
	"github.com/autoclipper/pipeline/internal/store/memstore"
	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
	llmmock "github.com/autoclipper/pipeline/pkg/gateway/llm/mock"
	"github.com/autoclipper/pipeline/pkg/gateway/media"
	mediamock "github.com/autoclipper/pipeline/pkg/gateway/media/mock"
	"github.com/autoclipper/pipeline/pkg/gateway/speech"
	speechmock "github.com/autoclipper/pipeline/pkg/gateway/speech/mock"
)

// testHarness bundles a freshly built Orchestrator over an in-memory store
// and in-memory job queue, with every gateway defaulting to its mock's
// pass-through behaviour unless a test overrides a specific Func field.
type testHarness struct {
	st     store.Store
	q      *memqueue.Store
	d      *dispatch.Dispatcher
	media  *mediamock.Gateway
	speech *speechmock.Gateway
	llm    *llmmock.Gateway
	orch   *Orchestrator
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st := memstore.New()
	q := memqueue.New()
	d := dispatch.New(q, nil)
	mediaGW := &mediamock.Gateway{}
	speechGW := &speechmock.Gateway{}
	llmGW := &llmmock.Gateway{}

	gen := candidates.NewGenerator(mediaGW)
	qc := recut.NewQualityControl(llmGW)
	renderer := render.NewPlanner(mediaGW, t.TempDir())

	cfg := Config{
		Candidates: candidates.Policy{MinLen: 75, MaxLen: 180, ShiftSec: 15, Limit: 50},
	}

	orch := New(st, d, mediaGW, speechGW, llmGW, gen, qc, renderer, cfg, nil)
	orch.RegisterHandlers()

	return &testHarness{st: st, q: q, d: d, media: mediaGW, speech: speechGW, llm: llmGW, orch: orch}
}

func mustCreateItem(t *testing.T, st store.Store, it domain.Item) domain.Item {
	t.Helper()
	created, err := st.Items().Create(context.Background(), it)
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return created
}

func argsFor(t *testing.T, itemID string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(itemArgs{ItemID: itemID})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return raw
}

func TestSourceURL(t *testing.T) {
	got := sourceURL(domain.Item{ExternalItemID: "abc123"})
	want := "https://www.youtube.com/watch?v=abc123"
	if got != want {
		t.Errorf("sourceURL = %q, want %q", got, want)
	}
}

func TestStart_TransitionsNewToProbingAndEnqueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseNew})

	if err := h.orch.Start(ctx, item.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := h.st.Items().Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Phase != domain.PhaseProbing {
		t.Errorf("Phase = %v, want PROBING", got.Phase)
	}

	job, ok, err := h.q.Claim(ctx, []dispatch.QueueName{dispatch.QueueIO}, time.Now())
	if err != nil || !ok {
		t.Fatalf("Claim: ok=%v err=%v", ok, err)
	}
	if job.Handler != handlerProbe {
		t.Errorf("Handler = %q, want %q", job.Handler, handlerProbe)
	}
}

func TestStart_NoopWhenNotNew(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseProbing})

	if err := h.orch.Start(ctx, item.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok, _ := h.q.Claim(ctx, []dispatch.QueueName{dispatch.QueueIO}, time.Now()); ok {
		t.Error("Start on a non-NEW item should not enqueue anything")
	}
}

func TestHandleProbe_PersistsChapterStrategyAndAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseProbing})

	h.media.ProbeFunc = func(ctx context.Context, url string) (media.ProbeResult, error) {
		if url != sourceURL(item) {
			t.Errorf("Probe url = %q, want %q", url, sourceURL(item))
		}
		return media.ProbeResult{
			DurationSec: 600,
			Chapters: []media.Chapter{
				{Title: "Intro", StartSec: 0, EndSec: 120},
				{Title: "Main", StartSec: 120, EndSec: 540},
			},
		}, nil
	}

	if err := h.orch.handleProbe(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleProbe: %v", err)
	}

	got, _ := h.st.Items().Get(ctx, item.ID)
	if got.DurationSec != 600 {
		t.Errorf("DurationSec = %v, want 600", got.DurationSec)
	}
	if len(got.Chapters) != 2 {
		t.Fatalf("Chapters len = %d, want 2", len(got.Chapters))
	}
	if got.Strategy != domain.StrategyChapter {
		t.Errorf("Strategy = %v, want CHAPTER", got.Strategy)
	}
	if got.Phase != domain.PhaseGeneratingCandidates {
		t.Errorf("Phase = %v, want GENERATING_CANDIDATES", got.Phase)
	}

	job, ok, err := h.q.Claim(ctx, []dispatch.QueueName{dispatch.QueueIO}, time.Now())
	if err != nil || !ok {
		t.Fatalf("Claim: ok=%v err=%v", ok, err)
	}
	if job.Handler != handlerGenerateCandidates {
		t.Errorf("Handler = %q, want %q", job.Handler, handlerGenerateCandidates)
	}
}

func TestHandleProbe_ZeroDurationIsFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseProbing})
	h.media.ProbeFunc = func(ctx context.Context, url string) (media.ProbeResult, error) {
		return media.ProbeResult{DurationSec: 0}, nil
	}

	err := h.orch.handleProbe(ctx, argsFor(t, item.ID))
	var fatal dispatch.FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("handleProbe error = %v, want a FatalError", err)
	}
}

func TestHandleProbe_NoopWhenPastPhase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseGeneratingCandidates})
	called := false
	h.media.ProbeFunc = func(ctx context.Context, url string) (media.ProbeResult, error) {
		called = true
		return media.ProbeResult{DurationSec: 600}, nil
	}

	if err := h.orch.handleProbe(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleProbe: %v", err)
	}
	if called {
		t.Error("handleProbe should be a no-op once the item is past PROBING")
	}
}

func TestHandleGenerateCandidates_FixedIntervalFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{
		ExternalItemID: "vid1", Phase: domain.PhaseGeneratingCandidates, DurationSec: 300,
	})

	h.media.DownloadAudioFunc = func(ctx context.Context, url string) (string, error) {
		return "/tmp/audio.wav", nil
	}
	h.media.DetectSilenceFunc = func(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error) {
		return nil, errors.New("detector unavailable")
	}

	if err := h.orch.handleGenerateCandidates(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleGenerateCandidates: %v", err)
	}

	got, _ := h.st.Items().Get(ctx, item.ID)
	if got.Strategy != domain.StrategyFixedInterval {
		t.Errorf("Strategy = %v, want FIXED_INTERVAL", got.Strategy)
	}
	if got.Phase != domain.PhaseTranscribingPass1 {
		t.Errorf("Phase = %v, want TRANSCRIBING_PASS1", got.Phase)
	}

	clips, err := h.st.Clips().ListByItemAndPhase(ctx, item.ID, domain.ClipCandidate)
	if err != nil {
		t.Fatalf("ListByItemAndPhase: %v", err)
	}
	// start = 0, 15, ..., 225 (D - min_len = 225) -> 16 windows.
	if len(clips) != 16 {
		t.Errorf("len(clips) = %d, want 16", len(clips))
	}

	job, ok, _ := h.q.Claim(ctx, []dispatch.QueueName{dispatch.QueueAI}, time.Now())
	if !ok || job.Handler != handlerTranscribePass1 {
		t.Errorf("expected an enqueued %q job on the AI queue, got ok=%v handler=%q", handlerTranscribePass1, ok, job.Handler)
	}
}

func TestHandleTranscribePass1_PersistsTextAndAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseTranscribingPass1})
	c1, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 0, EndSec: 90, RenderPhase: domain.ClipCandidate})
	c2, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 90, EndSec: 180, RenderPhase: domain.ClipCandidate})

	h.media.DownloadAudioFunc = func(ctx context.Context, url string) (string, error) { return "/tmp/audio.wav", nil }
	h.speech.Pass1Func = func(ctx context.Context, audioPath string, windows []speech.Window) ([]speech.Pass1Result, error) {
		out := make([]speech.Pass1Result, len(windows))
		for i, w := range windows {
			out[i] = speech.Pass1Result{WindowID: w.ID, Text: "transcript for " + w.ID}
		}
		return out, nil
	}

	if err := h.orch.handleTranscribePass1(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleTranscribePass1: %v", err)
	}

	got1, _ := h.st.Clips().Get(ctx, c1.ID)
	if got1.Pass1Transcript != "transcript for "+c1.ID {
		t.Errorf("clip 1 Pass1Transcript = %q", got1.Pass1Transcript)
	}
	got2, _ := h.st.Clips().Get(ctx, c2.ID)
	if got2.Pass1Transcript != "transcript for "+c2.ID {
		t.Errorf("clip 2 Pass1Transcript = %q", got2.Pass1Transcript)
	}

	item, _ = h.st.Items().Get(ctx, item.ID)
	if item.Phase != domain.PhaseLLMShortlisting {
		t.Errorf("Phase = %v, want LLM_SHORTLISTING", item.Phase)
	}
}

func TestHandleLLMShortlist_PromotesScoresDiversifiesAndDeletesRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseLLMShortlisting})

	// A and B are near-duplicate keyword sets (should diversify to A only,
	// A has the higher fused score). C is unrelated and survives. D is never
	// returned by Shortlist at all (unpromoted, should be deleted outright).
	a, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 0, EndSec: 90, Pass1Transcript: "imagine the secret to money", RenderPhase: domain.ClipCandidate})
	b, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 90, EndSec: 180, Pass1Transcript: "ordinary content", RenderPhase: domain.ClipCandidate})
	c, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 180, EndSec: 270, Pass1Transcript: "motivation and grit", RenderPhase: domain.ClipCandidate})
	d, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 270, EndSec: 360, Pass1Transcript: "never picked", RenderPhase: domain.ClipCandidate})

	h.llm.ShortlistFunc = func(ctx context.Context, req gwllm.ShortlistRequest) (gwllm.ShortlistResponse, error) {
		return gwllm.ShortlistResponse{Clips: []gwllm.ShortlistedClip{
			{ID: a.ID, Start: a.StartSec, End: a.EndSec, ViralScore: 80, HookText: "hook a", Keywords: []string{"finance", "interest"}},
			{ID: b.ID, Start: b.StartSec, End: b.EndSec, ViralScore: 70, HookText: "hook b", Keywords: []string{"finance", "interest"}},
			{ID: c.ID, Start: c.StartSec, End: c.EndSec, ViralScore: 60, HookText: "hook c", Keywords: []string{"motivation", "grit"}},
		}}, nil
	}
	// ValidateOpening left at its mock default (Pass: true) for all three.

	if err := h.orch.handleLLMShortlist(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleLLMShortlist: %v", err)
	}

	if _, err := h.st.Clips().Get(ctx, b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("clip B should have been deleted as a near-duplicate, err=%v", err)
	}
	if _, err := h.st.Clips().Get(ctx, d.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("clip D should have been deleted as unpromoted, err=%v", err)
	}

	gotA, err := h.st.Clips().Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("clip A should survive: %v", err)
	}
	if gotA.RenderPhase != domain.ClipShortlisted {
		t.Errorf("clip A RenderPhase = %v, want SHORTLISTED", gotA.RenderPhase)
	}
	if gotA.FinalScore <= 0 {
		t.Errorf("clip A FinalScore = %v, want > 0", gotA.FinalScore)
	}

	if _, err := h.st.Clips().Get(ctx, c.ID); err != nil {
		t.Errorf("clip C should survive (unrelated keywords): %v", err)
	}

	item, _ = h.st.Items().Get(ctx, item.ID)
	if item.Phase != domain.PhaseTranscribingPass2 {
		t.Errorf("Phase = %v, want TRANSCRIBING_PASS2", item.Phase)
	}
}

func TestHandleLLMShortlist_ValidateOpeningRejectsWeakHook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseLLMShortlisting})
	a, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 0, EndSec: 90, Pass1Transcript: "weak opener", RenderPhase: domain.ClipCandidate})

	h.llm.ShortlistFunc = func(ctx context.Context, req gwllm.ShortlistRequest) (gwllm.ShortlistResponse, error) {
		return gwllm.ShortlistResponse{Clips: []gwllm.ShortlistedClip{
			{ID: a.ID, Start: a.StartSec, End: a.EndSec, ViralScore: 50, HookText: "uh so yeah", Keywords: []string{"x"}},
		}}, nil
	}
	h.llm.ValidateOpeningFunc = func(ctx context.Context, req gwllm.ValidateOpeningRequest) (gwllm.ValidateOpeningResponse, error) {
		return gwllm.ValidateOpeningResponse{Pass: false, OpeningType: gwllm.OpeningWeak}, nil
	}

	if err := h.orch.handleLLMShortlist(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleLLMShortlist: %v", err)
	}

	if _, err := h.st.Clips().Get(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("clip with a rejected opening should have been deleted, err=%v", err)
	}
}

func TestHandleTranscribePass2_PersistsWordTimingAndAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseTranscribingPass2})
	c1, _ := h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 0, EndSec: 90, RenderPhase: domain.ClipShortlisted})

	h.media.DownloadAudioFunc = func(ctx context.Context, url string) (string, error) { return "/tmp/audio.wav", nil }
	h.speech.Pass2Func = func(ctx context.Context, audioPath string, windows []speech.Window) ([]speech.Pass2Result, error) {
		return []speech.Pass2Result{{
			ClipID: c1.ID,
			Text:   "hello world",
			Words:  []domain.WordTiming{{Word: "hello", Start: 0, End: 0.4}, {Word: "world", Start: 0.4, End: 0.9}},
		}}, nil
	}

	if err := h.orch.handleTranscribePass2(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleTranscribePass2: %v", err)
	}

	got, _ := h.st.Clips().Get(ctx, c1.ID)
	if got.Pass2Transcript != "hello world" {
		t.Errorf("Pass2Transcript = %q", got.Pass2Transcript)
	}
	if len(got.WordTiming) != 2 {
		t.Fatalf("WordTiming len = %d, want 2", len(got.WordTiming))
	}

	item, _ = h.st.Items().Get(ctx, item.ID)
	if item.Phase != domain.PhaseLLMRefining {
		t.Errorf("Phase = %v, want LLM_REFINING", item.Phase)
	}
}

func TestHandleLLMRefine_SnapsRecutsAndMarksReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseLLMRefining})
	// "um" is a filler token SnapAndClean skips; the clip should shift its
	// start to "hello" and its timing_offset should record that shift. The
	// last word's end is kept far enough out that the post-snap length still
	// clears minSnapLenSec.
	c1, _ := h.st.Clips().Create(ctx, domain.Clip{
		ItemID: item.ID, StartSec: 100, EndSec: 175, RenderPhase: domain.ClipShortlisted,
		Pass2Transcript: "um hello world today",
		WordTiming: []domain.WordTiming{
			{Word: "um", Start: 0, End: 0.3},
			{Word: "hello", Start: 0.3, End: 0.8},
			{Word: "world", Start: 0.8, End: 1.3},
			{Word: "today", Start: 74.2, End: 74.7},
		},
	})
	// RefineFunc left at default (echoes the request's clips unchanged).
	// FinalQCFunc left at default (pass=true, action=none).

	if err := h.orch.handleLLMRefine(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleLLMRefine: %v", err)
	}

	got, err := h.st.Clips().Get(ctx, c1.ID)
	if err != nil {
		t.Fatalf("clip should survive QC: %v", err)
	}
	if got.StartSec != 100.3 {
		t.Errorf("StartSec = %v, want 100.3 (snapped past the filler word)", got.StartSec)
	}
	if got.TimingOffset != 0.3 {
		t.Errorf("TimingOffset = %v, want 0.3", got.TimingOffset)
	}
	if got.RenderPhase != domain.ClipReady {
		t.Errorf("RenderPhase = %v, want READY", got.RenderPhase)
	}

	item, _ = h.st.Items().Get(ctx, item.ID)
	if item.Phase != domain.PhaseRenderingPreview {
		t.Errorf("Phase = %v, want RENDERING_PREVIEW", item.Phase)
	}

	job, ok, _ := h.q.Claim(ctx, []dispatch.QueueName{dispatch.QueueRender}, time.Now())
	if !ok || job.Handler != handlerRenderPreview {
		t.Errorf("expected an enqueued %q job on the render queue, got ok=%v handler=%q", handlerRenderPreview, ok, job.Handler)
	}
}

func TestHandleLLMRefine_EveryClipDroppedIsFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseLLMRefining})
	h.st.Clips().Create(ctx, domain.Clip{ItemID: item.ID, StartSec: 0, EndSec: 90, RenderPhase: domain.ClipShortlisted})

	h.llm.FinalQCFunc = func(ctx context.Context, req gwllm.FinalQCRequest) (gwllm.FinalQCResponse, error) {
		return gwllm.FinalQCResponse{Pass: false, RecutPlan: gwllm.RecutPlan{Action: gwllm.RecutDrop}}, nil
	}

	err := h.orch.handleLLMRefine(ctx, argsFor(t, item.ID))
	var fatal dispatch.FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("handleLLMRefine error = %v, want a FatalError", err)
	}
}

func TestHandleRenderPreview_RendersAndCompletesItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseRenderingPreview})
	c1, _ := h.st.Clips().Create(ctx, domain.Clip{
		ItemID: item.ID, StartSec: 100, EndSec: 175, RenderPhase: domain.ClipReady,
		WordTiming: []domain.WordTiming{{Word: "hi", Start: 1.5, End: 1.9}},
	})

	h.media.DownloadFullFunc = func(ctx context.Context, url string) (string, error) { return "/tmp/full.mp4", nil }
	h.media.CutFunc = func(ctx context.Context, sourcePath string, startSec, endSec float64, subtitlePath string) (string, error) {
		return "/tmp/out.mp4", nil
	}
	h.media.ThumbnailFunc = func(ctx context.Context, clipPath string) (string, error) { return "/tmp/out.jpg", nil }

	if err := h.orch.handleRenderPreview(ctx, argsFor(t, item.ID)); err != nil {
		t.Fatalf("handleRenderPreview: %v", err)
	}

	got, _ := h.st.Clips().Get(ctx, c1.ID)
	if got.FileRef != "/tmp/out.mp4" || got.ThumbRef != "/tmp/out.jpg" || got.SubtitleRef == "" {
		t.Errorf("clip render refs not persisted: %+v", got)
	}

	item, _ = h.st.Items().Get(ctx, item.ID)
	if item.Phase != domain.PhaseReady {
		t.Errorf("Phase = %v, want READY", item.Phase)
	}

	h.orch.mu.Lock()
	_, cached := h.orch.fullCache[item.ID]
	h.orch.mu.Unlock()
	if cached {
		t.Error("full video cache entry should be released after the final render stage")
	}
}

func TestOnPermanentFailure_MovesItemToError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := mustCreateItem(t, h.st, domain.Item{ExternalItemID: "vid1", Phase: domain.PhaseTranscribingPass1})

	job := dispatch.Job{ID: "j1", Args: argsFor(t, item.ID)}
	h.orch.onPermanentFailure(ctx, job, errors.New("boom"))

	got, _ := h.st.Items().Get(ctx, item.ID)
	if got.Phase != domain.PhaseError {
		t.Errorf("Phase = %v, want ERROR", got.Phase)
	}
	if got.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %q, want boom", got.ErrorMessage)
	}
}
