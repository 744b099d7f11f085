// Package recut implements the Quality-Control Re-cutter (C9): an LLM-backed
// opening/ending review that proposes a bounded time-shift, plus the
// deterministic Snap & Clean pass that runs ahead of rendering using word
// timing alone.
package recut

import (
	"context"
	"fmt"
	"strings"

	"github.com/autoclipper/pipeline/internal/domain"
	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
)

const (
	openingWindowSec  = 10.0
	endingWindowSec   = 12.0
	openingWordFallback = 25
	endingWordFallback  = 25

	recutShiftClamp = 3.0
	minRecutLenSec  = 30.0

	minSnapLenSec = 5.0
)

// fillerTokens are skipped at the start of a clip by Snap & Clean when
// looking for the first substantive word, across English and Indonesian.
var fillerTokens = map[string]struct{}{
	"um": {}, "umm": {}, "uh": {}, "uhh": {}, "like": {}, "so": {},
	"well": {}, "actually": {}, "basically": {}, "literally": {}, "okay": {},
	"ok": {}, "right": {}, "you": {}, "know": {},
	"eh": {}, "jadi": {}, "gitu": {}, "kan": {}, "nah": {}, "anu": {}, "gini": {},
}

// Outcome is the result of applying a recut decision to a clip. Dropped is
// true when the clip should be removed entirely.
type Outcome struct {
	Clip    domain.Clip
	Dropped bool
}

// QualityControl invokes the LLM Gateway's final_qc operation and applies
// its recut plan to a clip.
type QualityControl struct {
	LLM gwllm.Gateway
}

func NewQualityControl(llm gwllm.Gateway) *QualityControl {
	return &QualityControl{LLM: llm}
}

// Review runs final_qc on clip and returns the post-recut Outcome. clip must
// already carry pass2 word timing (word-timing-less clips use the word-count
// fallback windows).
func (qc *QualityControl) Review(ctx context.Context, clip domain.Clip) (Outcome, error) {
	opening := openingText(clip)
	ending := endingText(clip)

	resp, err := qc.LLM.FinalQC(ctx, gwllm.FinalQCRequest{
		ClipID:      clip.ID,
		DurationSec: clip.Duration(),
		OpeningText: opening,
		EndingText:  ending,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("recut: final_qc: %w", err)
	}

	return applyRecutPlan(clip, resp.RecutPlan), nil
}

func applyRecutPlan(clip domain.Clip, plan gwllm.RecutPlan) Outcome {
	switch plan.Action {
	case gwllm.RecutDrop:
		return Outcome{Clip: clip, Dropped: true}
	case gwllm.RecutNone, "":
		return Outcome{Clip: clip}
	case gwllm.RecutShiftStart, gwllm.RecutShiftEnd, gwllm.RecutShiftBoth:
		shiftStart, shiftEnd := 0.0, 0.0
		if plan.Action == gwllm.RecutShiftStart || plan.Action == gwllm.RecutShiftBoth {
			shiftStart = clamp(plan.ShiftStartBySec, -recutShiftClamp, recutShiftClamp)
		}
		if plan.Action == gwllm.RecutShiftEnd || plan.Action == gwllm.RecutShiftBoth {
			shiftEnd = clamp(plan.ShiftEndBySec, -recutShiftClamp, recutShiftClamp)
		}

		newStart := clip.StartSec + shiftStart
		newEnd := clip.EndSec + shiftEnd
		if newEnd-newStart < minRecutLenSec || newStart < 0 {
			return Outcome{Clip: clip}
		}

		clip.StartSec = newStart
		clip.EndSec = newEnd
		clip.TimingOffset += shiftStart
		clip.WasRecut = true
		return Outcome{Clip: clip}
	default:
		return Outcome{Clip: clip}
	}
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

// openingText returns the clip's first ~10 seconds of transcript by word
// timing if available, else the first ~25 words of the pass2 transcript.
func openingText(clip domain.Clip) string {
	if len(clip.WordTiming) > 0 {
		var words []string
		for _, w := range clip.WordTiming {
			if w.Start > openingWindowSec {
				break
			}
			words = append(words, w.Word)
		}
		return strings.Join(words, " ")
	}
	return strings.Join(firstN(strings.Fields(clip.Pass2Transcript), openingWordFallback), " ")
}

// endingText returns the clip's last ~12 seconds of transcript by word
// timing if available, else the last ~25 words of the pass2 transcript.
func endingText(clip domain.Clip) string {
	if len(clip.WordTiming) > 0 {
		cutoff := clip.Duration() - endingWindowSec
		var words []string
		for _, w := range clip.WordTiming {
			if w.End >= cutoff {
				words = append(words, w.Word)
			}
		}
		return strings.Join(words, " ")
	}
	return strings.Join(lastN(strings.Fields(clip.Pass2Transcript), endingWordFallback), " ")
}

func firstN(ws []string, n int) []string {
	if len(ws) <= n {
		return ws
	}
	return ws[:n]
}

func lastN(ws []string, n int) []string {
	if len(ws) <= n {
		return ws
	}
	return ws[len(ws)-n:]
}

// SnapAndClean deterministically trims clip using word timing alone: leading
// filler tokens are skipped to find the first substantive word, the clip end
// is snapped to the last word's end, and the result is accepted only if its
// length is >= minSnapLenSec. Any effective shift of the start is folded into
// TimingOffset. Clips without word timing are returned unchanged.
func SnapAndClean(clip domain.Clip) domain.Clip {
	if len(clip.WordTiming) == 0 {
		return clip
	}

	first := 0
	for first < len(clip.WordTiming) {
		token := strings.ToLower(strings.Trim(clip.WordTiming[first].Word, ".,!?;:\"'"))
		if _, filler := fillerTokens[token]; !filler {
			break
		}
		first++
	}
	if first == len(clip.WordTiming) {
		return clip
	}

	newStartOffset := clip.WordTiming[first].Start
	lastWord := clip.WordTiming[len(clip.WordTiming)-1]
	newEnd := clip.StartSec + lastWord.End

	if newEnd-(clip.StartSec+newStartOffset) < minSnapLenSec {
		return clip
	}

	clip.StartSec += newStartOffset
	clip.EndSec = newEnd
	clip.TimingOffset += newStartOffset
	return clip
}
