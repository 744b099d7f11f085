// Package scoring implements the deterministic Heuristic Scorer (hook,
// finance, action, payoff, clarity, pacing features + fusion with the LLM
// viral score) and the Jaccard-based Diversity Filter used to de-duplicate
// the shortlist before rendering.
//
// Marker word sets cover English and Indonesian, the two languages the
// source's own scoring module docstring names as its target content mix;
// no richer reference implementation survived in original_source, so the
// marker lists themselves are new, built to the shape spec.md describes.
//
// Marker matching runs against Whisper-transcribed text, which routinely
// misspells or mis-segments words, so matches are scored with Jaro-Winkler
// similarity rather than exact substring search.
package scoring

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/autoclipper/pipeline/internal/domain"
)

// fuzzyMarkerThreshold is the minimum Jaro-Winkler similarity between a
// token window and a marker phrase for the window to count as a match. Set
// below 1.0 so ASR substitutions ("immagine" for "imagine") still count.
const fuzzyMarkerThreshold = 0.88

// riskPenalty is the fixed per-flag penalty table.
var riskPenalty = map[domain.RiskFlag]float64{
	domain.RiskNeedsContext:   10,
	domain.RiskTooSlow:        10,
	domain.RiskSensitive:      15,
	domain.RiskUnclearAudio:   10,
	domain.RiskCopyrightMusic: 8,
}

var hookMarkers = []string{
	// English
	"imagine", "what if", "secret", "nobody tells you", "here's why",
	"the truth is", "did you know", "warning", "biggest mistake", "shocking",
	// Indonesian
	"bayangkan", "rahasia", "ternyata", "ini alasannya", "tahukah kamu",
	"jangan sampai", "kesalahan terbesar", "peringatan",
}

var financeMarkers = []string{
	// English
	"money", "profit", "invest", "stock", "income", "salary", "interest rate",
	"return on", "dividend", "revenue", "savings",
	// Indonesian
	"uang", "untung", "investasi", "saham", "penghasilan", "gaji", "bunga",
	"keuntungan", "dividen", "pendapatan", "tabungan",
}

var payoffMarkers = []string{
	// English
	"in conclusion", "the result", "that's why", "bottom line", "so remember",
	"the takeaway", "and that's how",
	// Indonesian
	"jadi", "kesimpulannya", "hasilnya", "itulah sebabnya", "intinya",
}

var vagueWords = []string{
	"thing", "stuff", "something", "somehow", "whatever",
	"itu", "gitu", "pokoknya",
}

var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow to\b`),
	regexp.MustCompile(`(?i)\b\d+\s+(ways|tips|steps|reasons)\b`),
	regexp.MustCompile(`(?i)\bstep\s+\d+\b`),
	regexp.MustCompile(`(?i)\btry this\b`),
	regexp.MustCompile(`(?i)\bdo this\b`),
	regexp.MustCompile(`(?i)\bcara\b`),
	regexp.MustCompile(`(?i)\blangkah\s+\d+\b`),
	regexp.MustCompile(`(?i)\blakukan ini\b`),
}

var numericTokenRe = regexp.MustCompile(`\d+([.,]\d+)?%?`)

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func countMatches(text string, markers []string) int {
	tokens := words(strings.ToLower(text))
	n := 0
	for _, m := range markers {
		n += countMarkerWindows(tokens, strings.Fields(m))
	}
	return n
}

// countMarkerWindows slides a window the width of markerTokens across
// tokens and counts windows whose joined text is Jaro-Winkler similar
// enough to the marker phrase to count as an ASR-noisy match.
func countMarkerWindows(tokens, markerTokens []string) int {
	k := len(markerTokens)
	if k == 0 || len(tokens) < k {
		return 0
	}
	marker := strings.Join(markerTokens, " ")
	n := 0
	for i := 0; i+k <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+k], " ")
		if window == marker || matchr.JaroWinkler(window, marker, false) >= fuzzyMarkerThreshold {
			n++
		}
	}
	return n
}

func words(text string) []string {
	return strings.Fields(text)
}

func firstWords(ws []string, n int) []string {
	if len(ws) <= n {
		return ws
	}
	return ws[:n]
}

func lastWords(ws []string, n int) []string {
	if len(ws) <= n {
		return ws
	}
	return ws[len(ws)-n:]
}

func hookScore(text string) float64 {
	head := strings.Join(firstWords(words(text), 25), " ")
	score := 12 * float64(countMatches(head, hookMarkers))
	score += min(10, 2*float64(strings.Count(text, "!")))
	score += min(8, 1.5*float64(strings.Count(text, "?")))
	return clamp(score, 0, 100)
}

func financeScore(text string) float64 {
	numericCount := len(numericTokenRe.FindAllString(text, -1))
	score := min(20, 5*float64(numericCount))
	score += 8 * float64(countMatches(text, financeMarkers))
	return clamp(score, 0, 100)
}

func actionScore(text string) float64 {
	score := 0.0
	for _, re := range actionPatterns {
		score += 20 * float64(len(re.FindAllString(text, -1)))
	}
	return clamp(score, 0, 100)
}

func payoffScore(text string) float64 {
	tail := strings.Join(lastWords(words(text), 35), " ")
	score := 25 * float64(countMatches(tail, payoffMarkers))
	return clamp(score, 0, 100)
}

func clarityScore(text string) float64 {
	long, vague := 0, 0
	for _, w := range words(text) {
		trimmed := strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
		if len(trimmed) >= 7 {
			long++
		}
		for _, v := range vagueWords {
			if trimmed == v {
				vague++
			}
		}
	}
	score := 60 + 2*float64(long) - 6*float64(vague)
	return clamp(score, 0, 100)
}

func pacingScore(text string, durationSec float64) float64 {
	if durationSec <= 0 {
		return 20
	}
	wordCount := float64(len(words(text)))
	wpm := 60 * wordCount / durationSec
	if wpm < 80 || wpm > 240 {
		return 10
	}
	score := 100 - (absFloat(wpm-160)/80)*80
	return clamp(max(score, 20), 0, 100)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Score computes the full Features vector from transcript and duration. It
// is pure: identical inputs always produce identical output.
func Score(transcript string, durationSec float64) domain.Features {
	return domain.Features{
		Hook:    hookScore(transcript),
		Finance: financeScore(transcript),
		Action:  actionScore(transcript),
		Payoff:  payoffScore(transcript),
		Clarity: clarityScore(transcript),
		Pacing:  pacingScore(transcript, durationSec),
	}
}

// RiskPenalty sums the fixed penalty table over flags.
func RiskPenalty(flags []domain.RiskFlag) float64 {
	total := 0.0
	for _, f := range flags {
		total += riskPenalty[f]
	}
	return total
}

// Fuse combines the LLM viral score with the heuristic feature vector and
// risk penalty into the clip's final_score.
func Fuse(llmScore float64, features domain.Features, flags []domain.RiskFlag) float64 {
	penalty := RiskPenalty(flags)
	final := 0.50*llmScore + 0.18*features.Hook + 0.10*features.Finance +
		0.08*features.Action + 0.08*features.Payoff + 0.04*features.Clarity +
		0.02*features.Pacing - penalty
	return clamp(final, 0, 100)
}
