package scoring

import (
	"sort"
	"strings"
)

// Candidate is one scored clip offered to the Diversity Filter.
type Candidate struct {
	ID       string
	Score    float64
	Keywords []string
}

// DiversityThreshold is the Jaccard similarity at or above which a candidate
// is considered a near-duplicate of an already-kept one.
const DiversityThreshold = 0.7

// normalizeKeywords lowercases, trims, and drops empty keywords, returning a
// set suitable for Jaccard comparison.
func normalizeKeywords(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		set[kw] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for kw := range a {
		if _, ok := b[kw]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Diversify greedily keeps candidates in descending score order, dropping
// any candidate whose keyword set is >= DiversityThreshold Jaccard-similar
// to an already-kept candidate's. Returns the kept ids, in kept order.
func Diversify(candidates []Candidate) []string {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var keptSets []map[string]struct{}
	var keptIDs []string

	for _, c := range sorted {
		set := normalizeKeywords(c.Keywords)
		duplicate := false
		for _, keptSet := range keptSets {
			if jaccard(set, keptSet) >= DiversityThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		keptSets = append(keptSets, set)
		keptIDs = append(keptIDs, c.ID)
	}
	return keptIDs
}
