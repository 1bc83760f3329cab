package cache

import "strings"

// Weights for the combined contextual-match score.
const (
	promptWeight  = 0.7
	contextWeight = 0.3
)

// similarity computes the combined score between a candidate entry and the
// incoming lookup: weighted Jaccard similarity of the normalized prompt token
// sets plus piecewise ancestry-signature comparison.
func similarity(normalizedPrompt, signature string, entry *Entry) float64 {
	return promptWeight*jaccard(normalizedPrompt, entry.NormalizedPrompt) +
		contextWeight*segmentScore(signature, entry.Signature)
}

// jaccard returns |A∩B| / |A∪B| over whitespace-delimited token sets.
func jaccard(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range tokensA {
		if _, ok := tokensB[t]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

// segmentScore compares two ancestry signatures piecewise: an exact segment
// match scores 1, the same category with a different value scores 0.5,
// anything else 0. The total is normalized by segment count.
func segmentScore(a, b string) float64 {
	segsA := strings.Split(a, "|")
	segsB := strings.Split(b, "|")

	count := len(segsA)
	if len(segsB) > count {
		count = len(segsB)
	}
	if count == 0 {
		return 0.0
	}

	var score float64
	for i := 0; i < len(segsA) && i < len(segsB); i++ {
		switch {
		case segsA[i] == segsB[i]:
			score += 1.0
		case segmentCategory(segsA[i]) == segmentCategory(segsB[i]):
			score += 0.5
		}
	}
	return score / float64(count)
}

// segmentCategory extracts the category marker of a signature segment:
// "d<depth>" segments categorize as "d", tagged segments by their prefix.
func segmentCategory(seg string) string {
	if idx := strings.IndexByte(seg, ':'); idx >= 0 {
		return seg[:idx]
	}
	if len(seg) > 0 && seg[0] == 'd' {
		return "d"
	}
	return seg
}
