// Package cache provides similarity-aware caching of AI results keyed by a
// fingerprint of conversational context, so repeated or near-repeated prompts
// avoid redundant calls to the backing service.
package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Exchange is one prior step of a conversation: what was asked, what came
// back, and which branch of the conversation tree it belongs to.
type Exchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Branch   string `json:"branch"`
}

// maxNormalizedLen bounds normalized prompts, in runes, so pathological
// inputs cannot produce unbounded keys or dominate similarity scoring.
const maxNormalizedLen = 256

// significantWordLen is the minimum rune count for a word to count as a
// keyword.
const significantWordLen = 5

// stopWords are excluded from keyword extraction.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "before": {}, "being": {},
	"could": {}, "every": {}, "first": {}, "other": {}, "their": {},
	"there": {}, "these": {}, "thing": {}, "think": {}, "those": {},
	"where": {}, "which": {}, "while": {}, "would": {}, "should": {},
	"because": {}, "please": {}, "really": {}, "something": {},
}

// Small fixed word lists for the coarse sentiment bucket.
var (
	positiveWords = []string{"good", "great", "love", "like", "nice", "perfect", "thanks", "better", "awesome", "yes"}
	negativeWords = []string{"bad", "wrong", "hate", "broken", "ugly", "worse", "terrible", "awful", "no", "not"}
)

// Fingerprint derives a compact, comparable key from a prompt, its
// conversational ancestry, and the current conversation focus. It is a pure
// function of its inputs. Collisions are acceptable; the cache stores the
// normalized prompt alongside each entry for tie-breaking during similarity
// scoring.
func Fingerprint(prompt string, ancestry []Exchange, focus string) string {
	normalized := Normalize(prompt)
	signature := AncestrySignature(ancestry)
	return hash32(focus + ":" + signature + ":" + normalized)
}

// Normalize lower-cases the prompt, strips punctuation, collapses whitespace,
// and truncates to a bounded rune length. Letters and digits from any script
// are kept, so prompts in Cyrillic, CJK, or accented text stay
// distinguishable.
func Normalize(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))

	lastSpace := true
	for _, r := range strings.ToLower(prompt) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			// Punctuation and whitespace both collapse to one separator
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	normalized := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(normalized) > maxNormalizedLen {
		runes := []rune(normalized)
		normalized = strings.TrimSpace(string(runes[:maxNormalizedLen]))
	}
	return normalized
}

// AncestrySignature builds the comparable context signature: ancestry depth,
// the last two branch tags, the two most frequent significant words across the
// ancestry, and a coarse sentiment bucket. Segments are pipe-joined so they
// can be compared piecewise during contextual matching.
func AncestrySignature(ancestry []Exchange) string {
	segments := []string{
		fmt.Sprintf("d%d", len(ancestry)),
		"b:" + recentBranches(ancestry),
		"k:" + topKeywords(ancestry),
		"s:" + sentimentBucket(ancestry),
	}
	return strings.Join(segments, "|")
}

// recentBranches returns the last two branch tags, oldest first.
func recentBranches(ancestry []Exchange) string {
	var tags []string
	for _, ex := range ancestry {
		if ex.Branch != "" {
			tags = append(tags, ex.Branch)
		}
	}
	if len(tags) > 2 {
		tags = tags[len(tags)-2:]
	}
	return strings.Join(tags, ">")
}

// topKeywords returns the two most frequent significant words across the
// ancestry, alphabetical on ties so the signature stays deterministic.
func topKeywords(ancestry []Exchange) string {
	counts := make(map[string]int)
	for _, ex := range ancestry {
		for _, word := range strings.Fields(Normalize(ex.Prompt + " " + ex.Response)) {
			if utf8.RuneCountInString(word) < significantWordLen {
				continue
			}
			if _, stop := stopWords[word]; stop {
				continue
			}
			counts[word]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, "+")
}

// sentimentBucket counts occurrences of the fixed positive/negative word
// lists across the ancestry and buckets the balance.
func sentimentBucket(ancestry []Exchange) string {
	var text strings.Builder
	for _, ex := range ancestry {
		text.WriteString(Normalize(ex.Prompt))
		text.WriteByte(' ')
		text.WriteString(Normalize(ex.Response))
		text.WriteByte(' ')
	}

	words := strings.Fields(text.String())
	var positive, negative int
	for _, w := range words {
		for _, p := range positiveWords {
			if w == p {
				positive++
			}
		}
		for _, n := range negativeWords {
			if w == n {
				negative++
			}
		}
	}

	switch {
	case positive > negative:
		return "positive"
	case negative > positive:
		return "negative"
	default:
		return "neutral"
	}
}

// hash32 runs a fast non-cryptographic hash over the composite key and
// returns a short stable hex string.
func hash32(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
