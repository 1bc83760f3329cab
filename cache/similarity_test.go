package cache

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		expect float64
	}{
		{"identical", "write the outro", "write the outro", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"both empty", "", "", 1.0},
		{"one empty", "alpha", "", 0.0},
		{"half overlap", "a b c", "b c d", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.a, tt.b); !almostEqual(got, tt.expect) {
				t.Errorf("jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expect)
			}
		})
	}
}

func TestSegmentScore(t *testing.T) {
	// Four segments: exact, exact, same category, same category.
	a := "d2|b:main|k:poster+layout|s:positive"
	b := "d2|b:main|k:outro+intro|s:neutral"
	got := segmentScore(a, b)
	want := (1.0 + 1.0 + 0.5 + 0.5) / 4.0
	if !almostEqual(got, want) {
		t.Errorf("segmentScore = %v, want %v", got, want)
	}
}

func TestSegmentScoreIdentical(t *testing.T) {
	sig := AncestrySignature([]Exchange{{Prompt: "draft the intro", Branch: "main"}})
	if got := segmentScore(sig, sig); !almostEqual(got, 1.0) {
		t.Errorf("identical signatures should score 1.0, got %v", got)
	}
}

func TestSegmentCategory(t *testing.T) {
	tests := []struct {
		seg    string
		expect string
	}{
		{"d3", "d"},
		{"b:main>side", "b"},
		{"k:poster+layout", "k"},
		{"s:neutral", "s"},
	}
	for _, tt := range tests {
		if got := segmentCategory(tt.seg); got != tt.expect {
			t.Errorf("segmentCategory(%q) = %q, want %q", tt.seg, got, tt.expect)
		}
	}
}

func TestSimilarityWeighting(t *testing.T) {
	entry := &Entry{
		NormalizedPrompt: "write the product description",
		Signature:        "d1|b:main|k:product|s:neutral",
	}

	// Same prompt, same signature: full score.
	full := similarity("write the product description", "d1|b:main|k:product|s:neutral", entry)
	if !almostEqual(full, 1.0) {
		t.Errorf("full match = %v, want 1.0", full)
	}

	// Same prompt, categorically similar signature: prompt weight plus
	// half the context weight.
	partial := similarity("write the product description", "d2|b:side|k:imagery|s:negative", entry)
	want := promptWeight + contextWeight*0.5
	if !almostEqual(partial, want) {
		t.Errorf("partial match = %v, want %v", partial, want)
	}

	// Nothing in common scores zero prompt overlap and half-category
	// context only.
	low := similarity("generate alt text", "d9|b:x|k:y|s:negative", &Entry{
		NormalizedPrompt: "write the product description",
		Signature:        "d1|b:main|k:product|s:neutral",
	})
	if low >= partial {
		t.Errorf("dissimilar prompt should score below similar prompt: %v >= %v", low, partial)
	}
}
