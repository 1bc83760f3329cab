package telemetry

import "testing"

func TestCardinalityAllowsWithinLimit(t *testing.T) {
	limiter := NewCardinalityLimiter(map[string]int{"backend": 2}, 0)

	if got := limiter.CheckAndLimit("backend", "primary"); got != "primary" {
		t.Errorf("got %q", got)
	}
	if got := limiter.CheckAndLimit("backend", "secondary"); got != "secondary" {
		t.Errorf("got %q", got)
	}
}

func TestCardinalityCollapsesOverflow(t *testing.T) {
	limiter := NewCardinalityLimiter(map[string]int{"backend": 2}, 0)

	limiter.CheckAndLimit("backend", "primary")
	limiter.CheckAndLimit("backend", "secondary")

	if got := limiter.CheckAndLimit("backend", "tertiary"); got != cardinalityOverflow {
		t.Errorf("overflow value = %q, want %q", got, cardinalityOverflow)
	}
	// Known values keep passing through.
	if got := limiter.CheckAndLimit("backend", "primary"); got != "primary" {
		t.Errorf("known value = %q", got)
	}
}

func TestCardinalityGlobalCap(t *testing.T) {
	limiter := NewCardinalityLimiter(nil, 2)

	limiter.CheckAndLimit("a", "1")
	limiter.CheckAndLimit("b", "2")

	if got := limiter.CheckAndLimit("c", "3"); got != cardinalityOverflow {
		t.Errorf("got %q, want overflow past the global cap", got)
	}
	if limiter.CurrentCardinality() != 2 {
		t.Errorf("cardinality = %d", limiter.CurrentCardinality())
	}
}

func TestCardinalityUnboundedLabel(t *testing.T) {
	limiter := NewCardinalityLimiter(map[string]int{"backend": 1}, 0)

	for _, v := range []string{"a", "b", "c"} {
		if got := limiter.CheckAndLimit("reason", v); got != v {
			t.Errorf("unbounded label limited: %q", got)
		}
	}
}
