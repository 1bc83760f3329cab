package telemetry

import (
	"sync"
)

const cardinalityOverflow = "other"

// CardinalityLimiter bounds how many distinct values each label may take.
// Values past a label's cap are collapsed to "other" so a runaway label
// (operation ids, raw prompts) cannot explode the metric backend.
type CardinalityLimiter struct {
	mu     sync.Mutex
	limits map[string]int
	seen   map[string]map[string]struct{}
	total  int
	max    int
}

// NewCardinalityLimiter creates a limiter. perLabel may be nil; totalLimit
// of zero means no global cap.
func NewCardinalityLimiter(perLabel map[string]int, totalLimit int) *CardinalityLimiter {
	return &CardinalityLimiter{
		limits: perLabel,
		seen:   make(map[string]map[string]struct{}),
		max:    totalLimit,
	}
}

// CheckAndLimit returns the value to actually record for a label, which is
// either the input or the overflow marker.
func (c *CardinalityLimiter) CheckAndLimit(label, value string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	values, ok := c.seen[label]
	if !ok {
		values = make(map[string]struct{})
		c.seen[label] = values
	}
	if _, known := values[value]; known {
		return value
	}

	if limit, bounded := c.limits[label]; bounded && len(values) >= limit {
		return cardinalityOverflow
	}
	if c.max > 0 && c.total >= c.max {
		return cardinalityOverflow
	}

	values[value] = struct{}{}
	c.total++
	return value
}

// CurrentCardinality returns the number of distinct label values tracked.
func (c *CardinalityLimiter) CurrentCardinality() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
