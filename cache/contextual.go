package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/studioloom/aicore/core"
)

// MatchKind tells the caller whether a hit was exact or contextual.
type MatchKind string

const (
	// MatchExact is a hit on the derived fingerprint itself.
	MatchExact MatchKind = "exact"
	// MatchContextual is a hit found via similarity scoring.
	MatchContextual MatchKind = "contextual"
)

// Entry is one stored result. Entries are never mutated in place except for
// access bookkeeping on lookup hits.
type Entry struct {
	Fingerprint      string
	Response         interface{}
	CreatedAt        time.Time
	NormalizedPrompt string
	Signature        string
	Depth            int
	Focus            string

	// Access bookkeeping, mutated on every accepted hit
	AccessCount    int64
	LastAccessedAt time.Time
}

// valid reports whether an entry is structurally sound. Invalid entries are
// treated as corruption: dropped and counted as a miss, never surfaced.
func (e *Entry) valid() bool {
	return e != nil && e.Fingerprint != "" && !e.CreatedAt.IsZero() && e.Response != nil
}

// Match is the result of a successful lookup.
type Match struct {
	Entry      *Entry
	Kind       MatchKind
	Similarity float64
}

// ContextualCache stores prior results keyed by context fingerprint. Lookups
// try an exact fingerprint match first, then fall back to similarity scoring
// over entries sharing the same conversation focus. A maximum size is enforced
// via usefulness-based eviction, and entries expire after a TTL.
//
// All operations are safe for concurrent use and never return errors; any
// internal problem degrades to "no match".
type ContextualCache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	capacity           int
	ttl                time.Duration
	minSimilarity      float64
	contextualMatching bool
	logger             core.Logger

	// Stats (atomic for cheap snapshot reads)
	exactHits      atomic.Int64
	contextualHits atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	expirations    atomic.Int64
	corruptions    atomic.Int64
}

// CacheOption customizes cache behavior.
type CacheOption func(*ContextualCache)

// WithCapacity sets the maximum entry count. Default is core.DefaultCacheCapacity.
func WithCapacity(capacity int) CacheOption {
	return func(c *ContextualCache) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithTTL sets the entry time-to-live. Default is core.DefaultCacheTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ContextualCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSimilarityMinimum sets the contextual-match acceptance threshold.
// A candidate is accepted only when its score is strictly greater.
func WithSimilarityMinimum(min float64) CacheOption {
	return func(c *ContextualCache) {
		c.minSimilarity = min
	}
}

// WithContextualMatching toggles similarity-scored lookups. Exact fingerprint
// matching always stays on.
func WithContextualMatching(enabled bool) CacheOption {
	return func(c *ContextualCache) {
		c.contextualMatching = enabled
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger core.Logger) CacheOption {
	return func(c *ContextualCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContextualCache creates a cache with the given options.
func NewContextualCache(opts ...CacheOption) *ContextualCache {
	c := &ContextualCache{
		entries:            make(map[string]*Entry),
		capacity:           core.DefaultCacheCapacity,
		ttl:                core.DefaultCacheTTL,
		minSimilarity:      0.6,
		contextualMatching: true,
		logger:             &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up a prior result for the given prompt and context. It first
// attempts an exact fingerprint match, then contextual matching among
// non-expired entries with the same focus. Accepted hits update access
// bookkeeping.
func (c *ContextualCache) Get(prompt string, ancestry []Exchange, focus string) (*Match, bool) {
	fingerprint := Fingerprint(prompt, ancestry, focus)
	normalized := Normalize(prompt)
	signature := AncestrySignature(ancestry)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Exact match
	if entry, ok := c.entries[fingerprint]; ok {
		switch {
		case !entry.valid():
			delete(c.entries, fingerprint)
			c.corruptions.Add(1)
			c.logger.Warn("Dropped corrupted cache entry", map[string]interface{}{
				"operation":   "cache_get",
				"fingerprint": fingerprint,
			})
		case c.expired(entry, now):
			delete(c.entries, fingerprint)
			c.expirations.Add(1)
		default:
			c.touch(entry, now)
			c.exactHits.Add(1)
			c.logger.Debug("Cache hit", map[string]interface{}{
				"operation":   "cache_get",
				"fingerprint": fingerprint,
				"result":      "exact",
			})
			return &Match{Entry: entry, Kind: MatchExact, Similarity: 1.0}, true
		}
	}

	if !c.contextualMatching {
		c.misses.Add(1)
		return nil, false
	}

	// Contextual match: scan non-expired entries with the same focus.
	// Snapshot candidates first, then score; expired or corrupt entries
	// found along the way are swept out.
	var best *Entry
	var bestScore float64
	for key, entry := range c.entries {
		if !entry.valid() {
			delete(c.entries, key)
			c.corruptions.Add(1)
			continue
		}
		if c.expired(entry, now) {
			delete(c.entries, key)
			c.expirations.Add(1)
			continue
		}
		if entry.Focus != focus {
			continue
		}
		score := similarity(normalized, signature, entry)
		if score > bestScore {
			best = entry
			bestScore = score
		}
	}

	if best != nil && bestScore > c.minSimilarity {
		c.touch(best, now)
		c.contextualHits.Add(1)
		c.logger.Debug("Cache hit", map[string]interface{}{
			"operation":   "cache_get",
			"fingerprint": best.Fingerprint,
			"result":      "contextual",
			"similarity":  bestScore,
		})
		return &Match{Entry: best, Kind: MatchContextual, Similarity: bestScore}, true
	}

	c.misses.Add(1)
	c.logger.Debug("Cache miss", map[string]interface{}{
		"operation":   "cache_get",
		"fingerprint": fingerprint,
		"result":      "miss",
	})
	return nil, false
}

// Put stores a result for the given prompt and context. When the cache is at
// capacity, the entry with the lowest usefulness score is evicted first.
func (c *ContextualCache) Put(prompt string, ancestry []Exchange, focus string, response interface{}) {
	if response == nil {
		return
	}

	fingerprint := Fingerprint(prompt, ancestry, focus)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.capacity {
		c.evictLowestUsefulness(now)
	}

	c.entries[fingerprint] = &Entry{
		Fingerprint:      fingerprint,
		Response:         response,
		CreatedAt:        now,
		NormalizedPrompt: Normalize(prompt),
		Signature:        AncestrySignature(ancestry),
		Depth:            len(ancestry),
		Focus:            focus,
		LastAccessedAt:   now,
	}

	c.logger.Debug("Cache store", map[string]interface{}{
		"operation":   "cache_put",
		"fingerprint": fingerprint,
		"focus":       focus,
		"size":        len(c.entries),
	})
}

// IsExpired reports whether an entry has outlived the cache TTL.
func (c *ContextualCache) IsExpired(entry *Entry) bool {
	return c.expired(entry, time.Now())
}

func (c *ContextualCache) expired(entry *Entry, now time.Time) bool {
	return now.Sub(entry.CreatedAt) > c.ttl
}

func (c *ContextualCache) touch(entry *Entry, now time.Time) {
	entry.AccessCount++
	entry.LastAccessedAt = now
}

// usefulness rewards frequently- and recently-used entries over merely-old
// ones: (hits + 1) * recencyFactor, where recencyFactor decays linearly to
// zero at expiry.
func (c *ContextualCache) usefulness(entry *Entry, now time.Time) float64 {
	age := now.Sub(entry.CreatedAt)
	remaining := c.ttl - age
	if remaining < 0 {
		remaining = 0
	}
	recencyFactor := float64(remaining) / float64(c.ttl)
	return float64(entry.AccessCount+1) * recencyFactor
}

func (c *ContextualCache) evictLowestUsefulness(now time.Time) {
	var victim string
	lowest := -1.0
	for key, entry := range c.entries {
		score := c.usefulness(entry, now)
		if lowest < 0 || score < lowest {
			victim = key
			lowest = score
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions.Add(1)
		c.logger.Debug("Cache eviction", map[string]interface{}{
			"operation":   "cache_evict",
			"fingerprint": victim,
			"usefulness":  lowest,
		})
	}
}

// Size returns the current entry count.
func (c *ContextualCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *ContextualCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Stats returns cache statistics for monitoring.
func (c *ContextualCache) Stats() map[string]interface{} {
	exact := c.exactHits.Load()
	contextual := c.contextualHits.Load()
	misses := c.misses.Load()
	total := exact + contextual + misses

	stats := map[string]interface{}{
		"size":            c.Size(),
		"capacity":        c.capacity,
		"exact_hits":      exact,
		"contextual_hits": contextual,
		"misses":          misses,
		"evictions":       c.evictions.Load(),
		"expirations":     c.expirations.Load(),
		"corruptions":     c.corruptions.Load(),
	}
	if total > 0 {
		stats["hit_rate"] = float64(exact+contextual) / float64(total)
	}
	return stats
}
