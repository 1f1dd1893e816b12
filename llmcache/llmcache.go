/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Specialized LLM-response cache layered on the
             generic multi-level cache. Derives a deterministic
             key from agent id, normalized prompt, and a sorted
             context digest; supports exact lookup and an
             optional Jaccard-similarity scan over L1 keys.
Root Cause:  Two semantically identical LLM calls (same agent,
             same prompt modulo whitespace, same context) should
             share one cache entry instead of missing on trivial
             formatting differences.
Suitability: L2 — deterministic hashing plus a bounded scan;
             delegates all storage to the generic cache.
──────────────────────────────────────────────────────────────
*/

package llmcache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Backing is the subset of cache.Cache the LLM-response cache depends on.
type Backing interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{}, ttl time.Duration) bool
	Has(key string) bool
}

// Cache wraps a generic multi-level cache with LLM-response-specific key
// derivation and similarity lookup.
type Cache struct {
	backing Backing
}

// New wraps backing with LLM-response cache semantics.
func New(backing Backing) *Cache {
	return &Cache{backing: backing}
}

var whitespaceRe = regexp.MustCompile(`\s+`)
var punctSpacingRe = regexp.MustCompile(`\s+([,.;:!?])`)

// normalize collapses whitespace, lowercases, and strips trivial
// punctuation spacing, e.g. "Hello ,  world !" -> "hello, world!".
func normalize(prompt string) string {
	s := strings.ToLower(strings.TrimSpace(prompt))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = punctSpacingRe.ReplaceAllString(s, "$1")
	return s
}

// contextDigest serializes a context map with keys sorted, then hashes and
// truncates to a short fixed length using xxhash for speed.
func contextDigest(context map[string]string) string {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(context[k])
		b.WriteByte(';')
	}

	h := xxhash.Sum64String(b.String())
	return hex.EncodeToString([]byte{
		byte(h >> 56), byte(h >> 48), byte(h >> 40), byte(h >> 32),
		byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h),
	})[:12]
}

// Key derives the deterministic cache key for an LLM request.
func Key(agentID, prompt string, context map[string]string) string {
	raw := agentID + ":" + normalize(prompt) + ":" + contextDigest(context)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get performs an exact lookup, delegating directly to the backing cache.
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.backing.Get(key)
}

// Put stores value under key with the given TTL.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) bool {
	return c.backing.Put(key, value, ttl)
}

// keyLister is implemented by backing caches that can expose their current
// L1 keys for the bounded similarity scan.
type keyLister interface {
	L1Keys() []string
}

// GetSimilar scans the backing cache's L1 keys computing Jaccard similarity
// over whitespace tokenization of the keys themselves; among cached keys
// other than key itself, the most similar one meeting threshold has its
// value returned. If the backing cache doesn't support key listing,
// GetSimilar always misses.
func (c *Cache) GetSimilar(key string, threshold float64) (interface{}, bool) {
	lister, ok := c.backing.(keyLister)
	if !ok {
		return nil, false
	}

	target := tokenize(key)
	var bestKey string
	var bestScore float64

	for _, candidate := range lister.L1Keys() {
		if candidate == key {
			continue
		}
		score := jaccard(target, tokenize(candidate))
		if score >= threshold && score > bestScore {
			bestScore = score
			bestKey = candidate
		}
	}

	if bestKey == "" {
		return nil, false
	}
	return c.backing.Get(bestKey)
}

func tokenize(s string) map[string]struct{} {
	tokens := strings.Fields(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
