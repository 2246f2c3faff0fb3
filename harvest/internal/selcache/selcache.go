// Package selcache maintains the learned content-selector cache: pattern
// derivation from URLs, lookup with domain fallback, outcome recording and
// low-performer sweeps. Storage failures degrade to cache misses so the
// extraction cascade keeps moving.
package selcache

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"github.com/hazyhaar/presse/harvest/internal/store"
)

// Sweep defaults: entries below half success rate after five attempts go.
const (
	DefaultMinRate     = 0.5
	DefaultMinAttempts = 5
)

const maxSegmentLen = 20

// Cache wraps the selector_cache table.
type Cache struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Cache. A nil logger falls back to slog.Default.
func New(st *store.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: st, logger: logger}
}

// PatternOf derives the cache pattern for a URL: the host, plus the first
// path segment when it looks like a section name rather than an ID or slug.
// Numeric segments, long segments and segments with hyphens or underscores
// are treated as article-specific and excluded.
func PatternOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	domain := strings.ToLower(u.Host)
	domain = strings.TrimPrefix(domain, "www.")

	seg := firstPathSegment(u.Path)
	if seg == "" || !isSectionSegment(seg) {
		return domain
	}
	return domain + "/" + seg
}

// DomainOf returns the pattern's domain portion (the fallback key).
func DomainOf(pattern string) string {
	if i := strings.IndexByte(pattern, '/'); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

func firstPathSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return strings.ToLower(seg)
		}
	}
	return ""
}

func isSectionSegment(seg string) bool {
	if len(seg) > maxSegmentLen {
		return false
	}
	if strings.ContainsAny(seg, "-_") {
		return false
	}
	allDigits := true
	for _, r := range seg {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	return !allDigits
}

// Lookup returns the cached selector for a URL, trying the full pattern
// first and the bare domain second. A miss or a storage error returns nil.
func (c *Cache) Lookup(ctx context.Context, rawURL string) *store.Selector {
	pattern := PatternOf(rawURL)
	if pattern == "" {
		return nil
	}
	for _, key := range lookupKeys(pattern) {
		sel, err := c.store.GetSelector(ctx, key)
		if err == nil {
			return sel
		}
		if !store.IsNotFound(err) {
			c.logger.Warn("selector lookup failed, treating as miss", "pattern", key, "error", err)
			return nil
		}
	}
	return nil
}

func lookupKeys(pattern string) []string {
	domain := DomainOf(pattern)
	if domain == pattern {
		return []string{pattern}
	}
	return []string{pattern, domain}
}

// RecordHit counts a successful replay of a cached selector.
func (c *Cache) RecordHit(ctx context.Context, pattern string) {
	if err := c.store.RecordSelectorHit(ctx, pattern); err != nil {
		c.logger.Warn("selector hit not recorded", "pattern", pattern, "error", err)
	}
}

// RecordMiss counts a cached selector that matched nothing.
func (c *Cache) RecordMiss(ctx context.Context, pattern string) {
	if err := c.store.RecordSelectorMiss(ctx, pattern); err != nil {
		c.logger.Warn("selector miss not recorded", "pattern", pattern, "error", err)
	}
}

// Store saves a newly discovered selector for the URL's pattern, seeded
// with one success. Confidence comes from the discovery step.
func (c *Cache) Store(ctx context.Context, rawURL, selector, selectorType string, confidence int) {
	pattern := PatternOf(rawURL)
	if pattern == "" {
		return
	}
	sel := &store.Selector{
		Pattern:         pattern,
		ContentSelector: selector,
		SelectorType:    selectorType,
		Confidence:      confidence,
		SuccessCount:    1,
	}
	if err := c.store.SaveSelector(ctx, sel); err != nil {
		c.logger.Warn("discovered selector not saved", "pattern", pattern, "error", err)
	}
}

// Sweep removes entries whose success rate fell below minRate after at
// least minAttempts tries. Zero arguments use the defaults.
func (c *Cache) Sweep(ctx context.Context, minRate float64, minAttempts int) ([]string, error) {
	if minRate <= 0 {
		minRate = DefaultMinRate
	}
	if minAttempts <= 0 {
		minAttempts = DefaultMinAttempts
	}
	removed, err := c.store.DeleteSelectorsBelow(ctx, minRate, minAttempts)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		c.logger.Info("selector cache swept", "removed", len(removed), "patterns", removed)
	}
	return removed, nil
}

// Stats reports aggregate cache counters.
func (c *Cache) Stats(ctx context.Context) (*store.SelectorStats, error) {
	return c.store.StatsSelectors(ctx)
}
