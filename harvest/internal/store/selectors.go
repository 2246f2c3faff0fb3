package store

import (
	"context"
	"fmt"
	"time"
)

// Selector is one learned content selector for a domain pattern.
type Selector struct {
	Pattern         string
	ContentSelector string
	SelectorType    string
	Confidence      int
	SuccessCount    int
	FailureCount    int
	LastSuccessAt   int64
	CreatedAt       int64
	UpdatedAt       int64
}

// SuccessRate is successes over total attempts, 0 when unused.
func (s *Selector) SuccessRate() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(total)
}

// GetSelector returns the cached selector for a pattern, or sql.ErrNoRows.
func (s *Store) GetSelector(ctx context.Context, pattern string) (*Selector, error) {
	var sel Selector
	var lastSuccess *int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT pattern, content_selector, selector_type, confidence, success_count,
		       failure_count, last_success_at, created_at, updated_at
		FROM selector_cache WHERE pattern = ?`, pattern).Scan(
		&sel.Pattern, &sel.ContentSelector, &sel.SelectorType, &sel.Confidence,
		&sel.SuccessCount, &sel.FailureCount, &lastSuccess, &sel.CreatedAt, &sel.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSuccess != nil {
		sel.LastSuccessAt = *lastSuccess
	}
	return &sel, nil
}

// RecordSelectorHit increments the success counter for an existing pattern.
// The increment is additive so concurrent writers never lose counts.
func (s *Store) RecordSelectorHit(ctx context.Context, pattern string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE selector_cache
		SET success_count = success_count + 1, last_success_at = ?, updated_at = ?
		WHERE pattern = ?`, now, now, pattern)
	if err != nil {
		return fmt.Errorf("record selector hit %s: %w", pattern, err)
	}
	return nil
}

// RecordSelectorMiss increments the failure counter for an existing pattern.
func (s *Store) RecordSelectorMiss(ctx context.Context, pattern string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE selector_cache
		SET failure_count = failure_count + 1, updated_at = ?
		WHERE pattern = ?`, now, pattern)
	if err != nil {
		return fmt.Errorf("record selector miss %s: %w", pattern, err)
	}
	return nil
}

// SaveSelector stores a newly discovered selector. On conflict the counters
// are merged additively and the stored selector is kept: concurrent
// discoveries follow first-write-wins so a cached selector that already
// works is never clobbered mid-flight.
func (s *Store) SaveSelector(ctx context.Context, sel *Selector) error {
	now := time.Now().UnixMilli()
	var lastSuccess *int64
	if sel.LastSuccessAt > 0 {
		lastSuccess = &sel.LastSuccessAt
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO selector_cache (pattern, content_selector, selector_type, confidence,
		                            success_count, failure_count, last_success_at,
		                            created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
		    success_count = selector_cache.success_count + excluded.success_count,
		    failure_count = selector_cache.failure_count + excluded.failure_count,
		    last_success_at = COALESCE(excluded.last_success_at, selector_cache.last_success_at),
		    updated_at = excluded.updated_at`,
		sel.Pattern, sel.ContentSelector, sel.SelectorType, sel.Confidence,
		sel.SuccessCount, sel.FailureCount, lastSuccess, now, now)
	if err != nil {
		return fmt.Errorf("save selector %s: %w", sel.Pattern, err)
	}
	return nil
}

// DeleteSelectorsBelow removes entries whose success rate has decayed below
// minRate after at least minAttempts tries. Returns the removed patterns.
func (s *Store) DeleteSelectorsBelow(ctx context.Context, minRate float64, minAttempts int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT pattern FROM selector_cache
		WHERE success_count + failure_count >= ?
		  AND CAST(success_count AS REAL) / (success_count + failure_count) < ?`,
		minAttempts, minRate)
	if err != nil {
		return nil, fmt.Errorf("select stale selectors: %w", err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range patterns {
		if _, err := s.DB.ExecContext(ctx, `DELETE FROM selector_cache WHERE pattern = ?`, p); err != nil {
			return nil, fmt.Errorf("delete selector %s: %w", p, err)
		}
	}
	return patterns, nil
}

// SelectorStats summarizes the selector cache.
type SelectorStats struct {
	Entries     int     `json:"entries"`
	TotalHits   int     `json:"total_hits"`
	TotalMisses int     `json:"total_misses"`
	OverallRate float64 `json:"overall_rate"`
}

// StatsSelectors aggregates the selector_cache table.
func (s *Store) StatsSelectors(ctx context.Context) (*SelectorStats, error) {
	var st SelectorStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success_count), 0), COALESCE(SUM(failure_count), 0)
		FROM selector_cache`).Scan(&st.Entries, &st.TotalHits, &st.TotalMisses)
	if err != nil {
		return nil, fmt.Errorf("selector stats: %w", err)
	}
	if total := st.TotalHits + st.TotalMisses; total > 0 {
		st.OverallRate = float64(st.TotalHits) / float64(total)
	}
	return &st, nil
}
