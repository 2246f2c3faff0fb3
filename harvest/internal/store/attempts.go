package store

import (
	"context"
	"fmt"
	"time"
)

// Attempt stages.
const (
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StageValidate = "validate"
)

// Attempt is one ledger entry for an attempted fetch, extraction or
// validation step on a URL.
type Attempt struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Stage      string `json:"stage"`
	Method     string `json:"method"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// LogAttempt records one attempt in the ledger. Failures here never block
// the pipeline, so callers typically log and continue.
func (s *Store) LogAttempt(ctx context.Context, a *Attempt) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO attempt_log (id, url, stage, method, ok, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.URL, a.Stage, a.Method, ok, a.Detail, a.DurationMS, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("log attempt %s/%s: %w", a.Stage, a.Method, err)
	}
	return nil
}

// AttemptsForURL returns the attempt ledger for a URL, newest first, capped
// at limit (0 = 100).
func (s *Store) AttemptsForURL(ctx context.Context, url string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, url, stage, method, ok, detail, duration_ms, created_at
		FROM attempt_log WHERE url = ? ORDER BY created_at DESC LIMIT ?`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("attempts for %s: %w", url, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var ok int
		if err := rows.Scan(&a.ID, &a.URL, &a.Stage, &a.Method, &ok,
			&a.Detail, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.OK = ok != 0
		out = append(out, a)
	}
	return out, rows.Err()
}
