package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// URL statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// maxErrorLen bounds the stored error column.
const maxErrorLen = 1000

// URLRecord is one processed article URL.
type URLRecord struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Domain        string `json:"domain"`
	Status        string `json:"status"`
	Title         string `json:"title,omitempty"`
	ArticleText   string `json:"article_text,omitempty"`
	WordCount     int    `json:"word_count"`
	FetchMethod   string `json:"fetch_method,omitempty"`
	ExtractMethod string `json:"extract_method,omitempty"`
	Paywalled     bool   `json:"paywalled"`
	ArchiveURL    string `json:"archive_url,omitempty"`
	Error         string `json:"error,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// GetURL returns the record for a URL, or sql.ErrNoRows.
func (s *Store) GetURL(ctx context.Context, url string) (*URLRecord, error) {
	var r URLRecord
	var paywalled int
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, url, domain, status, title, article_text, word_count,
		       fetch_method, extract_method, paywalled, archive_url, error, created_at, updated_at
		FROM urls WHERE url = ?`, url).Scan(
		&r.ID, &r.URL, &r.Domain, &r.Status, &r.Title, &r.ArticleText, &r.WordCount,
		&r.FetchMethod, &r.ExtractMethod, &paywalled, &r.ArchiveURL, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Paywalled = paywalled != 0
	return &r, nil
}

// UpsertURL inserts or replaces the record for r.URL. The error column is
// truncated to fit the schema bound.
func (s *Store) UpsertURL(ctx context.Context, r *URLRecord) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	errText := r.Error
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	paywalled := 0
	if r.Paywalled {
		paywalled = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO urls (id, url, domain, status, title, article_text, word_count,
		                  fetch_method, extract_method, paywalled, archive_url, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
		    status = excluded.status,
		    title = excluded.title,
		    article_text = excluded.article_text,
		    word_count = excluded.word_count,
		    fetch_method = excluded.fetch_method,
		    extract_method = excluded.extract_method,
		    paywalled = excluded.paywalled,
		    archive_url = excluded.archive_url,
		    error = excluded.error,
		    updated_at = excluded.updated_at`,
		r.ID, r.URL, r.Domain, r.Status, r.Title, r.ArticleText, r.WordCount,
		r.FetchMethod, r.ExtractMethod, paywalled, r.ArchiveURL, errText, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert url %s: %w", r.URL, err)
	}
	return nil
}

// URLStats aggregates the urls table for the status endpoint.
type URLStats struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ByFetch   map[string]int `json:"by_fetch_method"`
	ByExtract map[string]int `json:"by_extract_method"`
}

// StatsURLs computes aggregate counts over processed URLs.
func (s *Store) StatsURLs(ctx context.Context) (*URLStats, error) {
	st := &URLStats{
		ByStatus:  map[string]int{},
		ByFetch:   map[string]int{},
		ByExtract: map[string]int{},
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM urls`).Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("count urls: %w", err)
	}
	for col, dst := range map[string]map[string]int{
		"status":         st.ByStatus,
		"fetch_method":   st.ByFetch,
		"extract_method": st.ByExtract,
	} {
		rows, err := s.DB.QueryContext(ctx,
			fmt.Sprintf(`SELECT %s, COUNT(*) FROM urls WHERE %s != '' GROUP BY %s`, col, col, col))
		if err != nil {
			return nil, fmt.Errorf("group urls by %s: %w", col, err)
		}
		for rows.Next() {
			var k string
			var n int
			if err := rows.Scan(&k, &n); err != nil {
				rows.Close()
				return nil, err
			}
			dst[k] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return st, nil
}

// IsNotFound reports whether err is the no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
