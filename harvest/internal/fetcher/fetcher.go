// Package fetcher implements the fetch cascade: an ordered list of
// strategies tried from cheapest to most expensive until one yields HTML
// that passes quality validation. A strategy's transport error is never
// fatal; only exhaustion of the whole list is.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/harvest/internal/validate"
)

// DefaultTimeout bounds a single strategy attempt.
const DefaultTimeout = 30 * time.Second

// Fetch method names, persisted with every processed URL.
const (
	MethodCookies = "cookies"
	MethodDirect  = "direct"
	MethodNoJS    = "no_js"
	MethodBrowser = "selenium_no_js"
	MethodArchive = "archive"
)

// Page is the raw output of one strategy attempt.
type Page struct {
	HTML       string
	FinalURL   string
	ArchiveURL string
}

// Strategy is one fetch method in the cascade.
type Strategy interface {
	Name() string
	// SkipValidation marks strategies whose output is trusted by
	// construction (authenticated fetches).
	SkipValidation() bool
	// Timeout is the hard per-attempt bound.
	Timeout() time.Duration
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Result is a validated fetch.
type Result struct {
	HTML       string
	Method     string
	HasAuth    bool
	ArchiveURL string
	Validation validate.Result
}

// QualityChecker is the slice of validate.Validator the cascade needs.
type QualityChecker interface {
	Quality(ctx context.Context, html, url, title string, isArchive bool) validate.Result
}

// Recorder receives one entry per strategy attempt for the ledger. May be nil.
type Recorder func(url, method string, ok bool, detail string, elapsed time.Duration)

// Cascade tries strategies in order.
type Cascade struct {
	strategies []Strategy
	quality    QualityChecker
	record     Recorder
	logger     *slog.Logger
}

// NewCascade builds a cascade over the given strategies, tried in order.
func NewCascade(strategies []Strategy, quality QualityChecker, record Recorder, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{strategies: strategies, quality: quality, record: record, logger: logger}
}

// Fetch walks the cascade until a strategy yields HTML that validates.
// skipValidation accepts the first non-empty fetch regardless of quality.
func (c *Cascade) Fetch(ctx context.Context, pageURL, title string, skipValidation bool) (*Result, error) {
	for _, s := range c.strategies {
		start := time.Now()
		page, err := c.tryStrategy(ctx, s, pageURL)
		elapsed := time.Since(start)

		if err != nil || page == nil || strings.TrimSpace(page.HTML) == "" {
			detail := "empty response"
			if err != nil {
				detail = err.Error()
			}
			c.note(pageURL, s.Name(), false, detail, elapsed)
			c.logger.Debug("fetch strategy yielded nothing", "method", s.Name(), "url", pageURL, "error", err)
			continue
		}

		var v validate.Result
		if s.SkipValidation() || skipValidation {
			v = validate.Skipped(extract.WordCount(extract.VisibleText(page.HTML)))
		} else {
			v = c.quality.Quality(ctx, page.HTML, pageURL, title, s.Name() == MethodArchive)
		}
		if !v.IsValid {
			c.note(pageURL, s.Name(), false, "validation: "+v.Reason, elapsed)
			c.logger.Info("fetched HTML failed validation, cascading",
				"method", s.Name(), "url", pageURL, "reason", v.Reason, "words", v.WordCount)
			continue
		}

		c.note(pageURL, s.Name(), true, "", elapsed)
		c.logger.Info("fetch succeeded", "method", s.Name(), "url", pageURL, "words", v.WordCount)
		return &Result{
			HTML:       page.HTML,
			Method:     s.Name(),
			HasAuth:    s.Name() == MethodCookies,
			ArchiveURL: page.ArchiveURL,
			Validation: v,
		}, nil
	}
	return nil, fmt.Errorf("all fetch methods exhausted for %s", pageURL)
}

// tryStrategy runs one strategy under its own timeout, converting panics
// from misbehaving transports into errors.
func (c *Cascade) tryStrategy(ctx context.Context, s Strategy, pageURL string) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("fetch %s: panic: %v", s.Name(), r)
		}
	}()
	timeout := s.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Fetch(attemptCtx, pageURL)
}

func (c *Cascade) note(url, method string, ok bool, detail string, elapsed time.Duration) {
	if c.record != nil {
		c.record(url, method, ok, detail, elapsed)
	}
}

// DomainOf extracts the lowercased host of a URL, minus any www prefix.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
