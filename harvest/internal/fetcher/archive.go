package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/presse/browser"
)

// Archive defaults: two retries past the first attempt, growing delays.
const (
	DefaultArchiveBase    = "https://archive.ph"
	DefaultArchiveRetries = 2
)

// DefaultArchiveBackoff spaces out retries after a CAPTCHA interstitial.
var DefaultArchiveBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// CAPTCHA interstitials are tiny pages with the service's grey backdrop.
const (
	captchaMaxHTML  = 4096
	captchaBackdrop = "background-color:#f2f2f2"
	archiveSettle   = 3 * time.Second
)

// ArchiveStrategy pulls the newest archive.today-style snapshot of the URL.
// Snapshot pages render through JS, so this goes through the headless
// browser. Last resort of the cascade.
type ArchiveStrategy struct {
	Open           OpenBrowser
	BaseURL        string
	Retries        int
	Backoff        []time.Duration
	AttemptTimeout time.Duration
}

func (s *ArchiveStrategy) Name() string         { return MethodArchive }
func (s *ArchiveStrategy) SkipValidation() bool { return false }

// Timeout covers the initial render plus every backoff and retry.
func (s *ArchiveStrategy) Timeout() time.Duration {
	t := s.AttemptTimeout
	if t <= 0 {
		t = DefaultTimeout
	}
	for _, b := range s.backoff() {
		t += b + s.AttemptTimeout
	}
	return t
}

func (s *ArchiveStrategy) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultArchiveBase
	}
	snapshotURL := strings.TrimRight(base, "/") + "/newest/" + pageURL

	sess, err := s.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer sess.Close()

	retries := s.Retries
	if retries < 0 {
		retries = DefaultArchiveRetries
	}
	backoff := s.backoff()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := backoff[min(attempt-1, len(backoff)-1)]
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		html, finalURL, err := sess.HTML(ctx, snapshotURL, browser.PageOptions{Settle: archiveSettle})
		if err != nil {
			lastErr = err
			continue
		}
		if isCaptchaPage(html) {
			lastErr = fmt.Errorf("archive: CAPTCHA interstitial (attempt %d)", attempt+1)
			continue
		}
		return &Page{HTML: html, FinalURL: finalURL, ArchiveURL: finalURL}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("archive: no snapshot")
	}
	return nil, lastErr
}

func (s *ArchiveStrategy) backoff() []time.Duration {
	if len(s.Backoff) > 0 {
		return s.Backoff
	}
	return DefaultArchiveBackoff
}

// isCaptchaPage matches the interstitial signature: almost no markup plus
// the grey backdrop the service styles its challenge page with.
func isCaptchaPage(html string) bool {
	if len(html) >= captchaMaxHTML {
		return false
	}
	lower := strings.ToLower(strings.ReplaceAll(html, " ", ""))
	return strings.Contains(lower, captchaBackdrop) ||
		strings.Contains(lower, "captcha")
}
