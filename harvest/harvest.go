// Package harvest is the article-harvesting service: for each ranked URL it
// runs the fetch cascade, the extraction cascade and the validators, then
// persists the outcome. One URL at a time; concurrency across URLs belongs
// to the caller running multiple workers.
package harvest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/presse/browser"
	"github.com/hazyhaar/presse/harvest/internal/cookiejar"
	"github.com/hazyhaar/presse/harvest/internal/digest"
	"github.com/hazyhaar/presse/harvest/internal/fetcher"
	"github.com/hazyhaar/presse/harvest/internal/pipeline"
	"github.com/hazyhaar/presse/harvest/internal/selcache"
	"github.com/hazyhaar/presse/harvest/internal/store"
	"github.com/hazyhaar/presse/harvest/internal/validate"
	"github.com/hazyhaar/presse/idgen"
	"github.com/hazyhaar/presse/llm"
)

// Schema creates the presse tables. Idempotent; apply at open time.
const Schema = store.Schema

// Completer issues LLM calls. nil disables every LLM-backed step; the
// heuristic tiers and their documented fallbacks still run.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// narrow interfaces over the two cascades so tests can substitute them.
type fetchCascade interface {
	Fetch(ctx context.Context, url, title string, skipValidation bool) (*fetcher.Result, error)
}

type extractCascade interface {
	Extract(ctx context.Context, url, title, html string) *pipeline.Result
}

// Service is the orchestrating driver.
type Service struct {
	cfg    Config
	store  *store.Store
	cache  *selcache.Cache
	jar    *cookiejar.Manager
	valid  *validate.Validator
	fetch  fetchCascade
	pipe   extractCascade
	digest *digest.Writer
	newID  idgen.Generator
	logger *slog.Logger
}

// New wires the service onto an opened database.
func New(db *sql.DB, completer Completer, cfg Config, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	st := store.NewStore(db)
	cache := selcache.New(st, logger)
	validator := validate.New(completer, logger)

	bcfg := browser.Config{
		RemoteURL: cfg.Browser.RemoteURL,
		Bin:       cfg.Browser.Bin,
		Timeout:   cfg.FetchTimeout,
		Logger:    logger,
	}
	openBrowser := func() (fetcher.BrowserSession, error) { return browser.Open(bcfg) }

	jar := cookiejar.New(st, cookiejar.Config{
		Secret:     cfg.Cookies.Secret,
		RenewalAge: cfg.Cookies.RenewalAge,
		Browser:    bcfg,
		Logger:     logger,
	})

	s := &Service{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		jar:    jar,
		valid:  validator,
		newID:  idgen.Prefixed("url_", idgen.UUIDv7()),
		logger: logger,
	}

	client := &http.Client{Timeout: cfg.FetchTimeout}
	strategies := []fetcher.Strategy{
		&fetcher.CookiesStrategy{Client: client, Jar: jar, AttemptTimeout: cfg.FetchTimeout},
		&fetcher.DirectStrategy{Client: client, AttemptTimeout: cfg.FetchTimeout},
		&fetcher.NoJSStrategy{Client: client, AttemptTimeout: cfg.FetchTimeout},
		&fetcher.BrowserNoJSStrategy{Open: openBrowser, AttemptTimeout: cfg.FetchTimeout},
		&fetcher.ArchiveStrategy{
			Open:           openBrowser,
			BaseURL:        cfg.Archive.BaseURL,
			Retries:        cfg.Archive.Retries,
			Backoff:        cfg.Archive.Backoff,
			AttemptTimeout: cfg.FetchTimeout,
		},
	}
	s.fetch = fetcher.NewCascade(strategies, validator, s.recorder(store.StageFetch), logger)
	pipe := pipeline.NewCascade(cache, completer, validator, s.recorder(store.StageExtract), logger)
	pipe.SetCompleteAt(cfg.CompleteAt)
	s.pipe = pipe

	if cfg.DigestDir != "" {
		w, err := digest.NewWriter(cfg.DigestDir)
		if err != nil {
			return nil, err
		}
		s.digest = w
	}
	return s, nil
}

// recorder writes one attempt_log row per cascade step. Ledger failures
// only log.
func (s *Service) recorder(stage string) func(url, method string, ok bool, detail string, elapsed time.Duration) {
	gen := idgen.Prefixed("att_", idgen.UUIDv7())
	return func(url, method string, ok bool, detail string, elapsed time.Duration) {
		a := &store.Attempt{
			ID:         gen(),
			URL:        url,
			Stage:      stage,
			Method:     method,
			OK:         ok,
			Detail:     detail,
			DurationMS: elapsed.Milliseconds(),
		}
		if err := s.store.LogAttempt(context.Background(), a); err != nil {
			s.logger.Warn("attempt not logged", "stage", stage, "method", method, "error", err)
		}
	}
}

// URLInput is one ranked URL handed in by the caller.
type URLInput struct {
	ID    string
	URL   string
	Title string
}

// Options tune a single ProcessURL run.
type Options struct {
	// Force bypasses the already-extracted short-circuit.
	Force bool
	// SkipValidation accepts the first non-empty fetch unvalidated.
	SkipValidation bool
}

// ProcessResult is the per-URL outcome handed back to the caller.
type ProcessResult struct {
	Success     bool   `json:"success"`
	Cached      bool   `json:"cached"`
	FetchMethod string `json:"fetch_method,omitempty"`
	Method      string `json:"method,omitempty"`
	WordCount   int    `json:"word_count"`
	UsedArchive bool   `json:"used_archive"`
	ArchiveURL  string `json:"archive_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProcessURL runs the full pipeline for one URL. A URL already extracted
// successfully is returned from the store without any network or LLM work
// unless opts.Force is set. Failures are persisted and returned as a result
// record, never as a Go error: a single URL must not halt a batch.
func (s *Service) ProcessURL(ctx context.Context, in URLInput, opts Options) *ProcessResult {
	existing, err := s.store.GetURL(ctx, in.URL)
	if err != nil && !store.IsNotFound(err) {
		s.logger.Warn("url lookup failed, processing anyway", "url", in.URL, "error", err)
	}
	if existing != nil && existing.Status == store.StatusSuccess && !opts.Force {
		s.logger.Debug("already extracted, skipping", "url", in.URL)
		return &ProcessResult{
			Success:     true,
			Cached:      true,
			FetchMethod: existing.FetchMethod,
			Method:      existing.ExtractMethod,
			WordCount:   existing.WordCount,
			UsedArchive: existing.FetchMethod == fetcher.MethodArchive,
			ArchiveURL:  existing.ArchiveURL,
		}
	}

	rec := &store.URLRecord{
		ID:     in.ID,
		URL:    in.URL,
		Domain: fetcher.DomainOf(in.URL),
		Title:  in.Title,
		Status: store.StatusPending,
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}

	fetched, err := s.fetch.Fetch(ctx, in.URL, in.Title, opts.SkipValidation)
	if err != nil {
		return s.fail(ctx, rec, "", fmt.Sprintf("fetch: %v", err))
	}
	rec.FetchMethod = fetched.Method
	rec.Paywalled = fetched.Validation.HasPaywall
	rec.ArchiveURL = fetched.ArchiveURL

	extracted := s.pipe.Extract(ctx, in.URL, in.Title, fetched.HTML)
	if !extracted.Success {
		return s.fail(ctx, rec, extracted.Method, "extract: "+extracted.Error)
	}

	wc := extracted.WordCount
	if wc < s.cfg.MinWords {
		return s.fail(ctx, rec, extracted.Method,
			fmt.Sprintf("content too short: %d words (min %d)", wc, s.cfg.MinWords))
	}
	if wc > s.cfg.MaxWords {
		s.logger.Warn("content unusually long, keeping", "url", in.URL, "words", wc, "max", s.cfg.MaxWords)
	}

	rec.Status = store.StatusSuccess
	rec.ExtractMethod = extracted.Method
	rec.ArticleText = extracted.Content
	rec.WordCount = wc
	rec.Error = ""
	if err := s.store.UpsertURL(ctx, rec); err != nil {
		s.logger.Error("result not persisted", "url", in.URL, "error", err)
	}

	if s.digest != nil {
		_, err := s.digest.Write(&digest.Article{
			ID:          rec.ID,
			URL:         rec.URL,
			Title:       rec.Title,
			Content:     extracted.Content,
			ContentHTML: extracted.HTML,
			Method:      extracted.Method,
			WordCount:   wc,
		})
		if err != nil {
			s.logger.Warn("digest not written", "url", in.URL, "error", err)
		}
	}

	s.logger.Info("url processed",
		"url", in.URL, "fetch", rec.FetchMethod, "extract", rec.ExtractMethod, "words", wc)
	return &ProcessResult{
		Success:     true,
		FetchMethod: rec.FetchMethod,
		Method:      rec.ExtractMethod,
		WordCount:   wc,
		UsedArchive: fetched.Method == fetcher.MethodArchive,
		ArchiveURL:  fetched.ArchiveURL,
	}
}

func (s *Service) fail(ctx context.Context, rec *store.URLRecord, method, errMsg string) *ProcessResult {
	rec.Status = store.StatusFailed
	if method != "" {
		rec.ExtractMethod = method
	}
	rec.Error = errMsg
	if err := s.store.UpsertURL(ctx, rec); err != nil {
		s.logger.Error("failure not persisted", "url", rec.URL, "error", err)
	}
	s.logger.Info("url failed", "url", rec.URL, "error", errMsg)
	return &ProcessResult{Method: rec.ExtractMethod, Error: errMsg}
}

// Sweep evicts selector-cache entries below the configured success rate.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	return s.cache.Sweep(ctx, s.cfg.Sweep.MinRate, s.cfg.Sweep.MinAttempts)
}

// RenewCookies forces a cookie renewal for one domain.
func (s *Service) RenewCookies(ctx context.Context, domain string) error {
	return s.jar.Renew(ctx, domain)
}

// Stats aggregates processing and cache counters.
type Stats struct {
	URLs      *store.URLStats      `json:"urls"`
	Selectors *store.SelectorStats `json:"selectors"`
}

// Stats reports aggregate service state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	urls, err := s.store.StatsURLs(ctx)
	if err != nil {
		return nil, err
	}
	sels, err := s.store.StatsSelectors(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{URLs: urls, Selectors: sels}, nil
}

// DetectPaywall exposes the paywall judge for the MCP surface.
func (s *Service) DetectPaywall(ctx context.Context, html, url string) bool {
	return s.valid.DetectPaywall(ctx, html, url)
}

// PendingURLs lists stored URLs awaiting extraction, oldest first.
func (s *Service) PendingURLs(ctx context.Context, limit int) ([]URLInput, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.DB.QueryContext(ctx, `
		SELECT id, url, title FROM urls WHERE status = ? ORDER BY created_at LIMIT ?`,
		store.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending urls: %w", err)
	}
	defer rows.Close()

	var out []URLInput
	for rows.Next() {
		var u URLInput
		if err := rows.Scan(&u.ID, &u.URL, &u.Title); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
