// Package pipeline implements the extraction cascade: six methods tried
// from cheapest to most expensive against fetched HTML until one yields a
// plausible, complete article body. The winning method's raw text is
// cleaned exactly once, then gated by the completeness validator unless it
// is long enough to be self-evidently complete.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/harvest/internal/selcache"
	"github.com/hazyhaar/presse/harvest/internal/validate"
	"github.com/hazyhaar/presse/llm"
)

// Extraction method names, persisted with every processed URL.
const (
	MethodCached      = "xpath_cache"
	MethodJSONLD      = "json_ld"
	MethodDensity     = "newspaper_heuristic"
	MethodReadability = "readability_heuristic"
	MethodLLMXPath    = "llm_xpath"
	MethodLLMDirect   = "llm_direct"
	MethodFailed      = "failed"
)

// minWords rejects extraction outputs too short to be an article body.
const minWords = 100

// DefaultCompleteAt is the word count above which completeness validation
// is skipped: long extracts are complete by inspection.
const DefaultCompleteAt = 500

// Input is the parsed page handed to every method.
type Input struct {
	URL   string
	Title string
	HTML  string
	Doc   *html.Node
}

// Candidate is one method's raw output before cleaning.
type Candidate struct {
	Text string
	// HTML is the matched region markup, when the method has one. Feeds
	// the digest writer; never validated or cleaned.
	HTML         string
	Selector     string
	SelectorType string
	Confidence   int
	// FromCache marks a cached-selector replay; its outcome feeds the
	// cache counters.
	FromCache    bool
	CachePattern string
	// Discovered marks an LLM-found selector that should be written to
	// the cache on acceptance.
	Discovered bool
}

// Method is one extraction strategy.
type Method interface {
	Name() string
	Extract(ctx context.Context, in *Input) (*Candidate, error)
}

// Result is the cascade's final answer.
type Result struct {
	Success      bool
	Content      string
	HTML         string
	WordCount    int
	Method       string
	Selector     string
	SelectorType string
	Confidence   int
	Error        string
}

// Completer issues LLM calls for the discovery methods.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// CompletenessChecker is the slice of validate.Validator the cascade needs.
type CompletenessChecker interface {
	Completeness(ctx context.Context, content, title string) validate.Completeness
}

// Recorder receives one ledger entry per method attempt. May be nil.
type Recorder func(url, method string, ok bool, detail string, elapsed time.Duration)

// Cascade tries extraction methods in order.
type Cascade struct {
	methods      []Method
	cache        *selcache.Cache
	completeness CompletenessChecker
	completeAt   int
	record       Recorder
	logger       *slog.Logger
}

// NewCascade builds the standard six-method cascade.
func NewCascade(cache *selcache.Cache, completer Completer, completeness CompletenessChecker, record Recorder, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	methods := []Method{
		&cachedMethod{cache: cache},
		&jsonLDMethod{},
		&densityMethod{},
		&readabilityMethod{},
		&llmXPathMethod{llm: completer, logger: logger},
		&llmDirectMethod{llm: completer, logger: logger},
	}
	return &Cascade{
		methods:      methods,
		cache:        cache,
		completeness: completeness,
		completeAt:   DefaultCompleteAt,
		record:       record,
		logger:       logger,
	}
}

// NewCascadeWithMethods builds a cascade over an explicit method list.
func NewCascadeWithMethods(methods []Method, cache *selcache.Cache, completeness CompletenessChecker, record Recorder, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		methods:      methods,
		cache:        cache,
		completeness: completeness,
		completeAt:   DefaultCompleteAt,
		record:       record,
		logger:       logger,
	}
}

// SetCompleteAt overrides the word count above which completeness
// validation is skipped. Non-positive values are ignored.
func (c *Cascade) SetCompleteAt(n int) {
	if n > 0 {
		c.completeAt = n
	}
}

// Extract runs the cascade. The returned Result has Success=false and
// Method="failed" only when every method is exhausted.
func (c *Cascade) Extract(ctx context.Context, pageURL, title, rawHTML string) *Result {
	doc, err := extract.Parse(rawHTML)
	if err != nil {
		return &Result{Method: MethodFailed, Error: fmt.Sprintf("unparseable HTML: %v", err)}
	}
	in := &Input{URL: pageURL, Title: title, HTML: rawHTML, Doc: doc}

	for _, m := range c.methods {
		start := time.Now()
		cand, err := m.Extract(ctx, in)
		elapsed := time.Since(start)

		if err != nil || cand == nil || strings.TrimSpace(cand.Text) == "" {
			detail := "no output"
			if err != nil {
				detail = err.Error()
			}
			c.reject(ctx, in.URL, m.Name(), cand, detail, elapsed)
			continue
		}

		clean := extract.CleanArticle(cand.Text)
		wc := extract.WordCount(clean)
		if wc < minWords {
			c.reject(ctx, in.URL, m.Name(), cand, fmt.Sprintf("only %d words after cleaning", wc), elapsed)
			continue
		}

		if wc < c.completeAt {
			comp := c.completeness.Completeness(ctx, clean, title)
			if !comp.IsComplete {
				c.reject(ctx, in.URL, m.Name(), cand, "incomplete: "+comp.Reason, elapsed)
				continue
			}
		}

		c.accept(ctx, m.Name(), cand, in.URL, elapsed)
		c.logger.Info("extraction succeeded", "method", m.Name(), "url", pageURL, "words", wc)
		return &Result{
			Success:      true,
			Content:      clean,
			HTML:         cand.HTML,
			WordCount:    wc,
			Method:       m.Name(),
			Selector:     cand.Selector,
			SelectorType: cand.SelectorType,
			Confidence:   cand.Confidence,
		}
	}
	return &Result{Method: MethodFailed, Error: "all extraction methods exhausted"}
}

func (c *Cascade) reject(ctx context.Context, pageURL, method string, cand *Candidate, detail string, elapsed time.Duration) {
	if cand != nil && cand.FromCache && c.cache != nil {
		c.cache.RecordMiss(ctx, cand.CachePattern)
	}
	if c.record != nil {
		c.record(pageURL, method, false, detail, elapsed)
	}
	c.logger.Debug("extraction method rejected", "method", method, "detail", detail)
}

func (c *Cascade) accept(ctx context.Context, method string, cand *Candidate, pageURL string, elapsed time.Duration) {
	if c.cache != nil {
		switch {
		case cand.FromCache:
			c.cache.RecordHit(ctx, cand.CachePattern)
		case cand.Discovered:
			c.cache.Store(ctx, pageURL, cand.Selector, cand.SelectorType, cand.Confidence)
		}
	}
	if c.record != nil {
		c.record(pageURL, method, true, "", elapsed)
	}
}
