// Package validate holds the content judges: paywall detection, extraction
// quality and completeness. All three are heuristic-first and only reach for
// the LLM in a borderline band, which keeps per-article cost low across
// large batches.
package validate

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/presse/llm"
)

// Word-count policy constants. Empirically tuned, kept as-is.
const (
	skeletonMax      = 20   // below this the page is a skeleton
	blockedShortMax  = 150  // blocking keyword plus fewer words = paywall
	validUnambiguous = 200  // at or above, with no blocking keyword, valid
	completeShortMax = 150  // below this an article cannot be complete
	completeLongMin  = 300  // at or above, complete unless a gate phrase appears
	paywallLongMin   = 1500 // long pages are never blocking-paywalled
)

// Sample sizes for borderline LLM calls, in characters.
const (
	paywallHeadChars  = 500
	paywallTailChars  = 1000
	completeHeadChars = 200
	completeTailChars = 600
)

// Completer is the slice of llm.Client the validators need.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Result is the outcome of a quality validation.
type Result struct {
	IsValid    bool
	HasPaywall bool
	HasContent bool
	WordCount  int
	Confidence int
	Reason     string
}

// Skipped builds the synthetic pass used when validation is bypassed.
func Skipped(wordCount int) Result {
	return Result{
		IsValid:    true,
		HasContent: wordCount > 0,
		WordCount:  wordCount,
		Confidence: 100,
		Reason:     "validation skipped",
	}
}

// Completeness is the outcome of a completeness check.
type Completeness struct {
	IsComplete bool
	Confidence int
	Reason     string
}

// Validator bundles the three judges around one LLM client.
type Validator struct {
	llm    Completer
	logger *slog.Logger
}

// New creates a Validator. llm may be nil when no provider is configured;
// every borderline branch then takes its documented fallback.
func New(completer Completer, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{llm: completer, logger: logger}
}

// headTail samples the first head and last tail characters of s.
func headTail(s string, head, tail int) (string, string) {
	if len(s) <= head+tail {
		return s, ""
	}
	return s[:head], s[len(s)-tail:]
}
