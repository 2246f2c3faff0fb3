package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/llm"
)

// Quality judges whether fetched HTML carries a usable article body.
// Heuristic tiers resolve the clear cases; only the ambiguous band pays for
// an LLM call. isArchive relaxes the prompt: archive snapshots cannot
// actually block access, so their subscription banners are noise.
func (v *Validator) Quality(ctx context.Context, html, url, title string, isArchive bool) Result {
	text := extract.VisibleText(html)
	wc := extract.WordCount(text)
	lower := strings.ToLower(text)

	blocking := ""
	for _, kw := range blockingKeywords {
		if strings.Contains(lower, kw) {
			blocking = kw
			break
		}
	}

	switch {
	case wc < skeletonMax:
		return Result{
			WordCount:  wc,
			Confidence: 95,
			Reason:     fmt.Sprintf("skeleton page: %d words", wc),
		}
	case blocking != "" && wc < blockedShortMax:
		return Result{
			HasPaywall: true,
			WordCount:  wc,
			Confidence: 90,
			Reason:     fmt.Sprintf("paywall keyword %q with only %d words", blocking, wc),
		}
	case blocking == "" && wc >= validUnambiguous:
		return Result{
			IsValid:    true,
			HasContent: true,
			WordCount:  wc,
			Confidence: 90,
			Reason:     fmt.Sprintf("%d words, no blocking keyword", wc),
		}
	}

	return v.qualityByLLM(ctx, text, url, title, wc, isArchive)
}

func (v *Validator) qualityByLLM(ctx context.Context, text, url, title string, wc int, isArchive bool) Result {
	fallback := Result{
		IsValid:    wc >= 100,
		HasContent: wc >= 100,
		WordCount:  wc,
		Confidence: 30,
		Reason:     "LLM unavailable, word-count fallback",
	}
	if v.llm == nil {
		return fallback
	}
	raw, err := v.llm.Complete(ctx, qualityPrompt(url, title, text, isArchive))
	if err != nil {
		v.logger.Warn("quality LLM check failed, word-count fallback", "url", url, "error", err)
		return fallback
	}
	var verdict struct {
		HasPaywall bool `json:"has_paywall"`
		HasContent bool `json:"has_content"`
		Confidence int  `json:"confidence"`
	}
	if err := llm.DecodeJSON(raw, &verdict); err != nil {
		v.logger.Warn("quality LLM response unparseable, word-count fallback",
			"url", url, "error", err, "response", raw)
		return fallback
	}
	return Result{
		IsValid:    !verdict.HasPaywall && verdict.HasContent,
		HasPaywall: verdict.HasPaywall,
		HasContent: verdict.HasContent,
		WordCount:  wc,
		Confidence: verdict.Confidence,
		Reason:     "LLM judgment",
	}
}
