package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/llm"
)

// Completeness judges whether extracted text is the whole article.
// The gate-phrase check runs before the long-article branch: a 200-word text
// ending in a subscription gate is incomplete no matter its length band.
func (v *Validator) Completeness(ctx context.Context, content, title string) Completeness {
	wc := extract.WordCount(content)

	if wc < completeShortMax {
		return Completeness{
			Confidence: 90,
			Reason:     fmt.Sprintf("too short to be a full article: %d words", wc),
		}
	}

	lower := strings.ToLower(content)
	for _, phrase := range continuationPhrases {
		if strings.Contains(lower, phrase) {
			return Completeness{
				Confidence: 85,
				Reason:     fmt.Sprintf("ends at a subscription gate: %q", phrase),
			}
		}
	}

	if wc >= completeLongMin {
		return Completeness{
			IsComplete: true,
			Confidence: 95,
			Reason:     fmt.Sprintf("%d words, no gate phrase", wc),
		}
	}

	return v.completenessByLLM(ctx, content, title, wc)
}

func (v *Validator) completenessByLLM(ctx context.Context, content, title string, wc int) Completeness {
	fallback := Completeness{
		IsComplete: wc >= 200,
		Confidence: 30,
		Reason:     "LLM unavailable, word-count fallback",
	}
	if v.llm == nil {
		return fallback
	}
	head, tail := headTail(content, completeHeadChars, completeTailChars)
	raw, err := v.llm.Complete(ctx, completenessPrompt(title, head, tail))
	if err != nil {
		v.logger.Warn("completeness LLM check failed, word-count fallback", "title", title, "error", err)
		return fallback
	}
	var verdict struct {
		IsComplete bool `json:"is_complete"`
		Confidence int  `json:"confidence"`
	}
	if err := llm.DecodeJSON(raw, &verdict); err != nil {
		v.logger.Warn("completeness LLM response unparseable, word-count fallback",
			"title", title, "error", err, "response", raw)
		return fallback
	}
	return Completeness{
		IsComplete: verdict.IsComplete,
		Confidence: verdict.Confidence,
		Reason:     "LLM judgment of text ending",
	}
}
