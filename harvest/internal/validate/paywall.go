package validate

import (
	"context"
	"strings"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/llm"
)

// DetectPaywall reports whether the page's HTML shows a blocking paywall.
// Strong gate phrases decide immediately; very long pages are cleared
// without an LLM call; the borderline band goes to the LLM judge. Any LLM
// or parse failure defaults to "no paywall": a false rejection loses an
// article, a false acceptance only wastes one extraction attempt.
func (v *Validator) DetectPaywall(ctx context.Context, html, url string) bool {
	text := extract.VisibleText(html)
	lower := strings.ToLower(text)

	for _, phrase := range strongPaywallPhrases {
		if strings.Contains(lower, phrase) {
			v.logger.Debug("paywall phrase found", "url", url, "phrase", phrase)
			return true
		}
	}

	if extract.WordCount(text) >= paywallLongMin {
		return false
	}

	if v.llm == nil {
		return false
	}
	head, tail := headTail(text, paywallHeadChars, paywallTailChars)
	raw, err := v.llm.Complete(ctx, paywallPrompt(url, head, tail))
	if err != nil {
		v.logger.Warn("paywall LLM check failed, assuming no paywall", "url", url, "error", err)
		return false
	}
	var verdict struct {
		IsPaywall  bool `json:"is_paywall"`
		Confidence int  `json:"confidence"`
	}
	if err := llm.DecodeJSON(raw, &verdict); err != nil {
		v.logger.Warn("paywall LLM response unparseable, assuming no paywall",
			"url", url, "error", err, "response", raw)
		return false
	}
	return verdict.IsPaywall
}
