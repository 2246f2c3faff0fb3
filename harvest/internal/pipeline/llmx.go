package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/llm"
)

// HTML sample caps for the two LLM methods, in characters.
const (
	xpathSampleChars  = 12000
	directSampleChars = 15000
)

const extractorSystem = "You analyze news-site HTML. Answer strictly with the " +
	"requested JSON object and nothing else."

// llmXPathMethod asks the LLM to find the article-body selector from an
// HTML sample, then applies the ranked candidates against the full page.
// A winner is flagged for the selector cache.
type llmXPathMethod struct {
	llm    Completer
	logger *slog.Logger
}

func (m *llmXPathMethod) Name() string { return MethodLLMXPath }

type selectorCandidate struct {
	Selector   string `json:"selector"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
}

func (m *llmXPathMethod) Extract(ctx context.Context, in *Input) (*Candidate, error) {
	if m.llm == nil {
		return nil, fmt.Errorf("llm_xpath: no LLM configured")
	}
	sample := in.HTML
	if len(sample) > xpathSampleChars {
		sample = sample[:xpathSampleChars]
	}
	prompt := fmt.Sprintf(`Find the selector for the article body on this page.
URL: %s

Rules:
- Propose exactly 3 candidate selectors, best first.
- Prefer CSS; use XPath only when CSS cannot express the match.
- Each selector must terminate at the paragraph level: end in "p" (CSS) or "//p" (XPath) so it matches the body paragraphs, not a wrapper.
- Skip navigation, sidebars, comments and subscription forms.

HTML sample (truncated):
%s

Reply with JSON: {"candidates": [{"selector": "...", "type": "css"|"xpath", "confidence": 0-100}]}`,
		in.URL, sample)

	raw, err := m.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		System:      extractorSystem,
		Temperature: 0,
		MaxTokens:   600,
		Format:      llm.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("llm_xpath: %w", err)
	}
	var parsed struct {
		Candidates []selectorCandidate `json:"candidates"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		m.logger.Warn("llm_xpath response unparseable", "url", in.URL, "error", err, "response", raw)
		return nil, fmt.Errorf("llm_xpath: malformed response: %w", err)
	}

	for _, c := range parsed.Candidates {
		if strings.TrimSpace(c.Selector) == "" {
			continue
		}
		typ := extract.SelectorCSS
		if strings.EqualFold(c.Type, "xpath") {
			typ = extract.SelectorXPath
		}
		region, err := extract.ApplySelectorToDoc(in.Doc, c.Selector, typ)
		if err != nil {
			m.logger.Debug("llm_xpath candidate matched nothing", "selector", c.Selector, "error", err)
			continue
		}
		if extract.WordCount(region.Text) < minWords {
			continue
		}
		return &Candidate{
			Text:         region.Text,
			HTML:         region.HTML,
			Selector:     c.Selector,
			SelectorType: string(typ),
			Confidence:   c.Confidence,
			Discovered:   true,
		}, nil
	}
	return nil, fmt.Errorf("llm_xpath: no candidate yielded enough text")
}

// llmDirectMethod is the last resort: the LLM reads a larger sample and
// returns the article text itself.
type llmDirectMethod struct {
	llm    Completer
	logger *slog.Logger
}

func (m *llmDirectMethod) Name() string { return MethodLLMDirect }

func (m *llmDirectMethod) Extract(ctx context.Context, in *Input) (*Candidate, error) {
	if m.llm == nil {
		return nil, fmt.Errorf("llm_direct: no LLM configured")
	}
	sample := in.HTML
	if len(sample) > directSampleChars {
		sample = sample[:directSampleChars]
	}
	prompt := fmt.Sprintf(`Extract the full article body text from this page.
Expected article title: %q

Exclude: navigation, menus, sidebars, ads, image captions, comments,
related-article lists, and subscription or newsletter forms. Return the
body as plain text with paragraphs separated by blank lines.

HTML sample (truncated):
%s

Reply with JSON: {"content": "..."}`, in.Title, sample)

	raw, err := m.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		System:      extractorSystem,
		Temperature: 0,
		MaxTokens:   4096,
		Format:      llm.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("llm_direct: %w", err)
	}
	var parsed struct {
		Content string `json:"content"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		m.logger.Warn("llm_direct response unparseable", "url", in.URL, "error", err, "response", raw)
		return nil, fmt.Errorf("llm_direct: malformed response: %w", err)
	}
	if extract.WordCount(parsed.Content) < minWords {
		return nil, fmt.Errorf("llm_direct: only %d words returned", extract.WordCount(parsed.Content))
	}
	return &Candidate{Text: parsed.Content}, nil
}
