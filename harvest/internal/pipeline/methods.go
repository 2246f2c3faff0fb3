package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/harvest/internal/selcache"
)

// cachedMethod replays a previously learned selector for this URL's
// pattern. Hit/miss accounting happens in the cascade so that completeness
// rejections also count against the cached selector.
type cachedMethod struct {
	cache *selcache.Cache
}

func (m *cachedMethod) Name() string { return MethodCached }

func (m *cachedMethod) Extract(ctx context.Context, in *Input) (*Candidate, error) {
	if m.cache == nil {
		return nil, nil
	}
	sel := m.cache.Lookup(ctx, in.URL)
	if sel == nil {
		return nil, nil
	}
	region, err := extract.ApplySelectorToDoc(in.Doc, sel.ContentSelector, extract.SelectorType(sel.SelectorType))
	if err != nil {
		// The selector matched nothing: that is a cache miss, not a
		// pipeline error.
		return &Candidate{FromCache: true, CachePattern: sel.Pattern}, nil
	}
	return &Candidate{
		Text:         region.Text,
		HTML:         region.HTML,
		Selector:     sel.ContentSelector,
		SelectorType: sel.SelectorType,
		Confidence:   sel.Confidence,
		FromCache:    true,
		CachePattern: sel.Pattern,
	}, nil
}

// jsonLDMethod reads schema.org structured data. Publishers that embed a
// NewsArticle block give us the body for free.
type jsonLDMethod struct{}

func (m *jsonLDMethod) Name() string { return MethodJSONLD }

var articleTypes = map[string]bool{
	"NewsArticle": true,
	"Article":     true,
	"BlogPosting": true,
}

func (m *jsonLDMethod) Extract(_ context.Context, in *Input) (*Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return nil, fmt.Errorf("json-ld: %w", err)
	}
	var body string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true // malformed block, keep scanning
		}
		body = findArticleBody(payload)
		return body == ""
	})
	if body == "" {
		return nil, nil
	}
	if extract.WordCount(body) < minWords {
		return nil, nil
	}
	return &Candidate{Text: body}, nil
}

// findArticleBody walks a decoded JSON-LD payload, including @graph arrays,
// for the first article-typed node with an articleBody.
func findArticleBody(node any) string {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if body := findArticleBody(item); body != "" {
				return body
			}
		}
	case map[string]any:
		if isArticleType(v["@type"]) {
			if body, ok := v["articleBody"].(string); ok && strings.TrimSpace(body) != "" {
				return body
			}
		}
		if graph, ok := v["@graph"]; ok {
			return findArticleBody(graph)
		}
	}
	return ""
}

func isArticleType(t any) bool {
	switch v := t.(type) {
	case string:
		return articleTypes[v]
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && articleTypes[s] {
				return true
			}
		}
	}
	return false
}

// densityMethod is readability heuristic A: text-density scoring over the
// DOM, biased toward article landmarks and against link-heavy regions.
type densityMethod struct{}

func (m *densityMethod) Name() string { return MethodDensity }

func (m *densityMethod) Extract(_ context.Context, in *Input) (*Candidate, error) {
	region := extract.DensityFromDoc(in.Doc)
	if region == nil {
		return nil, nil
	}
	return &Candidate{Text: region.Text}, nil
}

// readabilityMethod is heuristic B: the Mozilla-style scoring algorithm.
// Independent from heuristic A so one can catch pages the other misses.
type readabilityMethod struct{}

func (m *readabilityMethod) Name() string { return MethodReadability }

func (m *readabilityMethod) Extract(_ context.Context, in *Input) (*Candidate, error) {
	pageURL, err := url.Parse(in.URL)
	if err != nil {
		pageURL = nil
	}
	article, err := readability.FromReader(strings.NewReader(in.HTML), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	return &Candidate{Text: article.TextContent}, nil
}
