package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/net/html"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/presse/dbopen"
	"github.com/hazyhaar/presse/extract"
	"github.com/hazyhaar/presse/harvest/internal/selcache"
	"github.com/hazyhaar/presse/harvest/internal/store"
	"github.com/hazyhaar/presse/harvest/internal/validate"
	"github.com/hazyhaar/presse/llm"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseInput(rawHTML string) (*html.Node, error) {
	return extract.Parse(rawHTML)
}

type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

type fakeCompleteness struct {
	complete bool
	calls    int
}

func (f *fakeCompleteness) Completeness(_ context.Context, _, _ string) validate.Completeness {
	f.calls++
	return validate.Completeness{IsComplete: f.complete, Confidence: 90}
}

func newTestCache(t *testing.T) *selcache.Cache {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	return selcache.New(store.NewStore(db), nil)
}

// paragraphs renders n paragraphs of filler prose, each long enough to pass
// the per-node region filter.
func paragraphs(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("<p>")
		sb.WriteString(strings.TrimSpace(strings.Repeat("reporting from the scene of the story ", 5)))
		sb.WriteString("</p>")
	}
	return sb.String()
}

func pageWith(body string) string {
	return "<html><head><title>t</title></head><body>" + body + "</body></html>"
}

func TestCachedSelectorReplay(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	cache.Store(ctx, "https://x.com/news/a", "div.cached p", "css", 90)

	mock := &fakeLLM{}
	comp := &fakeCompleteness{complete: true}
	c := NewCascade(cache, mock, comp, nil, nil)

	html := pageWith(`<div class="cached">` + paragraphs(15) + `</div>`)
	r := c.Extract(ctx, "https://x.com/news/b", "t", html)
	if !r.Success || r.Method != MethodCached {
		t.Fatalf("result = %+v", r)
	}
	if r.Selector != "div.cached p" {
		t.Errorf("selector = %q", r.Selector)
	}
	if mock.calls != 0 {
		t.Errorf("cached replay should make zero LLM calls, got %d", mock.calls)
	}

	sel := cache.Lookup(ctx, "https://x.com/news/c")
	if sel == nil || sel.SuccessCount != 2 {
		t.Errorf("hit not recorded: %+v", sel)
	}
}

func TestCachedSelectorMissFallsThrough(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	cache.Store(ctx, "https://x.com/news/a", "div.gone p", "css", 90)

	comp := &fakeCompleteness{complete: true}
	// Only the cached method: a miss must exhaust the cascade, not error.
	c := NewCascadeWithMethods([]Method{&cachedMethod{cache: cache}}, cache, comp, nil, nil)

	html := pageWith(`<article>` + paragraphs(15) + `</article>`)
	r := c.Extract(ctx, "https://x.com/news/b", "t", html)
	if r.Success || r.Method != MethodFailed {
		t.Fatalf("result = %+v", r)
	}

	sel := cache.Lookup(ctx, "https://x.com/news/c")
	if sel == nil || sel.FailureCount != 1 {
		t.Errorf("miss not recorded: %+v", sel)
	}
}

func TestJSONLDExtraction(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("structured data body words here ", 40))
	html := pageWith(fmt.Sprintf(
		`<script type="application/ld+json">{"@context":"https://schema.org","@type":"NewsArticle","articleBody":%q}</script>`,
		body))

	comp := &fakeCompleteness{complete: true}
	c := NewCascadeWithMethods([]Method{&jsonLDMethod{}}, nil, comp, nil, nil)
	r := c.Extract(context.Background(), "https://x.com/a", "t", html)
	if !r.Success || r.Method != MethodJSONLD {
		t.Fatalf("result = %+v", r)
	}
	if !strings.Contains(r.Content, "structured data body") {
		t.Errorf("content = %q", r.Content[:60])
	}
}

func TestJSONLDGraphAndTypeArray(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("graph nested article body words ", 40))
	html := pageWith(fmt.Sprintf(
		`<script type="application/ld+json">{"@graph":[{"@type":["Thing","BlogPosting"],"articleBody":%q}]}</script>`,
		body))

	m := &jsonLDMethod{}
	cand, err := m.Extract(context.Background(), &Input{HTML: html})
	if err != nil || cand == nil {
		t.Fatalf("extract: %v, %+v", err, cand)
	}
	if !strings.Contains(cand.Text, "graph nested") {
		t.Errorf("text = %q", cand.Text[:40])
	}
}

func TestJSONLDRejectsShortBody(t *testing.T) {
	html := pageWith(`<script type="application/ld+json">{"@type":"Article","articleBody":"too short"}</script>`)
	m := &jsonLDMethod{}
	cand, err := m.Extract(context.Background(), &Input{HTML: html})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if cand != nil {
		t.Errorf("short body accepted: %+v", cand)
	}
}

func TestLLMXPathDiscoveryWritesCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	// First candidate matches nothing; second hits the section.
	mock := &fakeLLM{responses: []string{
		`{"candidates": [
			{"selector": "div.nope p", "type": "css", "confidence": 80},
			{"selector": "section.story p", "type": "css", "confidence": 70},
			{"selector": "//article//p", "type": "xpath", "confidence": 60}
		]}`,
	}}
	comp := &fakeCompleteness{complete: true}
	c := NewCascadeWithMethods(
		[]Method{&cachedMethod{cache: cache}, &llmXPathMethod{llm: mock, logger: discard()}},
		cache, comp, nil, nil)

	html := pageWith(`<section class="story">` + paragraphs(12) + `</section>`)
	r := c.Extract(ctx, "https://x.com/news/a", "t", html)
	if !r.Success || r.Method != MethodLLMXPath {
		t.Fatalf("result = %+v", r)
	}
	if r.Selector != "section.story p" || r.SelectorType != "css" {
		t.Errorf("winning selector = %q type %q", r.Selector, r.SelectorType)
	}

	sel := cache.Lookup(ctx, "https://x.com/news/other")
	if sel == nil {
		t.Fatal("discovered selector not cached")
	}
	if sel.ContentSelector != "section.story p" || sel.SuccessCount != 1 || sel.Confidence != 70 {
		t.Errorf("cache entry = %+v", sel)
	}
}

func TestLLMXPathMalformedResponse(t *testing.T) {
	mock := &fakeLLM{responses: []string{"sorry, I cannot find a selector"}}
	m := &llmXPathMethod{llm: mock, logger: discard()}
	in := &Input{URL: "https://x.com/a", HTML: pageWith(paragraphs(5))}
	var err error
	in.Doc, err = parseInput(in.HTML)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Extract(context.Background(), in); err == nil {
		t.Error("want error for malformed response")
	}
}

func TestLLMDirectExtraction(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("directly extracted words ", 50))
	mock := &fakeLLM{responses: []string{fmt.Sprintf(`{"content": %q}`, body)}}
	comp := &fakeCompleteness{complete: true}
	c := NewCascadeWithMethods([]Method{&llmDirectMethod{llm: mock, logger: discard()}}, nil, comp, nil, nil)

	r := c.Extract(context.Background(), "https://x.com/a", "t", pageWith("<div>junk</div>"))
	if !r.Success || r.Method != MethodLLMDirect {
		t.Fatalf("result = %+v", r)
	}
}

func TestIncompleteWinnerCascades(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	cache.Store(ctx, "https://x.com/news/a", "div.cached p", "css", 90)

	body := strings.TrimSpace(strings.Repeat("direct full body words ", 60))
	mock := &fakeLLM{responses: []string{fmt.Sprintf(`{"content": %q}`, body)}}
	comp := &fakeCompleteness{} // everything judged incomplete...
	c := NewCascadeWithMethods(
		[]Method{&cachedMethod{cache: cache}, &llmDirectMethod{llm: mock, logger: discard()}},
		cache, comp, nil, nil)

	// ...so even the matching cached selector must be rejected and counted
	// as a miss, and the cascade must keep going.
	html := pageWith(`<div class="cached">` + paragraphs(6) + `</div>`)
	r := c.Extract(ctx, "https://x.com/news/b", "t", html)
	if r.Success {
		t.Fatalf("everything incomplete, yet result = %+v", r)
	}
	sel := cache.Lookup(ctx, "https://x.com/news/c")
	if sel == nil || sel.FailureCount != 1 {
		t.Errorf("completeness rejection not counted as miss: %+v", sel)
	}
	if comp.calls < 1 {
		t.Error("completeness never consulted")
	}
}

func TestCompletenessSkippedForLongExtract(t *testing.T) {
	comp := &fakeCompleteness{} // would reject if consulted
	c := NewCascadeWithMethods([]Method{&densityMethod{}}, nil, comp, nil, nil)

	// 40 paragraphs is comfortably past the self-evidently-complete bar.
	html := pageWith("<article>" + paragraphs(40) + "</article>")
	r := c.Extract(context.Background(), "https://x.com/a", "t", html)
	if !r.Success {
		t.Fatalf("result = %+v", r)
	}
	if comp.calls != 0 {
		t.Errorf("completeness consulted for a %d-word extract", r.WordCount)
	}
}

func TestAllMethodsExhausted(t *testing.T) {
	mock := &fakeLLM{err: errors.New("provider down")}
	comp := &fakeCompleteness{complete: true}
	c := NewCascade(newTestCache(t), mock, comp, nil, nil)

	r := c.Extract(context.Background(), "https://x.com/a", "t", "<html><body><p>tiny</p></body></html>")
	if r.Success || r.Method != MethodFailed {
		t.Fatalf("result = %+v", r)
	}
	if r.Error == "" {
		t.Error("exhaustion should carry an error string")
	}
}
