package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/presse/llm"
)

type fakeLLM struct {
	resp  string
	err   error
	calls int
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	f.calls++
	return f.resp, f.err
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("palabra ", n))
}

func htmlWith(text string) string {
	return "<html><head><title>t</title></head><body><p>" + text + "</p></body></html>"
}

func TestQualitySkeletonPage(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	r := v.Quality(context.Background(), htmlWith(words(19)), "https://x.com/a", "t", false)
	if r.IsValid {
		t.Error("19 words should be invalid")
	}
	if r.WordCount != 19 {
		t.Errorf("word count = %d", r.WordCount)
	}
	if mock.calls != 0 {
		t.Errorf("skeleton page should not reach the LLM, calls = %d", mock.calls)
	}
}

func TestQualityBorderlineGoesToLLM(t *testing.T) {
	mock := &fakeLLM{resp: `{"has_paywall": false, "has_content": true, "confidence": 80}`}
	v := New(mock, nil)

	// Exactly 20 words, no keyword: past the skeleton gate, under the
	// unambiguous-valid gate, so the LLM decides.
	r := v.Quality(context.Background(), htmlWith(words(20)), "https://x.com/a", "t", false)
	if !r.IsValid {
		t.Errorf("LLM said valid, got %+v", r)
	}
	if mock.calls != 1 {
		t.Errorf("LLM calls = %d, want 1", mock.calls)
	}
}

func TestQualityLongTextNoLLM(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	r := v.Quality(context.Background(), htmlWith(words(1500)), "https://x.com/a", "t", false)
	if !r.IsValid {
		t.Errorf("1500 clean words should be valid: %+v", r)
	}
	if mock.calls != 0 {
		t.Errorf("unambiguous text should not reach the LLM, calls = %d", mock.calls)
	}
}

func TestQualityBlockingKeywordShortText(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	text := words(50) + " suscríbete para seguir leyendo"
	r := v.Quality(context.Background(), htmlWith(text), "https://x.com/a", "t", false)
	if r.IsValid || !r.HasPaywall {
		t.Errorf("short text with gate keyword should be paywalled: %+v", r)
	}
	if mock.calls != 0 {
		t.Errorf("LLM calls = %d, want 0", mock.calls)
	}
}

func TestQualityLLMFailureFallsBackToWordCount(t *testing.T) {
	mock := &fakeLLM{err: errors.New("provider down")}
	v := New(mock, nil)

	r := v.Quality(context.Background(), htmlWith(words(120)), "https://x.com/a", "t", false)
	if !r.IsValid || r.Confidence != 30 {
		t.Errorf("fallback for 120 words should be valid at confidence 30: %+v", r)
	}

	r = v.Quality(context.Background(), htmlWith(words(60)), "https://x.com/a", "t", false)
	if r.IsValid {
		t.Errorf("fallback for 60 words should be invalid: %+v", r)
	}
}

func TestQualityMalformedLLMResponse(t *testing.T) {
	mock := &fakeLLM{resp: "I think this page looks fine to me!"}
	v := New(mock, nil)

	r := v.Quality(context.Background(), htmlWith(words(120)), "https://x.com/a", "t", false)
	if !r.IsValid || r.Confidence != 30 {
		t.Errorf("malformed response should fall back: %+v", r)
	}
}

func TestDetectPaywallStrongPhrase(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	html := htmlWith(words(400) + " Suscríbete para seguir leyendo esta historia.")
	if !v.DetectPaywall(context.Background(), html, "https://x.com/a") {
		t.Error("strong phrase not detected")
	}
	if mock.calls != 0 {
		t.Errorf("phrase hit should not reach the LLM, calls = %d", mock.calls)
	}
}

func TestDetectPaywallLongTextCleared(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	if v.DetectPaywall(context.Background(), htmlWith(words(1500)), "https://x.com/a") {
		t.Error("1500 words should clear the paywall check")
	}
	if mock.calls != 0 {
		t.Errorf("LLM calls = %d, want 0", mock.calls)
	}
}

func TestDetectPaywallBorderline(t *testing.T) {
	mock := &fakeLLM{resp: `{"is_paywall": true, "confidence": 85}`}
	v := New(mock, nil)

	if !v.DetectPaywall(context.Background(), htmlWith(words(400)), "https://x.com/a") {
		t.Error("LLM verdict not honored")
	}
	if mock.calls != 1 {
		t.Errorf("LLM calls = %d, want 1", mock.calls)
	}

	// Failure biases toward inclusion.
	broken := &fakeLLM{err: errors.New("down")}
	v = New(broken, nil)
	if v.DetectPaywall(context.Background(), htmlWith(words(400)), "https://x.com/a") {
		t.Error("LLM failure should default to no paywall")
	}
}

func TestCompletenessShortText(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	c := v.Completeness(context.Background(), words(149), "t")
	if c.IsComplete || c.Confidence != 90 {
		t.Errorf("149 words: %+v", c)
	}
	if mock.calls != 0 {
		t.Errorf("LLM calls = %d, want 0", mock.calls)
	}
}

func TestCompletenessLongCleanText(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	c := v.Completeness(context.Background(), words(300)+" Copyright 2024", "t")
	if !c.IsComplete || c.Confidence != 95 {
		t.Errorf("300 clean words: %+v", c)
	}
	if mock.calls != 0 {
		t.Errorf("LLM calls = %d, want 0", mock.calls)
	}
}

func TestCompletenessGatePhraseBeatsWordCount(t *testing.T) {
	mock := &fakeLLM{}
	v := New(mock, nil)

	// 200 words would otherwise enter the LLM band; the gate phrase must
	// short-circuit first.
	c := v.Completeness(context.Background(), words(200)+" suscríbete para seguir leyendo", "t")
	if c.IsComplete {
		t.Errorf("gate phrase ignored: %+v", c)
	}
	if c.Confidence != 85 {
		t.Errorf("confidence = %d, want 85", c.Confidence)
	}
	if mock.calls != 0 {
		t.Errorf("LLM calls = %d, want 0", mock.calls)
	}
}

func TestCompletenessBorderlineGoesToLLM(t *testing.T) {
	mock := &fakeLLM{resp: `{"is_complete": false, "confidence": 75}`}
	v := New(mock, nil)

	c := v.Completeness(context.Background(), words(200), "t")
	if c.IsComplete {
		t.Errorf("LLM verdict not honored: %+v", c)
	}
	if mock.calls != 1 {
		t.Errorf("LLM calls = %d, want 1", mock.calls)
	}
}

func TestCompletenessLLMFailureFallback(t *testing.T) {
	broken := &fakeLLM{err: errors.New("down")}
	v := New(broken, nil)

	c := v.Completeness(context.Background(), words(220), "t")
	if !c.IsComplete || c.Confidence != 30 {
		t.Errorf("fallback for 220 words: %+v", c)
	}
	c = v.Completeness(context.Background(), words(160), "t")
	if c.IsComplete {
		t.Errorf("fallback for 160 words should be incomplete: %+v", c)
	}
}

func TestSkipped(t *testing.T) {
	r := Skipped(42)
	if !r.IsValid || !r.HasContent || r.WordCount != 42 {
		t.Errorf("skipped result = %+v", r)
	}
}
