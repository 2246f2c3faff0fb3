package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/presse/browser"
	"github.com/hazyhaar/presse/harvest/internal/validate"
)

type fakeStrategy struct {
	name     string
	skipVal  bool
	page     *Page
	err      error
	calls    int
	panicked bool
}

func (f *fakeStrategy) Name() string           { return f.name }
func (f *fakeStrategy) SkipValidation() bool   { return f.skipVal }
func (f *fakeStrategy) Timeout() time.Duration { return time.Second }
func (f *fakeStrategy) Fetch(_ context.Context, _ string) (*Page, error) {
	f.calls++
	if f.panicked {
		panic("transport blew up")
	}
	return f.page, f.err
}

type fakeQuality struct {
	results map[string]validate.Result
	calls   int
}

func (f *fakeQuality) Quality(_ context.Context, html, _, _ string, _ bool) validate.Result {
	f.calls++
	for marker, r := range f.results {
		if strings.Contains(html, marker) {
			return r
		}
	}
	return validate.Result{Reason: "no marker"}
}

func TestCascadeStopsAtFirstValidated(t *testing.T) {
	first := &fakeStrategy{name: MethodCookies, skipVal: true, page: &Page{HTML: "<p>authenticated body text</p>"}}
	second := &fakeStrategy{name: MethodDirect, page: &Page{HTML: "<p>direct</p>"}}
	q := &fakeQuality{}
	c := NewCascade([]Strategy{first, second}, q, nil, nil)

	r, err := c.Fetch(context.Background(), "https://x.com/a", "t", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Method != MethodCookies || !r.HasAuth {
		t.Errorf("result = %+v", r)
	}
	if second.calls != 0 {
		t.Errorf("cheaper method succeeded but next was invoked %d times", second.calls)
	}
	if q.calls != 0 {
		t.Errorf("authenticated fetch should skip validation, quality calls = %d", q.calls)
	}
}

func TestCascadeContinuesPastFailures(t *testing.T) {
	broken := &fakeStrategy{name: MethodCookies, err: errors.New("no cookies stored")}
	empty := &fakeStrategy{name: MethodDirect, page: &Page{HTML: "   "}}
	panicky := &fakeStrategy{name: MethodNoJS, panicked: true}
	good := &fakeStrategy{name: MethodBrowser, page: &Page{HTML: "<p>GOOD body</p>"}}
	q := &fakeQuality{results: map[string]validate.Result{
		"GOOD": {IsValid: true, HasContent: true, WordCount: 300},
	}}
	c := NewCascade([]Strategy{broken, empty, panicky, good}, q, nil, nil)

	r, err := c.Fetch(context.Background(), "https://x.com/a", "t", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Method != MethodBrowser {
		t.Errorf("method = %s", r.Method)
	}
	for _, s := range []*fakeStrategy{broken, empty, panicky, good} {
		if s.calls != 1 {
			t.Errorf("strategy %s calls = %d, want 1", s.name, s.calls)
		}
	}
}

func TestCascadeValidationNegativeCascades(t *testing.T) {
	paywalled := &fakeStrategy{name: MethodDirect, page: &Page{HTML: "<p>PAYWALLED teaser</p>"}}
	archive := &fakeStrategy{name: MethodArchive, page: &Page{HTML: "<p>FULL article</p>", ArchiveURL: "https://archive.ph/abc"}}
	q := &fakeQuality{results: map[string]validate.Result{
		"PAYWALLED": {HasPaywall: true, WordCount: 80, Reason: "paywall"},
		"FULL":      {IsValid: true, HasContent: true, WordCount: 600},
	}}
	var recorded []string
	rec := func(_, method string, ok bool, detail string, _ time.Duration) {
		recorded = append(recorded, fmt.Sprintf("%s:%v", method, ok))
	}
	c := NewCascade([]Strategy{paywalled, archive}, q, rec, nil)

	r, err := c.Fetch(context.Background(), "https://x.com/a", "t", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Method != MethodArchive || r.ArchiveURL != "https://archive.ph/abc" {
		t.Errorf("result = %+v", r)
	}
	want := []string{"direct:false", "archive:true"}
	if len(recorded) != 2 || recorded[0] != want[0] || recorded[1] != want[1] {
		t.Errorf("ledger = %v, want %v", recorded, want)
	}
}

func TestCascadeExhaustion(t *testing.T) {
	a := &fakeStrategy{name: MethodDirect, err: errors.New("403")}
	b := &fakeStrategy{name: MethodNoJS, err: errors.New("403")}
	c := NewCascade([]Strategy{a, b}, &fakeQuality{}, nil, nil)

	if _, err := c.Fetch(context.Background(), "https://x.com/a", "t", false); err == nil {
		t.Error("want exhaustion error")
	}
}

func TestCascadeSkipValidation(t *testing.T) {
	s := &fakeStrategy{name: MethodDirect, page: &Page{HTML: "<p>anything goes</p>"}}
	q := &fakeQuality{}
	c := NewCascade([]Strategy{s}, q, nil, nil)

	r, err := c.Fetch(context.Background(), "https://x.com/a", "t", true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !r.Validation.IsValid || q.calls != 0 {
		t.Errorf("skipValidation should bypass quality: %+v, calls=%d", r.Validation, q.calls)
	}
}

// allowLoopback disables the SSRF guard so strategies can hit httptest
// servers on 127.0.0.1.
func allowLoopback(t *testing.T) {
	t.Helper()
	orig := validateURL
	validateURL = func(string) error { return nil }
	t.Cleanup(func() { validateURL = orig })
}

func TestDirectStrategyAgainstServer(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" || !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0") {
			t.Errorf("missing browser User-Agent: %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, "<html><body><p>served</p></body></html>")
	}))
	defer srv.Close()

	s := &DirectStrategy{Client: srv.Client()}
	page, err := s.Fetch(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(page.HTML, "served") {
		t.Errorf("html = %q", page.HTML)
	}
}

func TestNoJSStrategySendsExtendedHeaders(t *testing.T) {
	allowLoopback(t)
	var gotLang, gotDNT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		gotDNT = r.Header.Get("DNT")
		fmt.Fprint(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()

	s := &NoJSStrategy{Client: srv.Client()}
	if _, err := s.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotLang == "" || gotDNT != "1" {
		t.Errorf("extended headers missing: lang=%q dnt=%q", gotLang, gotDNT)
	}
}

func TestHTTPStatusIsError(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := &DirectStrategy{Client: srv.Client()}
	if _, err := s.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("want error for 403")
	}
}

type fakeJar struct {
	cookies []*http.Cookie
	checked int
}

func (f *fakeJar) CheckAndRenew(_ context.Context, _ string) { f.checked++ }
func (f *fakeJar) CookiesFor(_ context.Context, _ string) ([]*http.Cookie, error) {
	return f.cookies, nil
}

func TestCookiesStrategy(t *testing.T) {
	allowLoopback(t)
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, "<html><body>members area</body></html>")
	}))
	defer srv.Close()

	jar := &fakeJar{cookies: []*http.Cookie{{Name: "sid", Value: "tok"}}}
	s := &CookiesStrategy{Client: srv.Client(), Jar: jar}
	page, err := s.Fetch(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotCookie != "tok" {
		t.Errorf("cookie not sent, got %q", gotCookie)
	}
	if jar.checked != 1 {
		t.Errorf("renewal check calls = %d, want 1", jar.checked)
	}
	if !strings.Contains(page.HTML, "members") {
		t.Errorf("html = %q", page.HTML)
	}

	// Without cookies the strategy yields nothing.
	s.Jar = &fakeJar{}
	if _, err := s.Fetch(context.Background(), srv.URL+"/article"); err == nil {
		t.Error("want error for cookieless domain")
	}
}

type fakeBrowser struct {
	pages  []string // returned in sequence
	finals []string
	calls  int
	closed bool
}

func (f *fakeBrowser) HTML(_ context.Context, pageURL string, _ browser.PageOptions) (string, string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return "", "", errors.New("no more pages")
	}
	final := pageURL
	if i < len(f.finals) {
		final = f.finals[i]
	}
	return f.pages[i], final, nil
}
func (f *fakeBrowser) Close() { f.closed = true }

func TestArchiveStrategyRetriesPastCaptcha(t *testing.T) {
	captcha := `<html><body style="background-color: #f2f2f2">please solve the captcha</body></html>`
	snapshot := "<html><body>" + strings.Repeat("<p>archived paragraph</p>", 300) + "</body></html>"
	fb := &fakeBrowser{
		pages:  []string{captcha, snapshot},
		finals: []string{"", "https://archive.ph/xyz"},
	}
	s := &ArchiveStrategy{
		Open:    func() (BrowserSession, error) { return fb, nil },
		Retries: 2,
		Backoff: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}

	page, err := s.Fetch(context.Background(), "https://x.com/a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fb.calls != 2 {
		t.Errorf("browser calls = %d, want 2", fb.calls)
	}
	if page.ArchiveURL != "https://archive.ph/xyz" {
		t.Errorf("archive url = %q", page.ArchiveURL)
	}
	if !fb.closed {
		t.Error("session not closed")
	}
}

func TestArchiveStrategyGivesUpAfterRetries(t *testing.T) {
	captcha := `<html><body style="background-color:#f2f2f2">captcha</body></html>`
	fb := &fakeBrowser{pages: []string{captcha, captcha, captcha}}
	s := &ArchiveStrategy{
		Open:    func() (BrowserSession, error) { return fb, nil },
		Retries: 2,
		Backoff: []time.Duration{time.Millisecond},
	}

	if _, err := s.Fetch(context.Background(), "https://x.com/a"); err == nil {
		t.Error("want error after exhausted retries")
	}
	if fb.calls != 3 {
		t.Errorf("browser calls = %d, want 3 (initial + 2 retries)", fb.calls)
	}
}

func TestIsCaptchaPage(t *testing.T) {
	big := "<html>" + strings.Repeat("<p>content</p>", 1000) + "background-color:#f2f2f2</html>"
	if isCaptchaPage(big) {
		t.Error("large page misflagged as captcha")
	}
	if !isCaptchaPage(`<html><body style="BACKGROUND-COLOR: #F2F2F2"></body></html>`) {
		t.Error("backdrop signature not matched case-insensitively")
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://www.Example.com/a/b", "example.com"},
		{"https://news.example.com/a", "news.example.com"},
		{"nonsense", ""},
	}
	for _, tt := range tests {
		if got := DomainOf(tt.in); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
