package harvest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/presse/dbopen"
	"github.com/hazyhaar/presse/harvest/internal/digest"
	"github.com/hazyhaar/presse/harvest/internal/fetcher"
	"github.com/hazyhaar/presse/harvest/internal/pipeline"
	"github.com/hazyhaar/presse/harvest/internal/selcache"
	"github.com/hazyhaar/presse/harvest/internal/store"
	"github.com/hazyhaar/presse/harvest/internal/validate"
	"github.com/hazyhaar/presse/idgen"
	"github.com/hazyhaar/presse/llm"
)

type fakeFetch struct {
	html       string
	method     string
	archiveURL string
	err        error
	calls      int
}

func (f *fakeFetch) Fetch(_ context.Context, _, _ string, _ bool) (*fetcher.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Result{
		HTML:       f.html,
		Method:     f.method,
		ArchiveURL: f.archiveURL,
		Validation: validate.Skipped(0),
	}, nil
}

type countingLLM struct {
	calls int
}

func (c *countingLLM) Complete(context.Context, llm.Request) (string, error) {
	c.calls++
	return "", fmt.Errorf("no llm in this test")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService builds a service over an in-memory store with a fake fetch
// cascade and a real extraction cascade wired to a call-counting LLM.
func newTestService(t *testing.T, fetch *fakeFetch, cl *countingLLM) (*Service, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.NewStore(db)
	logger := discard()
	cache := selcache.New(st, logger)
	validator := validate.New(nil, logger)

	cfg := Config{}
	cfg.defaults()

	s := &Service{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		valid:  validator,
		fetch:  fetch,
		newID:  idgen.Prefixed("url_", idgen.UUIDv7()),
		logger: logger,
	}
	s.pipe = pipeline.NewCascade(cache, cl, validator, s.recorder(store.StageExtract), logger)
	return s, st
}

func article(words int) string {
	var b strings.Builder
	for words > 0 {
		n := 80
		if words < n {
			n = words
		}
		b.WriteString("<p>" + strings.TrimSpace(strings.Repeat("palabra ", n)) + "</p>")
		words -= n
	}
	return b.String()
}

func TestProcessURL_CachedSelectorNoLLM(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><div class="story">` + article(400) + `</div><footer>pie</footer></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	cl := &countingLLM{}
	s, st := newTestService(t, fetch, cl)

	s.cache.Store(ctx, "https://elpais.com/economia/articulo", "div.story", "css", 80)

	res := s.ProcessURL(ctx, URLInput{URL: "https://elpais.com/economia/articulo"}, Options{})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if res.Method != pipeline.MethodCached {
		t.Errorf("method: got %q, want %q", res.Method, pipeline.MethodCached)
	}
	if res.FetchMethod != fetcher.MethodDirect {
		t.Errorf("fetch method: got %q", res.FetchMethod)
	}
	if cl.calls != 0 {
		t.Errorf("LLM calls: got %d, want 0", cl.calls)
	}

	rec, err := st.GetURL(ctx, "https://elpais.com/economia/articulo")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != store.StatusSuccess || rec.ExtractMethod != pipeline.MethodCached {
		t.Errorf("persisted record: %+v", rec)
	}
	if rec.WordCount < 380 || rec.WordCount > 420 {
		t.Errorf("word count: got %d", rec.WordCount)
	}

	sel, err := st.GetSelector(ctx, "elpais.com/economia")
	if err != nil {
		t.Fatal(err)
	}
	if sel.SuccessCount != 2 {
		t.Errorf("success count after replay: got %d, want 2", sel.SuccessCount)
	}
}

func TestProcessURL_Idempotent(t *testing.T) {
	ctx := context.Background()
	fetch := &fakeFetch{html: "<p>unused</p>", method: fetcher.MethodDirect}
	s, st := newTestService(t, fetch, &countingLLM{})

	if err := st.UpsertURL(ctx, &store.URLRecord{
		ID: "url_x", URL: "https://example.com/a", Domain: "example.com",
		Status: store.StatusSuccess, ExtractMethod: pipeline.MethodJSONLD,
		FetchMethod: fetcher.MethodDirect, WordCount: 640,
	}); err != nil {
		t.Fatal(err)
	}

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/a"}, Options{})
	if !res.Success || !res.Cached {
		t.Fatalf("expected cached success: %+v", res)
	}
	if res.WordCount != 640 || res.Method != pipeline.MethodJSONLD {
		t.Errorf("cached result: %+v", res)
	}
	if fetch.calls != 0 {
		t.Errorf("fetch calls: got %d, want 0", fetch.calls)
	}
}

func TestProcessURL_ForceReprocesses(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(450) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, st := newTestService(t, fetch, &countingLLM{})

	if err := st.UpsertURL(ctx, &store.URLRecord{
		ID: "url_x", URL: "https://example.com/a", Domain: "example.com",
		Status: store.StatusSuccess, WordCount: 10,
	}); err != nil {
		t.Fatal(err)
	}

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/a"}, Options{Force: true})
	if !res.Success || res.Cached {
		t.Fatalf("expected fresh success: %+v", res)
	}
	if fetch.calls != 1 {
		t.Errorf("fetch calls: got %d, want 1", fetch.calls)
	}

	rec, err := st.GetURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "url_x" {
		t.Errorf("record ID changed on reprocess: %q", rec.ID)
	}
	if rec.WordCount < 400 {
		t.Errorf("word count not refreshed: %d", rec.WordCount)
	}
}

func TestProcessURL_FetchFailurePersisted(t *testing.T) {
	ctx := context.Background()
	fetch := &fakeFetch{err: fmt.Errorf("all fetch strategies exhausted")}
	s, st := newTestService(t, fetch, &countingLLM{})

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/dead"}, Options{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "fetch:") {
		t.Errorf("error: got %q", res.Error)
	}

	rec, err := st.GetURL(ctx, "https://example.com/dead")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != store.StatusFailed || rec.Error == "" {
		t.Errorf("persisted record: %+v", rec)
	}
}

func TestProcessURL_ExtractionExhausted(t *testing.T) {
	ctx := context.Background()
	fetch := &fakeFetch{html: "<html><body><nav>menu</nav></body></html>", method: fetcher.MethodDirect}
	s, st := newTestService(t, fetch, &countingLLM{})

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/empty"}, Options{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Method != pipeline.MethodFailed {
		t.Errorf("method: got %q", res.Method)
	}

	rec, err := st.GetURL(ctx, "https://example.com/empty")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != store.StatusFailed {
		t.Errorf("status: got %q", rec.Status)
	}
}

func TestProcessURL_TooShortRejected(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(400) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, _ := newTestService(t, fetch, &countingLLM{})
	s.cfg.MinWords = 500

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/short"}, Options{})
	if res.Success {
		t.Fatal("expected rejection below MinWords")
	}
	if !strings.Contains(res.Error, "too short") {
		t.Errorf("error: got %q", res.Error)
	}
}

func TestProcessURL_OverlongKept(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(700) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, _ := newTestService(t, fetch, &countingLLM{})
	s.cfg.MaxWords = 600

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/long"}, Options{})
	if !res.Success {
		t.Fatalf("overlong content must still succeed: %+v", res)
	}
}

func TestProcessURL_ArchiveURLPersisted(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(400) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodArchive, archiveURL: "https://archive.ph/abc"}
	s, st := newTestService(t, fetch, &countingLLM{})

	res := s.ProcessURL(ctx, URLInput{URL: "https://example.com/articulo-archivado"}, Options{})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if !res.UsedArchive || res.ArchiveURL != "https://archive.ph/abc" {
		t.Fatalf("archive provenance missing: %+v", res)
	}

	rec, err := st.GetURL(ctx, "https://example.com/articulo-archivado")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ArchiveURL != "https://archive.ph/abc" {
		t.Fatalf("archive_url not persisted: %q", rec.ArchiveURL)
	}

	// The already-extracted short circuit must report the same provenance.
	cached := s.ProcessURL(ctx, URLInput{URL: "https://example.com/articulo-archivado"}, Options{})
	if !cached.Cached || !cached.UsedArchive || cached.ArchiveURL != "https://archive.ph/abc" {
		t.Fatalf("cached result lost archive provenance: %+v", cached)
	}
}

func TestProcessURL_DigestWritten(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	html := `<html><body><article>` + article(420) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, _ := newTestService(t, fetch, &countingLLM{})

	w, err := digest.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.digest = w

	res := s.ProcessURL(ctx, URLInput{ID: "url_digest", URL: "https://example.com/d", Title: "Titular"}, Options{})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(dir, "url_digest.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Titular") {
		t.Error("digest missing title")
	}
}

func TestProcessURL_AttemptLedger(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(400) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, st := newTestService(t, fetch, &countingLLM{})

	s.ProcessURL(ctx, URLInput{URL: "https://example.com/a"}, Options{})

	attempts, err := st.AttemptsForURL(ctx, "https://example.com/a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) == 0 {
		t.Fatal("expected extract attempts in the ledger")
	}
	var accepted bool
	for _, a := range attempts {
		if a.Stage == store.StageExtract && a.OK {
			accepted = true
		}
	}
	if !accepted {
		t.Error("no successful extract attempt recorded")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	html := `<html><body><article>` + article(400) + `</article></body></html>`
	fetch := &fakeFetch{html: html, method: fetcher.MethodDirect}
	s, _ := newTestService(t, fetch, &countingLLM{})

	s.ProcessURL(ctx, URLInput{URL: "https://example.com/a"}, Options{})
	s.ProcessURL(ctx, URLInput{URL: "https://example.com/b"}, Options{})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.URLs.Total != 2 {
		t.Errorf("total: got %d, want 2", stats.URLs.Total)
	}
	if stats.URLs.ByStatus[store.StatusSuccess] != 2 {
		t.Errorf("successes: got %d", stats.URLs.ByStatus[store.StatusSuccess])
	}
}

func TestPendingURLs(t *testing.T) {
	ctx := context.Background()
	s, st := newTestService(t, &fakeFetch{}, &countingLLM{})

	for i, u := range []string{"https://a.com/1", "https://a.com/2"} {
		if err := st.UpsertURL(ctx, &store.URLRecord{
			ID: fmt.Sprintf("url_%d", i), URL: u, Domain: "a.com", Status: store.StatusPending,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.UpsertURL(ctx, &store.URLRecord{
		ID: "url_done", URL: "https://a.com/3", Domain: "a.com", Status: store.StatusSuccess,
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingURLs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending: got %d, want 2", len(pending))
	}
}
