package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/presse/netsafe"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// baseHeaders mimic a plain browser GET.
var baseHeaders = map[string]string{
	"User-Agent": browserUA,
	"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
}

// extendedHeaders add the fields some sites key fuller markup on.
var extendedHeaders = map[string]string{
	"User-Agent":                browserUA,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "es-ES,es;q=0.9,en;q=0.8",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// validateURL guards every fetch target. Swapped out in tests that talk to
// loopback servers.
var validateURL = netsafe.ValidateURL

// httpGet performs one validated GET and returns the body as a Page.
func httpGet(ctx context.Context, client *http.Client, pageURL string, headers map[string]string, cookies []*http.Cookie) (*Page, error) {
	if err := validateURL(pageURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := netsafe.LimitedReadAll(resp.Body, netsafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}
	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{HTML: string(body), FinalURL: finalURL}, nil
}

// CookieSource is the slice of the cookie manager the cookies strategy needs.
type CookieSource interface {
	CheckAndRenew(ctx context.Context, domain string)
	CookiesFor(ctx context.Context, domain string) ([]*http.Cookie, error)
}

// CookiesStrategy fetches with stored authentication cookies. Only useful
// for domains the jar knows; without cookies it yields nothing and the
// cascade moves on. Authenticated responses skip validation.
type CookiesStrategy struct {
	Client         *http.Client
	Jar            CookieSource
	AttemptTimeout time.Duration
}

func (s *CookiesStrategy) Name() string           { return MethodCookies }
func (s *CookiesStrategy) SkipValidation() bool   { return true }
func (s *CookiesStrategy) Timeout() time.Duration { return s.AttemptTimeout }

func (s *CookiesStrategy) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	domain := DomainOf(pageURL)
	if domain == "" {
		return nil, fmt.Errorf("no domain in %s", pageURL)
	}
	s.Jar.CheckAndRenew(ctx, domain)
	cookies, err := s.Jar.CookiesFor(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("cookies for %s: %w", domain, err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies stored for %s", domain)
	}
	return httpGet(ctx, s.Client, pageURL, extendedHeaders, cookies)
}

// DirectStrategy is a plain GET with minimal browser headers.
type DirectStrategy struct {
	Client         *http.Client
	AttemptTimeout time.Duration
}

func (s *DirectStrategy) Name() string           { return MethodDirect }
func (s *DirectStrategy) SkipValidation() bool   { return false }
func (s *DirectStrategy) Timeout() time.Duration { return s.AttemptTimeout }

func (s *DirectStrategy) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	return httpGet(ctx, s.Client, pageURL, baseHeaders, nil)
}

// NoJSStrategy repeats the GET with the extended header set. Some sites
// serve fuller server-rendered markup to clients that look like simple
// non-JS browsers.
type NoJSStrategy struct {
	Client         *http.Client
	AttemptTimeout time.Duration
}

func (s *NoJSStrategy) Name() string           { return MethodNoJS }
func (s *NoJSStrategy) SkipValidation() bool   { return false }
func (s *NoJSStrategy) Timeout() time.Duration { return s.AttemptTimeout }

func (s *NoJSStrategy) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	return httpGet(ctx, s.Client, pageURL, extendedHeaders, nil)
}
