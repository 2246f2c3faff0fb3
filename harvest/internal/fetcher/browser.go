package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/presse/browser"
)

// BrowserSession is the slice of browser.Session the browser strategies need.
type BrowserSession interface {
	HTML(ctx context.Context, pageURL string, opts browser.PageOptions) (string, string, error)
	Close()
}

// OpenBrowser opens a fresh session for one attempt.
type OpenBrowser func() (BrowserSession, error)

// BrowserNoJSStrategy renders the page in headless Chrome with script
// execution disabled: sites that gate via client-side redirects often still
// serve usable server-rendered HTML when JS cannot run. The session lives
// for exactly one attempt.
type BrowserNoJSStrategy struct {
	Open           OpenBrowser
	AttemptTimeout time.Duration
}

func (s *BrowserNoJSStrategy) Name() string           { return MethodBrowser }
func (s *BrowserNoJSStrategy) SkipValidation() bool   { return false }
func (s *BrowserNoJSStrategy) Timeout() time.Duration { return s.AttemptTimeout }

func (s *BrowserNoJSStrategy) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := validateURL(pageURL); err != nil {
		return nil, err
	}
	sess, err := s.Open()
	if err != nil {
		return nil, fmt.Errorf("browser no-js: %w", err)
	}
	defer sess.Close()

	html, finalURL, err := sess.HTML(ctx, pageURL, browser.PageOptions{DisableJS: true})
	if err != nil {
		return nil, fmt.Errorf("browser no-js: %w", err)
	}
	return &Page{HTML: html, FinalURL: finalURL}, nil
}
