// Package browser provides scoped headless Chrome sessions for the fetch
// pipeline: launch, stealth page setup, cookie replay, and guaranteed
// cleanup. A Session is acquired for one fetch or renewal attempt and closed
// on every exit path. It is never shared across URLs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures session launch.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary path. Empty = launcher auto-detect.
	Bin string

	// Timeout bounds connect and navigation. Default: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a live Chrome connection scoped to one attempt.
type Session struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	cfg     Config
}

// Open launches (or attaches to) Chrome and connects.
func Open(cfg Config) (*Session, error) {
	cfg.defaults()

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &Session{browser: b, lnch: lnch, cfg: cfg}, nil
}

// Close shuts down Chrome. Safe to call on every exit path.
func (s *Session) Close() {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

// PageOptions controls a single page visit.
type PageOptions struct {
	// DisableJS turns off script execution before navigation.
	DisableJS bool

	// Settle is extra wait after load for late-rendering pages.
	Settle time.Duration

	// Cookies are installed browser-wide before navigation.
	Cookies []*proto.NetworkCookieParam
}

// Page opens a stealth page and navigates it. The caller owns the returned
// page and must Close it.
func (s *Session) Page(ctx context.Context, pageURL string, opts PageOptions) (*rod.Page, error) {
	if len(opts.Cookies) > 0 {
		if err := s.browser.SetCookies(opts.Cookies); err != nil {
			return nil, fmt.Errorf("browser: set cookies: %w", err)
		}
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	if opts.DisableJS {
		if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(p); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: disable js: %w", err)
		}
	}

	if err := p.Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	if opts.Settle > 0 {
		select {
		case <-time.After(opts.Settle):
		case <-ctx.Done():
			page.Close()
			return nil, ctx.Err()
		}
	}

	return page, nil
}

// HTML visits a page and returns its rendered outer HTML and final URL.
func (s *Session) HTML(ctx context.Context, pageURL string, opts PageOptions) (string, string, error) {
	page, err := s.Page(ctx, pageURL, opts)
	if err != nil {
		return "", "", err
	}
	defer page.Close()

	html, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("browser: read html: %w", err)
	}

	finalURL := pageURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}
	return html, finalURL, nil
}

// Cookies returns the browser-wide cookie jar.
func (s *Session) Cookies() ([]*proto.NetworkCookie, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}
	return cookies, nil
}
