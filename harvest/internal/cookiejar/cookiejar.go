// Package cookiejar manages per-domain authentication cookies: encrypted
// storage, staleness tracking and best-effort renewal through a headless
// browser session. Renewal failures never block a fetch; the pipeline
// proceeds with whatever cookies are on hand.
package cookiejar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/presse/browser"
	"github.com/hazyhaar/presse/harvest/internal/store"
)

// DefaultRenewalAge is how old stored cookies may get before a renewal pass.
const DefaultRenewalAge = 7 * 24 * time.Hour

// renewSettle gives sites time to set their session cookies after load.
const renewSettle = 2 * time.Second

// Session is the slice of browser.Session the jar needs for renewal.
type Session interface {
	HTML(ctx context.Context, pageURL string, opts browser.PageOptions) (string, string, error)
	Cookies() ([]*proto.NetworkCookie, error)
	Close()
}

// OpenSession opens a browser session for renewal. Defaults to browser.Open.
type OpenSession func() (Session, error)

// Config configures the Manager.
type Config struct {
	// Secret derives the at-rest encryption key. Empty = plaintext storage.
	Secret string

	// RenewalAge is the staleness threshold. Default: 7 days.
	RenewalAge time.Duration

	// Browser configures renewal sessions. Ignored when OpenSession is set.
	Browser browser.Config

	// OpenSession overrides how renewal sessions are opened (tests).
	OpenSession OpenSession

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RenewalAge <= 0 {
		c.RenewalAge = DefaultRenewalAge
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OpenSession == nil {
		bcfg := c.Browser
		c.OpenSession = func() (Session, error) { return browser.Open(bcfg) }
	}
}

// Manager stores and renews per-domain cookies.
type Manager struct {
	store  *store.Store
	box    *box
	cfg    Config
	logger *slog.Logger
}

// New creates a Manager.
func New(st *store.Store, cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{store: st, box: newBox(cfg.Secret), cfg: cfg, logger: cfg.Logger}
	if !m.box.enabled() {
		m.logger.Warn("cookie encryption disabled: no secret configured")
	}
	return m
}

// Has reports whether any cookies are stored for the domain.
func (m *Manager) Has(ctx context.Context, domain string) bool {
	cookies, err := m.store.CookiesForDomain(ctx, normalizeDomain(domain))
	if err != nil {
		m.logger.Warn("cookie lookup failed", "domain", domain, "error", err)
		return false
	}
	return len(cookies) > 0
}

// CookiesFor returns the decrypted cookies for a domain as http.Cookie
// values ready for a request header. Expired cookies are skipped.
func (m *Manager) CookiesFor(ctx context.Context, domain string) ([]*http.Cookie, error) {
	stored, err := m.store.CookiesForDomain(ctx, normalizeDomain(domain))
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	var out []*http.Cookie
	for _, c := range stored {
		if !c.Session && c.ExpiresAt > 0 && c.ExpiresAt < now {
			continue
		}
		value, err := m.box.open(c.Value)
		if err != nil {
			m.logger.Warn("cookie decrypt failed, skipping", "domain", domain, "name", c.Name, "error", err)
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

// RenewalStatus lists which cookies triggered a renewal decision.
type RenewalStatus struct {
	NeedsRenewal bool
	Expired      []string
	ExpiringSoon []string
}

// NeedsRenewal flags any cookie already expired, expiring within the
// renewal age, or scoped to the browser session.
func (m *Manager) NeedsRenewal(ctx context.Context, domain string) RenewalStatus {
	var st RenewalStatus
	cookies, err := m.store.CookiesForDomain(ctx, normalizeDomain(domain))
	if err != nil {
		m.logger.Warn("cookie staleness check failed", "domain", domain, "error", err)
		return st
	}
	now := time.Now()
	horizon := now.Add(m.cfg.RenewalAge)
	for _, c := range cookies {
		switch {
		case c.Session:
			st.ExpiringSoon = append(st.ExpiringSoon, c.Name)
		case c.ExpiresAt > 0 && time.UnixMilli(c.ExpiresAt).Before(now):
			st.Expired = append(st.Expired, c.Name)
		case c.ExpiresAt > 0 && time.UnixMilli(c.ExpiresAt).Before(horizon):
			st.ExpiringSoon = append(st.ExpiringSoon, c.Name)
		}
	}
	st.NeedsRenewal = len(st.Expired) > 0 || len(st.ExpiringSoon) > 0
	return st
}

// Renew opens a browser session on the domain's front page, lets the site
// re-establish its session, and stores the resulting cookies.
func (m *Manager) Renew(ctx context.Context, domain string) error {
	domain = normalizeDomain(domain)
	sess, err := m.cfg.OpenSession()
	if err != nil {
		return fmt.Errorf("cookie renew %s: %w", domain, err)
	}
	defer sess.Close()

	existing, err := m.paramsFor(ctx, domain)
	if err != nil {
		m.logger.Warn("cookie renew: existing cookies unreadable", "domain", domain, "error", err)
	}

	front := (&url.URL{Scheme: "https", Host: domain}).String()
	if _, _, err := sess.HTML(ctx, front, browser.PageOptions{Settle: renewSettle, Cookies: existing}); err != nil {
		return fmt.Errorf("cookie renew %s: visit: %w", domain, err)
	}

	raw, err := sess.Cookies()
	if err != nil {
		return fmt.Errorf("cookie renew %s: collect: %w", domain, err)
	}

	var fresh []store.Cookie
	for _, c := range raw {
		if !domainMatches(c.Domain, domain) {
			continue
		}
		sealed, err := m.box.seal(c.Value)
		if err != nil {
			return fmt.Errorf("cookie renew %s: %w", domain, err)
		}
		sc := store.Cookie{
			Domain:   domain,
			Name:     c.Name,
			Value:    sealed,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if c.Expires <= 0 {
			sc.Session = true
		} else {
			sc.ExpiresAt = int64(float64(c.Expires) * 1000)
		}
		fresh = append(fresh, sc)
	}
	if len(fresh) == 0 {
		return fmt.Errorf("cookie renew %s: site set no cookies", domain)
	}
	if err := m.store.ReplaceCookies(ctx, domain, fresh); err != nil {
		return fmt.Errorf("cookie renew %s: %w", domain, err)
	}
	m.logger.Info("cookies renewed", "domain", domain, "count", len(fresh))
	return nil
}

// CheckAndRenew renews stale cookies best-effort. A domain with no stored
// cookies is a no-op: there is nothing to renew. It always returns, so the
// cookies fetch strategy can proceed with whatever is stored.
func (m *Manager) CheckAndRenew(ctx context.Context, domain string) {
	if !m.Has(ctx, domain) {
		return
	}
	st := m.NeedsRenewal(ctx, domain)
	if !st.NeedsRenewal {
		return
	}
	m.logger.Info("cookies stale, renewing", "domain", domain,
		"expired", st.Expired, "expiring_soon", st.ExpiringSoon)
	if err := m.Renew(ctx, domain); err != nil {
		m.logger.Warn("cookie renewal failed, continuing with stored cookies", "domain", domain, "error", err)
	}
}

// paramsFor converts stored cookies into browser cookie params for replay.
func (m *Manager) paramsFor(ctx context.Context, domain string) ([]*proto.NetworkCookieParam, error) {
	stored, err := m.store.CookiesForDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	var out []*proto.NetworkCookieParam
	for _, c := range stored {
		value, err := m.box.open(c.Value)
		if err != nil {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if !c.Session && c.ExpiresAt > 0 {
			p.Expires = proto.TimeSinceEpoch(float64(c.ExpiresAt) / 1000)
		}
		out = append(out, p)
	}
	return out, nil
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}

// domainMatches reports whether a browser cookie domain (possibly with a
// leading dot or www prefix) belongs to the managed domain.
func domainMatches(cookieDomain, domain string) bool {
	cd := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	cd = strings.TrimPrefix(cd, "www.")
	return cd == domain || strings.HasSuffix(cd, "."+domain)
}
