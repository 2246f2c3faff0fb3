package store

import (
	"context"
	"fmt"
	"time"
)

// Cookie is one stored cookie. Value is already encrypted by the caller.
type Cookie struct {
	Domain    string
	Name      string
	Value     string
	Path      string
	ExpiresAt int64
	Secure    bool
	HTTPOnly  bool
	SameSite  string
	Session   bool
	UpdatedAt int64
}

// CookiesForDomain returns all cookies stored for a domain.
func (s *Store) CookiesForDomain(ctx context.Context, domain string) ([]Cookie, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain, name, value, path, expires_at, secure, http_only, same_site, session, updated_at
		FROM cookies WHERE domain = ?`, domain)
	if err != nil {
		return nil, fmt.Errorf("cookies for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		var c Cookie
		var secure, httpOnly, session int
		if err := rows.Scan(&c.Domain, &c.Name, &c.Value, &c.Path,
			&c.ExpiresAt, &secure, &httpOnly, &c.SameSite, &session, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Secure = secure != 0
		c.HTTPOnly = httpOnly != 0
		c.Session = session != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceCookies atomically swaps the full cookie set for a domain. An empty
// new set clears the domain.
func (s *Store) ReplaceCookies(ctx context.Context, domain string, cookies []Cookie) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace cookies %s: begin: %w", domain, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("replace cookies %s: clear: %w", domain, err)
	}

	now := time.Now().UnixMilli()
	for _, c := range cookies {
		secure, httpOnly, session := 0, 0, 0
		if c.Secure {
			secure = 1
		}
		if c.HTTPOnly {
			httpOnly = 1
		}
		if c.Session {
			session = 1
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cookies (domain, name, value, path, expires_at, secure, http_only, same_site, session, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(domain, name, path) DO UPDATE SET
			    value = excluded.value,
			    expires_at = excluded.expires_at,
			    secure = excluded.secure,
			    http_only = excluded.http_only,
			    same_site = excluded.same_site,
			    session = excluded.session,
			    updated_at = excluded.updated_at`,
			domain, c.Name, c.Value, path, c.ExpiresAt, secure, httpOnly, c.SameSite, session, now); err != nil {
			return fmt.Errorf("replace cookies %s: insert %s: %w", domain, c.Name, err)
		}
	}
	return tx.Commit()
}
