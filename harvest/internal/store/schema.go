package store

import "database/sql"

// Schema is the complete harvest schema.
const Schema = `
-- Processed URLs: one row per article URL, keyed by normalized URL
CREATE TABLE IF NOT EXISTS urls (
    id              TEXT PRIMARY KEY,
    url             TEXT NOT NULL UNIQUE,
    domain          TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    title           TEXT NOT NULL DEFAULT '',
    article_text    TEXT NOT NULL DEFAULT '',
    word_count      INTEGER NOT NULL DEFAULT 0,
    fetch_method    TEXT NOT NULL DEFAULT '',
    extract_method  TEXT NOT NULL DEFAULT '',
    paywalled       INTEGER NOT NULL DEFAULT 0,
    archive_url     TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_urls_domain ON urls(domain);
CREATE INDEX IF NOT EXISTS idx_urls_status ON urls(status, updated_at DESC);

-- Selector cache: learned content selectors keyed by domain pattern
CREATE TABLE IF NOT EXISTS selector_cache (
    pattern           TEXT PRIMARY KEY,
    content_selector  TEXT NOT NULL,
    selector_type     TEXT NOT NULL DEFAULT 'xpath',
    confidence        INTEGER NOT NULL DEFAULT 0,
    success_count     INTEGER NOT NULL DEFAULT 0,
    failure_count     INTEGER NOT NULL DEFAULT 0,
    last_success_at   INTEGER,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

-- Domain cookies: values encrypted at rest
CREATE TABLE IF NOT EXISTS cookies (
    domain      TEXT NOT NULL,
    name        TEXT NOT NULL,
    value       TEXT NOT NULL,
    path        TEXT NOT NULL DEFAULT '/',
    expires_at  INTEGER NOT NULL DEFAULT 0,
    secure      INTEGER NOT NULL DEFAULT 0,
    http_only   INTEGER NOT NULL DEFAULT 0,
    same_site   TEXT NOT NULL DEFAULT '',
    session     INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (domain, name, path)
);
CREATE INDEX IF NOT EXISTS idx_cookies_domain ON cookies(domain);

-- Attempt ledger: one row per fetch/extract/validate attempt
CREATE TABLE IF NOT EXISTS attempt_log (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    stage       TEXT NOT NULL,
    method      TEXT NOT NULL,
    ok          INTEGER NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_url ON attempt_log(url, created_at DESC);
`

// ApplySchema creates all harvest tables and indexes.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
