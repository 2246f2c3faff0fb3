// Package store provides the data access layer for the harvest database:
// processed URLs, the selector cache, domain cookies and the attempt ledger.
package store

import "database/sql"

// Store wraps the harvest database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
