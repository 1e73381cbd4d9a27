package store

import (
	"database/sql"
	"errors"
)

// ErrInUse is returned when a delete would orphan rows that reference the
// target (permission rules or tool scopes pointing at a data source).
var ErrInUse = errors.New("resource is referenced and cannot be deleted")

// Store provides access to the PostgreSQL database for bridge client,
// data source, permission rule and tool CRUD.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
