package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// NewTestDB creates a fresh in-memory SQLite database with the schema applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return newTestDB(t, ":memory:")
}

// NewTestFileDB creates a schema-initialized database file in a temporary
// directory, for tests that need a second connection to the same data.
func NewTestFileDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "najem.sqlite3")
	return newTestDB(t, path), path
}

func newTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
