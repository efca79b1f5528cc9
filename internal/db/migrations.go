package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: the expiry watcher records at most one expired event per
	// rental; enforce it so concurrent watchers cannot duplicate it.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_expired_once
	     ON events(rental_id) WHERE kind = 'expired'`,
	// Migration 2: event listings filter by kind and page by id.
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, id)`,
}

func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
