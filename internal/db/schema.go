package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// lock_state holds exactly one row. Its CHECK constraints mirror the rental
// invariants: for_rent is set exactly when there is no renter, and the lock
// can only be closed while someone rents it.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    address       TEXT NOT NULL UNIQUE,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lock_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    owner      TEXT NOT NULL,
    for_rent   INTEGER NOT NULL,
    renter     TEXT NOT NULL,
    deadline   DATETIME,
    price      INTEGER NOT NULL DEFAULT 0 CHECK (price >= 0),
    locked     INTEGER NOT NULL DEFAULT 0,
    rental_id  TEXT,
    image      BLOB,
    image_mime TEXT,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((for_rent = 1 AND renter = '0x0000000000000000000000000000000000000000')
        OR (for_rent = 0 AND renter <> '0x0000000000000000000000000000000000000000')),
    CHECK (locked = 0 OR for_rent = 0)
);

CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('rent', 'set_renter', 'cancel', 'reclaim', 'open', 'close',
                   'price', 'ownership_transferred', 'ownership_renounced', 'expired')),
    actor      TEXT NOT NULL,
    owner      TEXT NOT NULL,
    renter     TEXT NOT NULL,
    for_rent   INTEGER NOT NULL,
    locked     INTEGER NOT NULL,
    price      INTEGER NOT NULL,
    payment    INTEGER NOT NULL DEFAULT 0,
    deadline   DATETIME,
    rental_id  TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_rental ON events(rental_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return migrate(db)
}
