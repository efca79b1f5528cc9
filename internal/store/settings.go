package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	return getOrCreateSetting(ctx, db, "jwt_secret", func() (string, error) {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf), nil
	})
}

// getOrCreateSetting returns the value stored under key, storing the result
// of generate first if the key is missing. INSERT OR IGNORE followed by a
// read keeps concurrent first starts from disagreeing on the value.
func getOrCreateSetting(ctx context.Context, db *sql.DB, key string, generate func() (string, error)) (string, error) {
	candidate, err := generate()
	if err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var value string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}

	return value, nil
}
