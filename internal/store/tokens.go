package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Revocation times are stored in UTC at second precision, the precision of
// JWT expiry claims, so they compare correctly as text.
func revocationTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// RevokeToken blocks the token with the given JTI until it expires.
// Revoking the same token twice is not an error.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	if jti == "" {
		return fmt.Errorf("revoking token: empty token id")
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, revocationTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether the token with the given JTI was revoked.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var revoked bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return revoked, nil
}

// PurgeExpiredRevocations forgets revocations of tokens that expired before
// now; token validation rejects those on its own. It returns how many rows
// were removed.
func PurgeExpiredRevocations(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, revocationTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return n, nil
}
