package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/najem/internal/model"
)

// CreateUser creates a new account bound to address.
func CreateUser(ctx context.Context, db *sql.DB, username, passwordHash string, address model.Address) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, address) VALUES (?, ?, ?)`,
		username, passwordHash, string(address),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

const userColumns = `id, username, password_hash, address, created_at`

func scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	var address string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &address, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Address = model.Address(address)
	return u, nil
}

// GetUser returns a user by ID, or nil if there is none.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username, or nil if there is none.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// GetUserByAddress returns the account bound to address, or nil if there is none.
func GetUserByAddress(ctx context.Context, db *sql.DB, address model.Address) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE address = ?`, string(address)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by address: %w", err)
	}
	return u, nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}
