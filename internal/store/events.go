package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/rental"
)

// Event listing limits.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 1000
)

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Kind     string
	RentalID string
	AfterID  int64
	Limit    int
}

func insertEvent(ctx context.Context, q querier, ev *model.Event) error {
	result, err := execInsertEvent(ctx, q, "INSERT", ev)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording %s event: %w", ev.Kind, err)
	}
	ev.ID = id
	return nil
}

func execInsertEvent(ctx context.Context, q querier, verb string, ev *model.Event) (sql.Result, error) {
	var deadline any
	if ev.Deadline != nil {
		deadline = *ev.Deadline
	}
	result, err := q.ExecContext(ctx,
		verb+` INTO events (kind, actor, owner, renter, for_rent, locked, price, payment, deadline, rental_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Kind, ev.Actor.String(), ev.Owner.String(), ev.Renter.String(), ev.ForRent, ev.Locked,
		ev.Price, ev.Payment, deadline, nullString(ev.RentalID), ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording %s event: %w", ev.Kind, err)
	}
	return result, nil
}

// ListEvents returns events in the order they happened.
func ListEvents(ctx context.Context, db *sql.DB, f EventFilter) ([]model.Event, error) {
	query := `SELECT id, kind, actor, owner, renter, for_rent, locked, price, payment, deadline, rental_id, created_at
	          FROM events WHERE id > ?`
	args := []any{f.AfterID}

	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.RentalID != "" {
		query += ` AND rental_id = ?`
		args = append(args, f.RentalID)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var actor, owner, renter string
		var deadline sql.NullTime
		var rentalID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Kind, &actor, &owner, &renter, &ev.ForRent, &ev.Locked,
			&ev.Price, &ev.Payment, &deadline, &rentalID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Actor = model.Address(actor)
		ev.Owner = model.Address(owner)
		ev.Renter = model.Address(renter)
		if deadline.Valid {
			d := deadline.Time
			ev.Deadline = &d
		}
		ev.RentalID = rentalID.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordExpiry appends an expired event for the current rental if it has
// expired and none was recorded yet. It returns the new event, or nil.
// The lock record itself is not changed.
func RecordExpiry(ctx context.Context, db *sql.DB, now time.Time) (*model.Event, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	lock, err := getLock(ctx, tx)
	if err != nil {
		return nil, err
	}

	ev := rental.New(lock, rental.Policy{}).ExpiryEvent(now)
	if ev == nil || ev.RentalID == "" {
		return nil, nil
	}

	// The partial unique index on expired events turns a repeat into a no-op.
	result, err := execInsertEvent(ctx, tx, "INSERT OR IGNORE", ev)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("recording expiry: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("recording expiry: %w", err)
	}
	ev.ID = id

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing expiry: %w", err)
	}
	return ev, nil
}
