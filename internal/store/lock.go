package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/rental"
)

// ErrLockNotInitialized is returned when the lock record has not been created yet.
var ErrLockNotInitialized = errors.New("lock record not initialized")

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LockOp is a state machine operation run by ApplyLockOp. It returns the
// event to record, or nil when the operation changed nothing.
type LockOp func(m *rental.Machine) (*model.Event, error)

// InitLock creates the lock record owned by owner. It does nothing if the
// record already exists and reports whether it created it.
func InitLock(ctx context.Context, db *sql.DB, owner model.Address) (bool, error) {
	l := model.NewLock(owner)
	result, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lock_state (id, owner, for_rent, renter, price, locked)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		string(l.Owner), l.ForRent, string(l.Renter), l.Price, l.Locked,
	)
	if err != nil {
		return false, fmt.Errorf("creating lock record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("creating lock record: %w", err)
	}
	return n == 1, nil
}

// GetLock returns the lock record.
func GetLock(ctx context.Context, db *sql.DB) (*model.Lock, error) {
	return getLock(ctx, db)
}

func getLock(ctx context.Context, q querier) (*model.Lock, error) {
	l := &model.Lock{}
	var owner, renter string
	var deadline sql.NullTime
	var rentalID, imageMime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT owner, for_rent, renter, deadline, price, locked, rental_id, image_mime, updated_at
		 FROM lock_state WHERE id = 1`,
	).Scan(&owner, &l.ForRent, &renter, &deadline, &l.Price, &l.Locked, &rentalID, &imageMime, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLockNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("getting lock: %w", err)
	}
	l.Owner = model.Address(owner)
	l.Renter = model.Address(renter)
	if deadline.Valid {
		l.Deadline = deadline.Time
	}
	l.RentalID = rentalID.String
	l.ImageMime = imageMime.String
	return l, nil
}

// ApplyLockOp runs op against the lock record inside one transaction. The
// record and the emitted event are written only if op succeeds; otherwise
// nothing is persisted and op's error is returned unwrapped.
func ApplyLockOp(ctx context.Context, db *sql.DB, policy rental.Policy, op LockOp) (*model.Lock, *model.Event, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	lock, err := getLock(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	ev, err := op(rental.New(lock, policy))
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return lock, nil, nil
	}

	if err := saveLock(ctx, tx, lock); err != nil {
		return nil, nil, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing lock update: %w", err)
	}
	return lock, ev, nil
}

func saveLock(ctx context.Context, q querier, l *model.Lock) error {
	updatedAt := l.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := q.ExecContext(ctx,
		`UPDATE lock_state
		 SET owner = ?, for_rent = ?, renter = ?, deadline = ?, price = ?, locked = ?,
		     rental_id = ?, updated_at = ?
		 WHERE id = 1`,
		l.Owner.String(), l.ForRent, l.Renter.String(), nullTime(l.Deadline), l.Price, l.Locked,
		nullString(l.RentalID), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving lock: %w", err)
	}
	return nil
}

// SetLockImage stores the asset photo. Only the current owner may set it;
// the ownership check and the write happen in one statement.
func SetLockImage(ctx context.Context, db *sql.DB, caller model.Address, image []byte, mime string) error {
	if caller.IsZero() {
		return rental.ErrNotOwner
	}
	result, err := db.ExecContext(ctx,
		`UPDATE lock_state SET image = ?, image_mime = ? WHERE id = 1 AND owner = ?`,
		image, mime, string(caller),
	)
	if err != nil {
		return fmt.Errorf("setting lock image: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting lock image: %w", err)
	}
	if n == 0 {
		return rental.ErrNotOwner
	}
	return nil
}

// GetLockImage returns the asset photo and its MIME type, or nil data if none.
func GetLockImage(ctx context.Context, db *sql.DB) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM lock_state WHERE id = 1`,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting lock image: %w", err)
	}
	return image, mime.String, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
