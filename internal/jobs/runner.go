// Package jobs runs background work on a cron schedule.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// Runner holds the dependencies of scheduled jobs.
type Runner struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunner creates a job runner. A nil now uses time.Now.
func NewRunner(db *sql.DB, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{db: db, now: now}
}

// runWithRecovery keeps a panicking job from taking down the scheduler.
func (r *Runner) runWithRecovery(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("job panicked", "job", name, "panic", p)
		}
	}()

	slog.Debug("starting job", "job", name)
	fn()
	slog.Debug("job completed", "job", name)
}

// WatchExpiry records an expired event for a rental whose deadline passed.
func (r *Runner) WatchExpiry() {
	r.runWithRecovery("WatchExpiry", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := r.checkExpiry(ctx); err != nil {
			slog.Error("failed to check rental expiry", "error", err)
		}
	})
}

// PurgeRevokedTokens drops revocations of tokens that have expired.
func (r *Runner) PurgeRevokedTokens() {
	r.runWithRecovery("PurgeRevokedTokens", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := store.PurgeExpiredRevocations(ctx, r.db, r.now())
		if err != nil {
			slog.Error("failed to purge revoked tokens", "error", err)
			return
		}
		if n > 0 {
			slog.Info("purged revoked tokens", "count", n)
		}
	})
}

func (r *Runner) checkExpiry(ctx context.Context) (*model.Event, error) {
	ev, err := store.RecordExpiry(ctx, r.db, r.now())
	if errors.Is(err, store.ErrLockNotInitialized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev != nil {
		slog.Info("rental expired", "renter", ev.Renter, "rental", ev.RentalID, "deadline", ev.Deadline)
	}
	return ev, nil
}
