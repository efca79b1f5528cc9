// Package relay serves the current renter's address as plain text, for
// devices that only need to know who may open the lock.
package relay

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/najem/internal/store"
)

// Handler answers every request with the bare rentBy address.
func Handler(db *sql.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		lock, err := store.GetLock(r.Context(), db)
		if errors.Is(err, store.ErrLockNotInitialized) {
			http.Error(w, "lock not initialized", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			slog.Error("failed to read lock", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(lock.Renter.String()))
	})
}
