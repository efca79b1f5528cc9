package api

import (
	"database/sql"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/erazemk/najem/internal/rental"
)

// Options tunes the lock endpoints.
type Options struct {
	Policy rental.Policy
	// Now is read once per request. Nil means time.Now.
	Now func() time.Time
	// RateLimit is the per-client request rate for lock operations.
	// Zero disables limiting.
	RateLimit rate.Limit
	Burst     int
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, opts Options) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	lockHandler := &LockHandler{DB: db, Policy: opts.Policy, Now: opts.Now}

	authMW := AuthMiddleware(jwtSecret, db)
	// Credential checks and lock operations draw from separate buckets.
	authLimit := RateLimitMiddleware(opts.RateLimit, opts.Burst)
	limit := RateLimitMiddleware(opts.RateLimit, opts.Burst)
	op := func(h http.HandlerFunc) http.Handler { return limit(authMW(h)) }

	// Public: login and registration.
	mux.Handle("POST /api/auth/login", authLimit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/users", authLimit(http.HandlerFunc(usersHandler.Register)))

	// Authenticated account routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/users/me", authMW(http.HandlerFunc(usersHandler.Me)))

	// Lock views are public.
	mux.HandleFunc("GET /api/lock", lockHandler.Status)
	mux.HandleFunc("GET /api/lock/time-left", lockHandler.TimeLeft)
	mux.HandleFunc("GET /api/lock/rent-by", lockHandler.RentBy)
	mux.HandleFunc("GET /api/lock/events", lockHandler.Events)
	mux.HandleFunc("GET /api/lock/image", lockHandler.GetImage)

	// Renter operations.
	mux.Handle("POST /api/lock/rent", op(lockHandler.Rent))
	mux.Handle("POST /api/lock/cancel", op(lockHandler.Cancel))
	mux.Handle("POST /api/lock/open", op(lockHandler.Open))
	mux.Handle("POST /api/lock/close", op(lockHandler.Close))

	// Owner operations. The machine checks ownership.
	mux.Handle("PUT /api/lock/renter", op(lockHandler.SetRenter))
	mux.Handle("POST /api/lock/reclaim", op(lockHandler.Reclaim))
	mux.Handle("PUT /api/lock/price", op(lockHandler.SetPrice))
	mux.Handle("PUT /api/lock/owner", op(lockHandler.TransferOwnership))
	mux.Handle("DELETE /api/lock/owner", op(lockHandler.RenounceOwnership))
	mux.Handle("PUT /api/lock/image", op(lockHandler.UploadImage))
	mux.Handle("POST /api/lock/accounts", op(usersHandler.CreateForAddress))

	return mux
}
