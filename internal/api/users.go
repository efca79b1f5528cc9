package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/rental"
	"github.com/erazemk/najem/internal/store"
)

// UsersHandler handles account endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

// Register handles POST /api/users. The account gets a freshly generated
// address; choosing one is reserved for the lock owner (CreateForAddress).
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address != "" {
		jsonCodeError(w, http.StatusBadRequest, "addresses are assigned on registration", "InvalidAddress")
		return
	}

	address, err := model.NewAddress()
	if err != nil {
		slog.Error("failed to generate address", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to generate address")
		return
	}

	user, status, msg := h.create(r, req, address)
	if user == nil {
		jsonError(w, status, msg)
		return
	}
	slog.Info("user registered", "user", user.Username, "address", user.Address)
	jsonResponse(w, http.StatusCreated, user)
}

// CreateForAddress handles POST /api/lock/accounts: the lock owner binds a
// new account to a chosen address, e.g. before handing it the lock.
func (h *UsersHandler) CreateForAddress(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lock, err := store.GetLock(r.Context(), h.DB)
	if err != nil {
		lockError(w, err)
		return
	}
	if err := rental.New(lock, rental.Policy{}).RequireOwner(claims.Address); err != nil {
		lockError(w, err)
		return
	}

	address, err := model.ParseAddress(req.Address)
	if err != nil {
		jsonCodeError(w, http.StatusBadRequest, err.Error(), "InvalidAddress")
		return
	}
	if address.IsZero() {
		jsonCodeError(w, http.StatusBadRequest, "the zero address cannot hold an account", "InvalidAddress")
		return
	}

	user, status, msg := h.create(r, req, address)
	if user == nil {
		jsonError(w, status, msg)
		return
	}
	slog.Info("account bound to address", "user", user.Username, "address", user.Address, "by", claims.Username)
	jsonResponse(w, http.StatusCreated, user)
}

// create validates req and stores an account bound to address. On failure
// it returns a nil user with the status and message to report.
func (h *UsersHandler) create(r *http.Request, req registerRequest, address model.Address) (*model.User, int, string) {
	if err := model.ValidateUsername(req.Username); err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}

	ctx := r.Context()
	if existing, err := store.GetUserByUsername(ctx, h.DB, req.Username); err != nil {
		return nil, http.StatusInternalServerError, "internal error"
	} else if existing != nil {
		return nil, http.StatusConflict, "username already exists"
	}
	if existing, err := store.GetUserByAddress(ctx, h.DB, address); err != nil {
		return nil, http.StatusInternalServerError, "internal error"
	} else if existing != nil {
		return nil, http.StatusConflict, "address already registered"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to hash password"
	}

	user, err := store.CreateUser(ctx, h.DB, req.Username, string(hash), address)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		return nil, http.StatusConflict, "account already exists"
	}
	return user, http.StatusCreated, ""
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}
