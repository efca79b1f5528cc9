package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/photo"
	"github.com/erazemk/najem/internal/rental"
	"github.com/erazemk/najem/internal/store"
)

// errUnknownAccount rejects handing rights to an address nobody can log in as.
var errUnknownAccount = errors.New("no account holds that address")

// LockHandler exposes the rental lock.
type LockHandler struct {
	DB     *sql.DB
	Policy rental.Policy
	Now    func() time.Time
}

type rentRequest struct {
	DurationSeconds int64 `json:"duration_seconds"`
	Payment         int64 `json:"payment"`
}

type setRenterRequest struct {
	Address         string `json:"address"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type priceRequest struct {
	Amount int64 `json:"amount"`
}

type ownerRequest struct {
	Address string `json:"address"`
}

type opResponse struct {
	Lock  rental.Status `json:"lock"`
	Event *model.Event  `json:"event,omitempty"`
}

func (h *LockHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Status handles GET /api/lock.
func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	lock, err := store.GetLock(r.Context(), h.DB)
	if err != nil {
		lockError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, rental.Snapshot(lock, h.now()))
}

// TimeLeft handles GET /api/lock/time-left.
func (h *LockHandler) TimeLeft(w http.ResponseWriter, r *http.Request) {
	lock, err := store.GetLock(r.Context(), h.DB)
	if err != nil {
		lockError(w, err)
		return
	}
	s := rental.Snapshot(lock, h.now())
	jsonResponse(w, http.StatusOK, map[string]int64{"time_left": s.TimeLeft})
}

// RentBy handles GET /api/lock/rent-by.
func (h *LockHandler) RentBy(w http.ResponseWriter, r *http.Request) {
	lock, err := store.GetLock(r.Context(), h.DB)
	if err != nil {
		lockError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]model.Address{"rent_by": lock.Renter.OrZero()})
}

// Rent handles POST /api/lock/rent.
func (h *LockHandler) Rent(w http.ResponseWriter, r *http.Request) {
	var req rentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := rental.DurationOf(req.DurationSeconds)
	h.apply(w, r, func(m *rental.Machine, caller model.Address, now time.Time) (*model.Event, error) {
		return m.Rent(caller, d, req.Payment, now)
	})
}

// Cancel handles POST /api/lock/cancel.
func (h *LockHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*rental.Machine).Cancel)
}

// Open handles POST /api/lock/open.
func (h *LockHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*rental.Machine).Open)
}

// Close handles POST /api/lock/close.
func (h *LockHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*rental.Machine).Close)
}

// SetRenter handles PUT /api/lock/renter.
func (h *LockHandler) SetRenter(w http.ResponseWriter, r *http.Request) {
	var req setRenterRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	renter, err := model.ParseAddress(req.Address)
	if err != nil {
		jsonCodeError(w, http.StatusBadRequest, err.Error(), rental.Code(rental.ErrInvalidAddress))
		return
	}
	known, err := h.accountExists(r, renter)
	if err != nil {
		lockError(w, err)
		return
	}
	d := rental.DurationOf(req.DurationSeconds)
	h.apply(w, r, func(m *rental.Machine, caller model.Address, now time.Time) (*model.Event, error) {
		if err := m.RequireOwner(caller); err != nil {
			return nil, err
		}
		if !known {
			return nil, errUnknownAccount
		}
		return m.SetRenter(caller, renter, d, now)
	})
}

// Reclaim handles POST /api/lock/reclaim.
func (h *LockHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*rental.Machine).SetForRent)
}

// SetPrice handles PUT /api/lock/price.
func (h *LockHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.apply(w, r, func(m *rental.Machine, caller model.Address, now time.Time) (*model.Event, error) {
		return m.SetPrice(caller, req.Amount, now)
	})
}

// TransferOwnership handles PUT /api/lock/owner.
func (h *LockHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newOwner, err := model.ParseAddress(req.Address)
	if err != nil {
		jsonCodeError(w, http.StatusBadRequest, err.Error(), rental.Code(rental.ErrInvalidAddress))
		return
	}
	known, err := h.accountExists(r, newOwner)
	if err != nil {
		lockError(w, err)
		return
	}
	h.apply(w, r, func(m *rental.Machine, caller model.Address, now time.Time) (*model.Event, error) {
		if err := m.RequireOwner(caller); err != nil {
			return nil, err
		}
		if !known {
			return nil, errUnknownAccount
		}
		return m.TransferOwnership(caller, newOwner, now)
	})
}

// RenounceOwnership handles DELETE /api/lock/owner.
func (h *LockHandler) RenounceOwnership(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*rental.Machine).RenounceOwnership)
}

// Events handles GET /api/lock/events.
func (h *LockHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EventFilter{
		Kind:     q.Get("kind"),
		RentalID: q.Get("rental_id"),
	}

	if f.Kind != "" && !model.ValidEventKind(f.Kind) {
		jsonError(w, http.StatusBadRequest, "unknown event kind")
		return
	}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil || after < 0 {
			jsonError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		f.AfterID = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			jsonError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		f.Limit = limit
	}

	events, err := store.ListEvents(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list events", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// UploadImage handles PUT /api/lock/image.
func (h *LockHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, photo.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(photo.MaxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	p, err := photo.Normalize(file)
	switch {
	case errors.Is(err, photo.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetLockImage(r.Context(), h.DB, claims.Address, p.Data, p.MIME); err != nil {
		lockError(w, err)
		return
	}

	slog.Info("lock image updated", "owner", claims.Address, "width", p.Width, "height", p.Height)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/lock/image.
func (h *LockHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetLockImage(r.Context(), h.DB)
	if err != nil {
		lockError(w, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// accountExists reports whether an account holds address. The zero
// address counts as known so the machine reports it as invalid. Accounts
// are never deleted, so the answer stays valid for the operation.
func (h *LockHandler) accountExists(r *http.Request, address model.Address) (bool, error) {
	if address.IsZero() {
		return true, nil
	}
	user, err := store.GetUserByAddress(r.Context(), h.DB, address)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// apply runs one lock operation as the authenticated caller and reports
// the resulting state.
func (h *LockHandler) apply(w http.ResponseWriter, r *http.Request, op func(m *rental.Machine, caller model.Address, now time.Time) (*model.Event, error)) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	now := h.now()
	lock, ev, err := store.ApplyLockOp(r.Context(), h.DB, h.Policy, func(m *rental.Machine) (*model.Event, error) {
		return op(m, claims.Address, now)
	})
	if err != nil {
		if code := rental.Code(err); code != "" {
			slog.Warn("lock operation rejected", "user", claims.Username, "path", r.URL.Path, "code", code)
		}
		lockError(w, err)
		return
	}

	if ev != nil {
		slog.Info("lock event", "kind", ev.Kind, "actor", ev.Actor, "renter", ev.Renter, "rental", ev.RentalID)
	}
	jsonResponse(w, http.StatusOK, opResponse{Lock: rental.Snapshot(lock, now), Event: ev})
}

// lockError maps rental errors to HTTP statuses.
func lockError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, rental.ErrNotOwner),
		errors.Is(err, rental.ErrNotRenter),
		errors.Is(err, rental.ErrNotAuthorizedRenter):
		status = http.StatusForbidden
	case errors.Is(err, rental.ErrAlreadyRented),
		errors.Is(err, rental.ErrRentActive):
		status = http.StatusConflict
	case errors.Is(err, rental.ErrInvalidDuration),
		errors.Is(err, rental.ErrInvalidPrice),
		errors.Is(err, rental.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, rental.ErrInsufficientPayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, errUnknownAccount):
		jsonCodeError(w, http.StatusBadRequest, err.Error(), "UnknownAccount")
		return
	case errors.Is(err, store.ErrLockNotInitialized):
		jsonError(w, http.StatusServiceUnavailable, "lock not initialized")
		return
	default:
		slog.Error("lock operation failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonCodeError(w, status, err.Error(), rental.Code(err))
}
