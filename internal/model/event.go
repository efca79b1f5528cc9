package model

import "time"

// Event is a state change notification. Every successful transition of
// the lock appends exactly one.
type Event struct {
	ID        int64      `json:"id"`
	Kind      string     `json:"kind"`
	Actor     Address    `json:"actor"`
	Owner     Address    `json:"owner"`
	Renter    Address    `json:"rent_by"`
	ForRent   bool       `json:"for_rent"`
	Locked    bool       `json:"locked"`
	Price     int64      `json:"price"`
	Payment   int64      `json:"payment,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	RentalID  string     `json:"rental_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Event kinds.
const (
	EventRent                 = "rent"
	EventSetRenter            = "set_renter"
	EventCancel               = "cancel"
	EventReclaim              = "reclaim"
	EventOpen                 = "open"
	EventClose                = "close"
	EventPrice                = "price"
	EventOwnershipTransferred = "ownership_transferred"
	EventOwnershipRenounced   = "ownership_renounced"
	EventExpired              = "expired"
)

// ValidEventKind reports whether kind is one of the known event kinds.
func ValidEventKind(kind string) bool {
	switch kind {
	case EventRent, EventSetRenter, EventCancel, EventReclaim, EventOpen, EventClose,
		EventPrice, EventOwnershipTransferred, EventOwnershipRenounced, EventExpired:
		return true
	}
	return false
}
