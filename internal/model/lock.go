package model

import "time"

// Lock is the single persistent record of the rentable asset.
//
// ForRent is true exactly when Renter is the zero address. Deadline and
// RentalID are only meaningful while a renter is set.
type Lock struct {
	Owner     Address   `json:"owner"`
	ForRent   bool      `json:"for_rent"`
	Renter    Address   `json:"rent_by"`
	Deadline  time.Time `json:"deadline"`
	Price     int64     `json:"price"`
	Locked    bool      `json:"locked"`
	RentalID  string    `json:"rental_id,omitempty"`
	ImageMime string    `json:"image_mime,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLock returns the record as it exists right after deployment.
func NewLock(owner Address) *Lock {
	return &Lock{
		Owner:   owner.OrZero(),
		ForRent: true,
		Renter:  ZeroAddress,
	}
}
