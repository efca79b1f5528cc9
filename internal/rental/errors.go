package rental

import "errors"

var (
	// ErrNotOwner indicates an owner-only operation was called by someone else.
	ErrNotOwner = errors.New("rental: caller is not the owner")

	// ErrNotRenter indicates cancel was called by someone other than the stored renter.
	ErrNotRenter = errors.New("rental: caller is not the renter")

	// ErrNotAuthorizedRenter indicates open or close was called by someone other
	// than the current renter, or after the rental expired.
	ErrNotAuthorizedRenter = errors.New("rental: only the active renter can operate the lock")

	// ErrAlreadyRented indicates a rental is active and has not expired.
	ErrAlreadyRented = errors.New("rental: already rented")

	// ErrRentActive indicates the price cannot change while the lock is not for rent.
	ErrRentActive = errors.New("rental: rent is active")

	// ErrInvalidDuration indicates a rental duration outside the policy bounds.
	ErrInvalidDuration = errors.New("rental: invalid duration")

	// ErrInsufficientPayment indicates the payment does not cover price times duration.
	ErrInsufficientPayment = errors.New("rental: insufficient payment")

	// ErrInvalidPrice indicates a negative price.
	ErrInvalidPrice = errors.New("rental: invalid price")

	// ErrInvalidAddress indicates the zero address where a real one is required.
	ErrInvalidAddress = errors.New("rental: invalid address")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotOwner, "NotOwner"},
	{ErrNotRenter, "NotRenter"},
	{ErrNotAuthorizedRenter, "NotAuthorizedRenter"},
	{ErrAlreadyRented, "AlreadyRented"},
	{ErrRentActive, "RentActive"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrInsufficientPayment, "InsufficientPayment"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidAddress, "InvalidAddress"},
}

// Code returns the categorical name of a rental error, or "" if err is not one.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
