// Package rental implements the rental lock state machine.
//
// A Machine wraps the one persistent lock record. Each operation takes the
// caller's address and a single reading of the current time, checks every
// guard before touching the record, and returns the event describing the
// transition. A failed operation leaves the record unchanged.
package rental

import (
	"math"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najem/internal/model"
)

// Machine applies rental operations to a lock record it does not own the
// storage of. It is not safe for concurrent use; callers serialize access.
type Machine struct {
	lock   *model.Lock
	policy Policy
}

// New returns a machine operating on lock under the given policy.
func New(lock *model.Lock, policy Policy) *Machine {
	return &Machine{lock: lock, policy: policy}
}

// Lock returns the record the machine operates on.
func (m *Machine) Lock() *model.Lock {
	return m.lock
}

// Rent makes caller the renter for d, provided the lock is available or the
// previous rental has expired and payment covers the price.
func (m *Machine) Rent(caller model.Address, d time.Duration, payment int64, now time.Time) (*model.Event, error) {
	if caller.IsZero() {
		return nil, ErrInvalidAddress
	}
	if !m.available(now) {
		return nil, ErrAlreadyRented
	}
	if !m.policy.Allows(d) {
		return nil, ErrInvalidDuration
	}
	if !covers(payment, m.lock.Price, d) {
		return nil, ErrInsufficientPayment
	}

	m.start(caller, d, now)
	ev := m.event(model.EventRent, caller, now)
	ev.Payment = payment
	return ev, nil
}

// SetRenter is the owner's override of Rent: it assigns renter for d without
// payment. The availability and duration rules are the same as for Rent.
func (m *Machine) SetRenter(caller, renter model.Address, d time.Duration, now time.Time) (*model.Event, error) {
	if err := m.RequireOwner(caller); err != nil {
		return nil, err
	}
	if renter.IsZero() {
		return nil, ErrInvalidAddress
	}
	if !m.available(now) {
		return nil, ErrAlreadyRented
	}
	if !m.policy.Allows(d) {
		return nil, ErrInvalidDuration
	}

	m.start(renter, d, now)
	return m.event(model.EventSetRenter, caller, now), nil
}

// Cancel ends the caller's rental early. It is allowed after the deadline
// as long as the caller is still the stored renter.
func (m *Machine) Cancel(caller model.Address, now time.Time) (*model.Event, error) {
	if caller.IsZero() || m.lock.Renter.IsZero() || caller != m.lock.Renter {
		return nil, ErrNotRenter
	}

	ev := m.event(model.EventCancel, caller, now)
	m.release()
	m.fill(ev)
	return ev, nil
}

// Open unlocks the asset.
func (m *Machine) Open(caller model.Address, now time.Time) (*model.Event, error) {
	return m.setLocked(caller, false, model.EventOpen, now)
}

// Close locks the asset.
func (m *Machine) Close(caller model.Address, now time.Time) (*model.Event, error) {
	return m.setLocked(caller, true, model.EventClose, now)
}

func (m *Machine) setLocked(caller model.Address, locked bool, kind string, now time.Time) (*model.Event, error) {
	if !m.activeRenter(caller, now) {
		return nil, ErrNotAuthorizedRenter
	}
	m.lock.Locked = locked
	return m.event(kind, caller, now), nil
}

// SetForRent lets the owner reclaim the lock once the current rental has
// expired. While a rental is active, or when the lock is already for rent,
// it does nothing and returns a nil event.
func (m *Machine) SetForRent(caller model.Address, now time.Time) (*model.Event, error) {
	if err := m.RequireOwner(caller); err != nil {
		return nil, err
	}
	if m.lock.ForRent || !m.Expired(now) {
		return nil, nil
	}

	ev := m.event(model.EventReclaim, caller, now)
	m.release()
	m.fill(ev)
	return ev, nil
}

// SetPrice changes the per-second price. Only allowed while the lock is for
// rent; an expired rental that nobody released still blocks it.
func (m *Machine) SetPrice(caller model.Address, amount int64, now time.Time) (*model.Event, error) {
	if err := m.RequireOwner(caller); err != nil {
		return nil, err
	}
	if !m.lock.ForRent {
		return nil, ErrRentActive
	}
	if amount < 0 {
		return nil, ErrInvalidPrice
	}

	m.lock.Price = amount
	return m.event(model.EventPrice, caller, now), nil
}

// TransferOwnership hands the administrative rights to newOwner.
func (m *Machine) TransferOwnership(caller, newOwner model.Address, now time.Time) (*model.Event, error) {
	if err := m.RequireOwner(caller); err != nil {
		return nil, err
	}
	if newOwner.IsZero() {
		return nil, ErrInvalidAddress
	}

	m.lock.Owner = newOwner
	return m.event(model.EventOwnershipTransferred, caller, now), nil
}

// RenounceOwnership clears the owner. Owner-only operations are unreachable
// afterwards.
func (m *Machine) RenounceOwnership(caller model.Address, now time.Time) (*model.Event, error) {
	if err := m.RequireOwner(caller); err != nil {
		return nil, err
	}

	m.lock.Owner = model.ZeroAddress
	return m.event(model.EventOwnershipRenounced, caller, now), nil
}

// RequireOwner returns ErrNotOwner unless caller is the current owner.
func (m *Machine) RequireOwner(caller model.Address) error {
	if caller.IsZero() || m.lock.Owner.IsZero() || caller != m.lock.Owner {
		return ErrNotOwner
	}
	return nil
}

// Expired reports whether a renter is set and the deadline has been reached.
func (m *Machine) Expired(now time.Time) bool {
	return !m.lock.Renter.IsZero() && !now.Before(m.lock.Deadline)
}

// TimeLeft returns the remaining rental time, or 0 when nobody rents the
// lock or the deadline has passed.
func (m *Machine) TimeLeft(now time.Time) time.Duration {
	if m.lock.Renter.IsZero() || !now.Before(m.lock.Deadline) {
		return 0
	}
	return m.lock.Deadline.Sub(now)
}

// RentBy returns the stored renter, which may be stale after expiry.
func (m *Machine) RentBy() model.Address { return m.lock.Renter.OrZero() }

// Owner returns the owner, or the zero address after renouncement.
func (m *Machine) Owner() model.Address { return m.lock.Owner.OrZero() }

// ForRent reports whether the lock is available.
func (m *Machine) ForRent() bool { return m.lock.ForRent }

// Locked reports the physical lock state.
func (m *Machine) Locked() bool { return m.lock.Locked }

// Price returns the per-second price.
func (m *Machine) Price() int64 { return m.lock.Price }

func (m *Machine) available(now time.Time) bool {
	return m.lock.ForRent || m.lock.Renter.IsZero() || m.Expired(now)
}

func (m *Machine) activeRenter(caller model.Address, now time.Time) bool {
	return !caller.IsZero() && caller == m.lock.Renter && now.Before(m.lock.Deadline)
}

// start begins a new rental, discarding whatever the previous one left.
func (m *Machine) start(renter model.Address, d time.Duration, now time.Time) {
	m.lock.Renter = renter
	m.lock.Deadline = now.Add(d)
	m.lock.ForRent = false
	m.lock.Locked = false
	m.lock.RentalID = uuid.NewString()
	m.lock.UpdatedAt = now
}

func (m *Machine) release() {
	m.lock.Renter = model.ZeroAddress
	m.lock.Deadline = time.Time{}
	m.lock.ForRent = true
	m.lock.Locked = false
	m.lock.RentalID = ""
}

// event describes the record as it is now. Callers that release the rental
// build the event first so it keeps the rental ID, then refresh it with fill.
func (m *Machine) event(kind string, actor model.Address, now time.Time) *model.Event {
	m.lock.UpdatedAt = now
	ev := &model.Event{
		Kind:      kind,
		Actor:     actor.OrZero(),
		RentalID:  m.lock.RentalID,
		CreatedAt: now,
	}
	m.fill(ev)
	return ev
}

func (m *Machine) fill(ev *model.Event) {
	ev.Owner = m.lock.Owner.OrZero()
	ev.Renter = m.lock.Renter.OrZero()
	ev.ForRent = m.lock.ForRent
	ev.Locked = m.lock.Locked
	ev.Price = m.lock.Price
	ev.Deadline = nil
	if !m.lock.Renter.IsZero() {
		d := m.lock.Deadline
		ev.Deadline = &d
	}
}

// covers reports whether payment pays price for every started second of d.
// A product that overflows int64 cannot be covered.
func covers(payment, price int64, d time.Duration) bool {
	if payment < 0 {
		return false
	}
	if price <= 0 {
		return true
	}
	seconds := int64((d + time.Second - 1) / time.Second)
	hi, lo := bits.Mul64(uint64(price), uint64(seconds))
	if hi != 0 || lo > math.MaxInt64 {
		return false
	}
	return payment >= int64(lo)
}

// ExpiryEvent describes the current rental's expiry, or returns nil if no
// rental has expired. It does not change the record.
func (m *Machine) ExpiryEvent(now time.Time) *model.Event {
	if !m.Expired(now) {
		return nil
	}
	ev := &model.Event{
		Kind:      model.EventExpired,
		Actor:     model.ZeroAddress,
		RentalID:  m.lock.RentalID,
		CreatedAt: now,
	}
	m.fill(ev)
	return ev
}
