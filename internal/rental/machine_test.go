package rental

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/erazemk/najem/internal/model"
)

const (
	owner = model.Address("0x81585790aa977b64e0c452db84fc69eace951d4f")
	addr1 = model.Address("0x1111111111111111111111111111111111111111")
	addr2 = model.Address("0x2222222222222222222222222222222222222222")
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMachine() *Machine {
	return New(model.NewLock(owner), DefaultPolicy())
}

// checkInvariants fails the test if the record is in an unreachable state.
func checkInvariants(t *testing.T, m *Machine) {
	t.Helper()
	l := m.Lock()
	if l.ForRent != l.Renter.IsZero() {
		t.Fatalf("for_rent=%v but renter=%q", l.ForRent, l.Renter)
	}
	if l.Locked && l.Renter.IsZero() {
		t.Fatal("locked without a renter")
	}
}

func TestInitialState(t *testing.T) {
	m := newMachine()
	if m.Owner() != owner {
		t.Errorf("expected owner %s, got %s", owner, m.Owner())
	}
	if !m.ForRent() {
		t.Error("expected for rent")
	}
	if m.RentBy() != model.ZeroAddress {
		t.Errorf("expected zero renter, got %s", m.RentBy())
	}
	if m.Locked() {
		t.Error("expected unlocked")
	}
	if m.TimeLeft(t0) != 0 {
		t.Errorf("expected no time left, got %v", m.TimeLeft(t0))
	}
	checkInvariants(t, m)
}

func TestRent(t *testing.T) {
	m := newMachine()

	ev, err := m.Rent(addr1, time.Hour, 0, t0)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if ev.Kind != model.EventRent || ev.Actor != addr1 || ev.Renter != addr1 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.RentalID == "" {
		t.Error("expected rental id on event")
	}
	if m.ForRent() {
		t.Error("expected not for rent")
	}
	if m.RentBy() != addr1 {
		t.Errorf("expected renter %s, got %s", addr1, m.RentBy())
	}
	if m.Locked() {
		t.Error("expected unlocked after rent")
	}
	if got := m.TimeLeft(t0); got != time.Hour {
		t.Errorf("expected 1h left, got %v", got)
	}
	checkInvariants(t, m)
}

// Rent, let three hours pass, and the renter can no longer operate the lock.
func TestExpiredRenterCannotOperate(t *testing.T) {
	m := newMachine()
	if _, err := m.Rent(addr1, time.Hour, 0, t0); err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if Seconds(m.TimeLeft(t0)) != 3600 {
		t.Fatalf("expected 3600s left, got %d", Seconds(m.TimeLeft(t0)))
	}

	later := t0.Add(3 * time.Hour)
	if m.TimeLeft(later) != 0 {
		t.Errorf("expected 0 left after deadline, got %v", m.TimeLeft(later))
	}
	if _, err := m.Open(addr1, later); !errors.Is(err, ErrNotAuthorizedRenter) {
		t.Errorf("expected ErrNotAuthorizedRenter on open, got %v", err)
	}
	if _, err := m.Close(addr1, later); !errors.Is(err, ErrNotAuthorizedRenter) {
		t.Errorf("expected ErrNotAuthorizedRenter on close, got %v", err)
	}
	// The stale renter is still reported until someone releases it.
	if m.RentBy() != addr1 {
		t.Errorf("expected stale renter %s, got %s", addr1, m.RentBy())
	}
}

func TestPricedRentRejectsSecondRenter(t *testing.T) {
	m := newMachine()
	if _, err := m.SetPrice(owner, 100, t0); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	if _, err := m.Rent(addr1, time.Hour, 360000, t0); err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if _, err := m.Rent(addr2, time.Hour, 360000, t0.Add(time.Minute)); !errors.Is(err, ErrAlreadyRented) {
		t.Errorf("expected ErrAlreadyRented, got %v", err)
	}
	if m.RentBy() != addr1 {
		t.Errorf("renter changed to %s", m.RentBy())
	}
}

func TestRentDurationBounds(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		payment int64
		wantErr error
	}{
		{"25 hours", 25 * time.Hour, 0, ErrInvalidDuration},
		{"25 hours overpaid", 25 * time.Hour, math.MaxInt64, ErrInvalidDuration},
		{"zero", 0, 0, ErrInvalidDuration},
		{"negative", -time.Hour, 0, ErrInvalidDuration},
		{"below minimum", 4 * time.Minute, 0, ErrInvalidDuration},
		{"minimum", 5 * time.Minute, 0, nil},
		{"maximum", 24 * time.Hour, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			_, err := m.Rent(addr1, tt.d, tt.payment, t0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Rent(%v) error = %v, want %v", tt.d, err, tt.wantErr)
			}
			checkInvariants(t, m)
		})
	}
}

func TestUpperBoundOnlyPolicy(t *testing.T) {
	m := New(model.NewLock(owner), Policy{MaxDuration: 24 * time.Hour})
	if _, err := m.Rent(addr1, time.Second, 0, t0); err != nil {
		t.Fatalf("expected one second rental to be allowed, got %v", err)
	}
}

func TestRentPayment(t *testing.T) {
	tests := []struct {
		name    string
		price   int64
		d       time.Duration
		payment int64
		wantErr error
	}{
		{"exact", 100, time.Hour, 360000, nil},
		{"overpaid", 100, time.Hour, 400000, nil},
		{"underpaid", 100, time.Hour, 359999, ErrInsufficientPayment},
		{"free", 0, time.Hour, 0, nil},
		{"negative payment", 0, time.Hour, -1, ErrInsufficientPayment},
		{"overflowing price", math.MaxInt64, 24 * time.Hour, math.MaxInt64, ErrInsufficientPayment},
		{"partial second rounds up", 10, 5*time.Minute + 500*time.Millisecond, 3000, ErrInsufficientPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := model.NewLock(owner)
			lock.Price = tt.price
			m := New(lock, DefaultPolicy())
			_, err := m.Rent(addr1, tt.d, tt.payment, t0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Rent error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRentCheckOrder(t *testing.T) {
	lock := model.NewLock(owner)
	lock.Price = 100
	m := New(lock, DefaultPolicy())
	if _, err := m.Rent(addr1, time.Hour, 360000, t0); err != nil {
		t.Fatalf("Rent: %v", err)
	}

	// Already rented wins over a bad duration and a bad payment.
	if _, err := m.Rent(addr2, 25*time.Hour, 0, t0); !errors.Is(err, ErrAlreadyRented) {
		t.Errorf("expected ErrAlreadyRented, got %v", err)
	}
}

func TestFailedOperationLeavesStateUntouched(t *testing.T) {
	m := newMachine()
	if _, err := m.Rent(addr1, time.Hour, 0, t0); err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if _, err := m.Close(addr1, t0); err != nil {
		t.Fatalf("Close: %v", err)
	}
	before := *m.Lock()

	now := t0.Add(time.Minute)
	ops := []func() error{
		func() error { _, err := m.Rent(addr2, time.Hour, 0, now); return err },
		func() error { _, err := m.Cancel(addr2, now); return err },
		func() error { _, err := m.Open(addr2, now); return err },
		func() error { _, err := m.SetRenter(addr1, addr2, time.Hour, now); return err },
		func() error { _, err := m.SetRenter(owner, addr2, time.Hour, now); return err },
		func() error { _, err := m.SetPrice(owner, 5, now); return err },
		func() error { _, err := m.SetPrice(addr1, 5, now); return err },
		func() error { _, err := m.TransferOwnership(addr1, addr2, now); return err },
		func() error { _, err := m.TransferOwnership(owner, model.ZeroAddress, now); return err },
		func() error { _, err := m.RenounceOwnership(addr2, now); return err },
	}
	for i, op := range ops {
		if err := op(); err == nil {
			t.Errorf("op %d: expected error", i)
		}
		if *m.Lock() != before {
			t.Fatalf("op %d mutated state: %+v", i, *m.Lock())
		}
	}
}

func TestOpenClose(t *testing.T) {
	m := newMachine()
	if _, err := m.SetRenter(owner, addr1, time.Hour, t0); err != nil {
		t.Fatalf("SetRenter: %v", err)
	}

	// Only the renter may operate the lock.
	if _, err := m.Open(owner, t0); !errors.Is(err, ErrNotAuthorizedRenter) {
		t.Errorf("expected ErrNotAuthorizedRenter for owner, got %v", err)
	}
	if _, err := m.Close(owner, t0); !errors.Is(err, ErrNotAuthorizedRenter) {
		t.Errorf("expected ErrNotAuthorizedRenter for owner, got %v", err)
	}

	ev, err := m.Close(addr1, t0)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ev.Kind != model.EventClose || ev.Actor != addr1 {
		t.Errorf("expected close event from %s, got %+v", addr1, ev)
	}
	if !m.Locked() {
		t.Error("expected locked after close")
	}

	ev, err = m.Open(addr1, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ev.Kind != model.EventOpen || ev.Actor != addr1 {
		t.Errorf("expected open event from %s, got %+v", addr1, ev)
	}
	if m.Locked() {
		t.Error("expected unlocked after open")
	}
	checkInvariants(t, m)
}

func TestOpenAtDeadlineRejected(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)

	if _, err := m.Close(addr1, t0.Add(time.Hour-time.Nanosecond)); err != nil {
		t.Errorf("expected close just before deadline to succeed, got %v", err)
	}
	if _, err := m.Open(addr1, t0.Add(time.Hour)); !errors.Is(err, ErrNotAuthorizedRenter) {
		t.Errorf("expected ErrNotAuthorizedRenter at deadline, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)
	m.Close(addr1, t0)

	if _, err := m.Cancel(addr2, t0); !errors.Is(err, ErrNotRenter) {
		t.Errorf("expected ErrNotRenter, got %v", err)
	}

	ev, err := m.Cancel(addr1, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ev.Kind != model.EventCancel || ev.RentalID == "" {
		t.Errorf("unexpected cancel event: %+v", ev)
	}
	if !ev.ForRent || ev.Renter != model.ZeroAddress || ev.Locked {
		t.Errorf("expected event to describe the released lock, got %+v", ev)
	}
	if !m.ForRent() || m.RentBy() != model.ZeroAddress || m.Locked() {
		t.Errorf("expected released lock, got %+v", *m.Lock())
	}
	checkInvariants(t, m)

	// Nobody rents it now, so nobody can cancel.
	if _, err := m.Cancel(addr1, t0); !errors.Is(err, ErrNotRenter) {
		t.Errorf("expected ErrNotRenter on available lock, got %v", err)
	}
	if _, err := m.Cancel(model.ZeroAddress, t0); !errors.Is(err, ErrNotRenter) {
		t.Errorf("expected ErrNotRenter for zero caller, got %v", err)
	}
}

func TestCancelAfterDeadline(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)

	if _, err := m.Cancel(addr1, t0.Add(3*time.Hour)); err != nil {
		t.Fatalf("expected cancel after deadline to succeed, got %v", err)
	}
	if !m.ForRent() {
		t.Error("expected for rent after cancel")
	}
}

func TestTakeoverAfterDeadline(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)
	first := m.Lock().RentalID
	if _, err := m.Close(addr1, t0); err != nil {
		t.Fatalf("Close: %v", err)
	}

	later := t0.Add(3 * time.Hour)
	if _, err := m.Rent(addr2, time.Hour, 0, later); err != nil {
		t.Fatalf("Rent over expired rental: %v", err)
	}
	if m.ForRent() {
		t.Error("expected not for rent")
	}
	if m.RentBy() != addr2 {
		t.Errorf("expected renter %s, got %s", addr2, m.RentBy())
	}
	if m.Locked() {
		t.Error("expected takeover to reset locked")
	}
	if m.Lock().RentalID == first {
		t.Error("expected a new rental id")
	}
	if got := m.TimeLeft(later); got != time.Hour {
		t.Errorf("expected 1h left, got %v", got)
	}
}

func TestSetRenter(t *testing.T) {
	m := newMachine()

	if _, err := m.SetRenter(addr1, addr2, time.Hour, t0); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	ev, err := m.SetRenter(owner, addr1, time.Hour, t0)
	if err != nil {
		t.Fatalf("SetRenter: %v", err)
	}
	if ev.Kind != model.EventSetRenter || ev.Actor != owner || ev.Renter != addr1 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if m.RentBy() != addr1 {
		t.Errorf("expected renter %s, got %s", addr1, m.RentBy())
	}

	if _, err := m.SetRenter(owner, addr2, time.Hour, t0); !errors.Is(err, ErrAlreadyRented) {
		t.Errorf("expected ErrAlreadyRented, got %v", err)
	}

	later := t0.Add(3 * time.Hour)
	if _, err := m.SetRenter(owner, addr2, 25*time.Hour, later); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := m.SetRenter(owner, model.ZeroAddress, time.Hour, later); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := m.SetRenter(owner, addr2, time.Hour, later); err != nil {
		t.Fatalf("SetRenter after deadline: %v", err)
	}
	if m.RentBy() != addr2 {
		t.Errorf("expected renter %s, got %s", addr2, m.RentBy())
	}
	checkInvariants(t, m)
}

func TestSetRenterIgnoresPrice(t *testing.T) {
	lock := model.NewLock(owner)
	lock.Price = 1000
	m := New(lock, DefaultPolicy())

	if _, err := m.SetRenter(owner, addr1, time.Hour, t0); err != nil {
		t.Fatalf("SetRenter: %v", err)
	}
}

func TestSetForRent(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)
	m.Close(addr1, t0)

	for _, caller := range []model.Address{addr1, addr2} {
		if _, err := m.SetForRent(caller, t0); !errors.Is(err, ErrNotOwner) {
			t.Errorf("expected ErrNotOwner for %s, got %v", caller, err)
		}
	}

	// Before the deadline nothing happens.
	ev, err := m.SetForRent(owner, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("SetForRent: %v", err)
	}
	if ev != nil {
		t.Errorf("expected no event while rental is active, got %+v", ev)
	}
	if m.ForRent() || m.RentBy() != addr1 || !m.Locked() {
		t.Errorf("expected active rental untouched, got %+v", *m.Lock())
	}

	later := t0.Add(3 * time.Hour)
	ev, err = m.SetForRent(owner, later)
	if err != nil {
		t.Fatalf("SetForRent: %v", err)
	}
	if ev == nil || ev.Kind != model.EventReclaim {
		t.Fatalf("expected reclaim event, got %+v", ev)
	}
	if !m.ForRent() || m.RentBy() != model.ZeroAddress || m.Locked() {
		t.Errorf("expected released lock, got %+v", *m.Lock())
	}
	checkInvariants(t, m)

	// Calling it again yields the same state and no event.
	after := *m.Lock()
	ev, err = m.SetForRent(owner, later.Add(time.Second))
	if err != nil || ev != nil {
		t.Errorf("expected idempotent no-op, got event %+v err %v", ev, err)
	}
	after.UpdatedAt = m.Lock().UpdatedAt
	if *m.Lock() != after {
		t.Errorf("second SetForRent changed state: %+v", *m.Lock())
	}
}

func TestSetPrice(t *testing.T) {
	m := newMachine()

	if _, err := m.SetPrice(addr1, 100, t0); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if _, err := m.SetPrice(owner, -1, t0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
	ev, err := m.SetPrice(owner, 100, t0)
	if err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if ev.Kind != model.EventPrice || ev.Price != 100 {
		t.Errorf("unexpected price event: %+v", ev)
	}

	m.Rent(addr1, time.Hour, 360000, t0)
	if _, err := m.SetPrice(owner, 1, t0); !errors.Is(err, ErrRentActive) {
		t.Errorf("expected ErrRentActive while rented, got %v", err)
	}
	// Expired but not released still counts as rented.
	if _, err := m.SetPrice(owner, 1, t0.Add(3*time.Hour)); !errors.Is(err, ErrRentActive) {
		t.Errorf("expected ErrRentActive while expired, got %v", err)
	}
	if m.Price() != 100 {
		t.Errorf("expected price 100, got %d", m.Price())
	}
}

func TestOwnership(t *testing.T) {
	m := newMachine()

	if _, err := m.TransferOwnership(addr1, addr2, t0); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	ev, err := m.TransferOwnership(owner, addr1, t0)
	if err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if ev.Kind != model.EventOwnershipTransferred || ev.Owner != addr1 || ev.Actor != owner {
		t.Errorf("unexpected event: %+v", ev)
	}
	if m.Owner() != addr1 {
		t.Errorf("expected owner %s, got %s", addr1, m.Owner())
	}
	if _, err := m.SetPrice(owner, 1, t0); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected previous owner to lose rights, got %v", err)
	}
}

func TestRenounceOwnership(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, time.Hour, 0, t0)

	if _, err := m.RenounceOwnership(owner, t0); err != nil {
		t.Fatalf("RenounceOwnership: %v", err)
	}
	if m.Owner() != model.ZeroAddress {
		t.Errorf("expected zero owner, got %s", m.Owner())
	}

	later := t0.Add(3 * time.Hour)
	for _, caller := range []model.Address{owner, addr1, model.ZeroAddress} {
		if _, err := m.SetRenter(caller, addr2, time.Hour, later); !errors.Is(err, ErrNotOwner) {
			t.Errorf("SetRenter by %s: expected ErrNotOwner, got %v", caller, err)
		}
		if _, err := m.SetPrice(caller, 1, later); !errors.Is(err, ErrNotOwner) {
			t.Errorf("SetPrice by %s: expected ErrNotOwner, got %v", caller, err)
		}
		if _, err := m.SetForRent(caller, later); !errors.Is(err, ErrNotOwner) {
			t.Errorf("SetForRent by %s: expected ErrNotOwner, got %v", caller, err)
		}
		if _, err := m.TransferOwnership(caller, addr2, later); !errors.Is(err, ErrNotOwner) {
			t.Errorf("TransferOwnership by %s: expected ErrNotOwner, got %v", caller, err)
		}
	}

	// Renting still works without an owner.
	if _, err := m.Rent(addr2, time.Hour, 0, later); err != nil {
		t.Errorf("expected rent to work without owner, got %v", err)
	}
}

func TestTimeLeftNonIncreasing(t *testing.T) {
	m := newMachine()
	m.Rent(addr1, 2*time.Hour, 0, t0)

	prev := m.TimeLeft(t0)
	for step := time.Duration(0); step <= 3*time.Hour; step += 7 * time.Minute {
		got := m.TimeLeft(t0.Add(step))
		if got > prev {
			t.Fatalf("time left increased from %v to %v at +%v", prev, got, step)
		}
		if got < 0 {
			t.Fatalf("negative time left %v", got)
		}
		if step >= 2*time.Hour && got != 0 {
			t.Fatalf("expected 0 at or after deadline, got %v at +%v", got, step)
		}
		prev = got
	}
}

// Walk a fixed sequence of mixed operations and check the invariants after
// each one, failed or not.
func TestInvariantsHoldAcrossSequence(t *testing.T) {
	m := newMachine()
	now := t0
	callers := []model.Address{owner, addr1, addr2}

	for i := 0; i < 300; i++ {
		caller := callers[i%len(callers)]
		switch i % 9 {
		case 0:
			m.Rent(caller, time.Duration(i%30+5)*time.Minute, 0, now)
		case 1:
			m.Close(caller, now)
		case 2:
			m.Open(caller, now)
		case 3:
			m.Cancel(caller, now)
		case 4:
			m.SetForRent(caller, now)
		case 5:
			m.SetRenter(caller, callers[(i+1)%len(callers)], 10*time.Minute, now)
		case 6:
			m.Close(caller, now)
		case 7:
			m.SetPrice(caller, int64(i%3), now)
		case 8:
			m.Rent(caller, time.Hour, math.MaxInt64, now)
		}
		checkInvariants(t, m)
		now = now.Add(time.Duration(i%4) * 4 * time.Minute)
	}
}

func TestCode(t *testing.T) {
	if got := Code(ErrAlreadyRented); got != "AlreadyRented" {
		t.Errorf("expected AlreadyRented, got %q", got)
	}
	if got := Code(errors.New("other")); got != "" {
		t.Errorf("expected empty code, got %q", got)
	}
}

func TestExpiryEvent(t *testing.T) {
	m := newMachine()
	if ev := m.ExpiryEvent(t0); ev != nil {
		t.Errorf("expected no expiry on available lock, got %+v", ev)
	}

	m.Rent(addr1, time.Hour, 0, t0)
	if ev := m.ExpiryEvent(t0.Add(59 * time.Minute)); ev != nil {
		t.Errorf("expected no expiry before deadline, got %+v", ev)
	}

	before := *m.Lock()
	ev := m.ExpiryEvent(t0.Add(time.Hour))
	if ev == nil || ev.Kind != model.EventExpired || ev.Renter != addr1 || ev.RentalID != before.RentalID {
		t.Fatalf("unexpected expiry event: %+v", ev)
	}
	if ev.Actor != model.ZeroAddress {
		t.Errorf("expected zero actor, got %s", ev.Actor)
	}
	if *m.Lock() != before {
		t.Error("ExpiryEvent must not change the record")
	}
}
