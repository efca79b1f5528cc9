package rental

import (
	"time"

	"github.com/erazemk/najem/internal/model"
)

// Status is a read-only snapshot of the lock at one instant.
type Status struct {
	Owner    model.Address `json:"owner"`
	ForRent  bool          `json:"for_rent"`
	RentBy   model.Address `json:"rent_by"`
	Locked   bool          `json:"locked"`
	Price    int64         `json:"price"`
	Deadline *time.Time    `json:"deadline,omitempty"`
	TimeLeft int64         `json:"time_left"`
	Expired  bool          `json:"expired"`
	RentalID string        `json:"rental_id,omitempty"`
}

// Snapshot reports the state of lock as of now.
func Snapshot(lock *model.Lock, now time.Time) Status {
	m := &Machine{lock: lock}
	s := Status{
		Owner:    m.Owner(),
		ForRent:  m.ForRent(),
		RentBy:   m.RentBy(),
		Locked:   m.Locked(),
		Price:    m.Price(),
		TimeLeft: Seconds(m.TimeLeft(now)),
		Expired:  m.Expired(now),
		RentalID: lock.RentalID,
	}
	if !lock.Renter.IsZero() {
		d := lock.Deadline
		s.Deadline = &d
	}
	return s
}

// Seconds truncates d to whole seconds.
func Seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// DurationOf converts a whole number of seconds to a Duration, saturating
// instead of overflowing so oversized requests still fail the bounds check.
func DurationOf(seconds int64) time.Duration {
	const maxSeconds = int64(1<<63-1) / int64(time.Second)
	switch {
	case seconds > maxSeconds:
		return time.Duration(1<<63 - 1)
	case seconds < -maxSeconds:
		return time.Duration(-1 << 63)
	}
	return time.Duration(seconds) * time.Second
}
