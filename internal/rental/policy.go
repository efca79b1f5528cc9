package rental

import (
	"fmt"
	"time"
)

// Default rental duration bounds.
const (
	DefaultMinDuration = 5 * time.Minute
	DefaultMaxDuration = 24 * time.Hour
)

// Policy bounds the length of a single rental. A zero MinDuration leaves
// only the upper bound; durations must still be positive.
type Policy struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

// DefaultPolicy returns the 5 minute to 24 hour policy.
func DefaultPolicy() Policy {
	return Policy{MinDuration: DefaultMinDuration, MaxDuration: DefaultMaxDuration}
}

// Validate checks that the bounds form a usable range.
func (p Policy) Validate() error {
	if p.MinDuration < 0 {
		return fmt.Errorf("minimum duration must not be negative")
	}
	if p.MaxDuration <= 0 {
		return fmt.Errorf("maximum duration must be positive")
	}
	if p.MinDuration > p.MaxDuration {
		return fmt.Errorf("minimum duration %s exceeds maximum %s", p.MinDuration, p.MaxDuration)
	}
	return nil
}

// Allows reports whether d is an acceptable rental duration.
func (p Policy) Allows(d time.Duration) bool {
	return d > 0 && d >= p.MinDuration && d <= p.MaxDuration
}
