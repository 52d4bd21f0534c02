package flows

import "time"

// LockoutKind mirrors the root lockout variant tag.
type LockoutKind uint8

const (
	LockoutActive LockoutKind = iota
	LockoutTemporary
	LockoutPermanent
)

// Lockout is the flow-local lockout variant.
type Lockout struct {
	Kind  LockoutKind
	Until time.Time
}

// LockoutPolicy is the failed-attempt threshold and the lock duration it triggers.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockoutVerdict is the outcome of evaluating a stored lockout at a given instant.
type LockoutVerdict struct {
	// Expired is set when a temporary lockout has lapsed and must be cleared.
	Expired    bool
	Locked     bool
	Permanent  bool
	Until      time.Time
	RetryAfter time.Duration
}

// EvaluateLockout applies lazy expiry: a temporary lock whose end is not after
// now is reported as Expired and not Locked. Permanent locks never expire.
func EvaluateLockout(state Lockout, now time.Time) LockoutVerdict {
	switch state.Kind {
	case LockoutPermanent:
		return LockoutVerdict{Locked: true, Permanent: true}
	case LockoutTemporary:
		if !state.Until.After(now) {
			return LockoutVerdict{Expired: true}
		}
		return LockoutVerdict{
			Locked:     true,
			Until:      state.Until,
			RetryAfter: state.Until.Sub(now),
		}
	default:
		return LockoutVerdict{}
	}
}

// RetryMinutes rounds d up to whole minutes, never below one.
func RetryMinutes(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return max(m, 1)
}

// RemainingAttempts is max(0, threshold - failed).
func RemainingAttempts(threshold, failed int) int {
	return max(threshold-failed, 0)
}

// CrossesThreshold reports whether failed attempts lock the account.
func (p LockoutPolicy) CrossesThreshold(failed int) bool {
	return p.Threshold > 0 && failed >= p.Threshold
}
