package auth

import (
	"time"

	"github.com/BradenHooton/farmtrack/internal/models"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 10 * time.Minute
)

// LockoutPolicy decides account lockout from the failed-attempt counter.
// It performs no I/O; callers persist the state it returns.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy returns a policy, substituting defaults for
// non-positive arguments.
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{Threshold: threshold, Duration: duration}
}

// IsLocked reports whether the lock on the user is still in force at now.
// A lock expiring exactly at now is no longer in force.
func (p LockoutPolicy) IsLocked(state models.LockoutState, now time.Time) (bool, time.Time) {
	if state.LockedUntil == nil || !state.LockedUntil.After(now) {
		return false, time.Time{}
	}
	return true, *state.LockedUntil
}

// RegisterFailure returns the state after one more failed verification.
// A lock still in force is returned unchanged. A lock that has already
// expired starts a new count.
func (p LockoutPolicy) RegisterFailure(state models.LockoutState, now time.Time) models.LockoutState {
	if locked, _ := p.IsLocked(state, now); locked {
		return state
	}

	count := state.FailedAttempts
	if state.LockedUntil != nil && !state.LockedUntil.After(now) {
		count = 0
	}
	count++

	next := models.LockoutState{FailedAttempts: count}
	if count >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockedUntil = &until
	}
	return next
}

// Reset is the state after a successful login.
func (p LockoutPolicy) Reset() models.LockoutState {
	return models.LockoutState{}
}
