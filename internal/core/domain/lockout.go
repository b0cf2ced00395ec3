package domain

import "time"

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutCooldown  = 3 * time.Minute
)

// LockoutPolicy is the pure decision logic over an account's failed-attempt
// counter and lockout timestamp. The cooldown is deliberately short: bounded
// brute-force resistance without permanently locking anyone out.
type LockoutPolicy struct {
	Threshold int
	Cooldown  time.Duration
}

// NewLockoutPolicy returns a policy, substituting defaults for non-positive
// threshold or cooldown values.
func NewLockoutPolicy(threshold int, cooldown time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultLockoutCooldown
	}
	return LockoutPolicy{Threshold: threshold, Cooldown: cooldown}
}

// IsLockedOut reports whether the account is still inside its cooldown window.
func (p LockoutPolicy) IsLockedOut(acc *Account, now time.Time) bool {
	return acc.LockoutEndUTC != nil && now.Before(*acc.LockoutEndUTC)
}

// RecordFailure increments the failure counter and, once the counter reaches
// the threshold, starts the cooldown window.
func (p LockoutPolicy) RecordFailure(acc *Account, now time.Time) {
	acc.FailedAccessCount++
	if acc.FailedAccessCount >= p.Threshold {
		end := now.Add(p.Cooldown)
		acc.LockoutEndUTC = &end
	}
}

// RecordSuccess resets the failure counter and clears any lockout window.
// Called on every successful authentication.
func (p LockoutPolicy) RecordSuccess(acc *Account) {
	acc.FailedAccessCount = 0
	acc.LockoutEndUTC = nil
}
