package domain

import "time"

// LoginAttemptRecord tracks consecutive failures for one login identity.
// Keyed by the identity the caller typed (email or username), not by account
// id, because lockout must apply before the account is even resolved.
type LoginAttemptRecord struct {
	Identity     string
	FailureCount int
	LockedUntil  *time.Time
	UpdatedAt    time.Time
}

// Locked reports whether the identity is inside its lockout window at now.
func (r LoginAttemptRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}
