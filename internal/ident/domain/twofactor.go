package domain

import "time"

// TwoFactorChallenge is a pending second-factor gate created when an OAuth
// callback resolves to an account with 2FA enabled. The challenge token is
// returned instead of full session credentials; it survives wrong codes (up
// to MaxAttempts, enforced by the orchestrator) and dies on success or
// expiry.
type TwoFactorChallenge struct {
	ID          string // the challenge token (ULID reference, not a secret)
	AccountID   string
	Provider    Provider
	CallbackURL string

	// Identity preserves the provider exchange result so the final
	// credentials can embed the provider token after the second factor
	// clears.
	Identity ProviderIdentity

	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c TwoFactorChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
