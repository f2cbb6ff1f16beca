package domain

import "time"

// Account is the collaborator-facing view of a stored account. Persistence
// and password hashing live outside this core; the engine only reads the
// fields it needs to authenticate and gate flows.
type Account struct {
	ID               string
	Email            string
	Username         string
	FirstName        string
	LastName         string
	Type             string // "local" | "oauth"
	Provider         Provider
	ProviderSubject  string
	TwoFactorEnabled bool
	TwoFactorSecret  string // TOTP secret, base32
	CreatedAt        time.Time
}

// Profile is the validated input for account creation at the end of signup.
type Profile struct {
	Email           string
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
	AgreedToTerms   bool
}
