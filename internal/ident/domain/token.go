package domain

import "time"

// TokenKind scopes an ephemeral token to the flow step it correlates.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenProfileCompletion TokenKind = "profile_completion"
	TokenPasswordReset     TokenKind = "password_reset"
)

// TokenPayload is the typed payload carried by an ephemeral token. Required
// fields depend on the kind; Extra holds optional extension fields so callers
// don't fall back to an open dictionary.
type TokenPayload struct {
	Email         string            `json:"email,omitempty"`
	EmailVerified bool              `json:"email_verified,omitempty"`
	AccountID     string            `json:"account_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// EphemeralToken is a single-use, time-limited correlator. The opaque token
// value is returned to the caller exactly once; the row keeps only its
// SHA-256 fingerprint.
type EphemeralToken struct {
	ID        string
	TokenHash string
	Subject   string // lowercased email
	Kind      TokenKind
	Payload   TokenPayload
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t EphemeralToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
