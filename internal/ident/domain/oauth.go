package domain

import (
	"net/url"
	"strings"
	"time"
)

// Provider identifies a third-party OAuth provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// AuthType is the intent a state round-trips through the provider redirect.
type AuthType string

const (
	AuthSignUp     AuthType = "signup"
	AuthSignIn     AuthType = "signin"
	AuthPermission AuthType = "permission"
)

// ScopeLevel is the access level requested by a permission-grant flow.
type ScopeLevel string

const (
	ScopeRead  ScopeLevel = "read"
	ScopeWrite ScopeLevel = "write"
)

// ProviderIdentity is what the provider exchange returns for an authorization
// code: who the user is upstream plus the provider's own tokens.
type ProviderIdentity struct {
	Provider     Provider `json:"provider"`
	Subject      string   `json:"subject"` // provider-side user id
	Email        string   `json:"email"`
	Name         string   `json:"name,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
}

// OAuthState is the anti-CSRF correlator for one provider round-trip. The
// state value is single-use and stored by fingerprint, like ephemeral tokens.
// Permission-flavored states additionally carry the granting account and the
// requested scope.
type OAuthState struct {
	ID          string
	StateHash   string
	Provider    Provider
	AuthType    AuthType
	CallbackURL string

	// Permission context; empty unless AuthType == AuthPermission.
	AccountID  string
	Service    string
	ScopeLevel ScopeLevel

	// Identity is attached after the provider exchange, before the caller
	// decides whether to create or link an account.
	Identity *ProviderIdentity

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the state is past its expiry at now.
func (s OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ProviderConfig is the static per-provider endpoint configuration used to
// build the authorization redirect.
type ProviderConfig struct {
	AuthorizeEndpoint string
	ClientID          string
	Scopes            []string
}

// AuthorizeURL builds the provider authorization URL for a state and callback.
func (c ProviderConfig) AuthorizeURL(state, callbackURL string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("state", state)
	if len(c.Scopes) > 0 {
		q.Set("scope", strings.Join(c.Scopes, " "))
	}
	return c.AuthorizeEndpoint + "?" + q.Encode()
}
