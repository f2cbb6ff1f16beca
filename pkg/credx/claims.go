// Package credx issues and verifies the signed credentials that assert
// account identity. Credentials are self-contained EdDSA-signed JWTs carrying
// the account id, the account type, a refresh flag and, for OAuth accounts,
// the upstream provider's access token.
package credx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default credential TTLs. Access credentials stay short; refresh credentials
// are long-lived by policy and never share the access TTL.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// AccountType distinguishes locally registered accounts from
// provider-federated ones.
type AccountType string

const (
	AccountLocal AccountType = "local"
	AccountOAuth AccountType = "oauth"
)

// Claims are the credential claims. Additive changes only, so older
// credentials keep verifying across deploys.
type Claims struct {
	jwt.RegisteredClaims

	// AccountType records how the subject authenticates ("local"|"oauth").
	AccountType AccountType `json:"act,omitempty"`

	// Refresh marks refresh credentials; access credentials omit it.
	Refresh bool `json:"rft,omitempty"`

	// ProviderToken is the upstream provider's access token, embedded for
	// OAuth accounts that need to call the provider on the user's behalf.
	ProviderToken string `json:"pvt,omitempty"`
}

func newClaims(
	subject string,
	accountType AccountType,
	refresh bool,
	providerToken, issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	rc := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        newJTI(),
	}
	if ttl > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return Claims{
		RegisteredClaims: rc,
		AccountType:      accountType,
		Refresh:          refresh,
		ProviderToken:    providerToken,
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
