package credx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed reports structurally broken input (empty, wrong segment
	// count). Detected before any signature work.
	ErrMalformed = errors.New("credx: malformed credential")

	// ErrInvalidSig reports a tampered or foreign signature. Callers should
	// force re-authentication.
	ErrInvalidSig = errors.New("credx: invalid signature")

	// ErrExpired reports a structurally valid, correctly signed credential
	// past its expiry. Callers should run the refresh flow.
	ErrExpired = errors.New("credx: credential expired")

	// ErrUnknownKID reports a credential signed by a key this issuer does
	// not hold.
	ErrUnknownKID = errors.New("credx: unknown kid")
)

// Issuer mints and verifies credentials with a single Ed25519 key.
type Issuer struct {
	kid        string
	key        ed25519.PrivateKey
	pub        ed25519.PublicKey
	issuer     string
	refreshTTL time.Duration
}

// NewIssuer builds an Issuer from a raw Ed25519 private key. refreshTTL <= 0
// falls back to DefaultRefreshTTL.
func NewIssuer(issuer, kid string, key ed25519.PrivateKey, refreshTTL time.Duration) (*Issuer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("credx: invalid Ed25519 private key size")
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Issuer{
		kid:        kid,
		key:        key,
		pub:        key.Public().(ed25519.PublicKey),
		issuer:     issuer,
		refreshTTL: refreshTTL,
	}, nil
}

// KID returns the signing key identifier stamped into credential headers.
func (i *Issuer) KID() string { return i.kid }

// IssueAccess mints a short-lived access credential. providerToken may be
// empty for local accounts.
func (i *Issuer) IssueAccess(accountID string, accountType AccountType, ttl time.Duration, providerToken string) (string, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return i.sign(newClaims(accountID, accountType, false, providerToken, i.issuer, ttl, time.Now().UTC()))
}

// IssueRefresh mints a long-lived refresh credential. The TTL is the issuer's
// refresh policy; callers cannot shorten it to the access TTL.
func (i *Issuer) IssueRefresh(accountID string, accountType AccountType, providerToken string) (string, error) {
	return i.sign(newClaims(accountID, accountType, true, providerToken, i.issuer, i.refreshTTL, time.Now().UTC()))
}

func (i *Issuer) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = i.kid
	s, err := t.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("credx: sign credential: %w", err)
	}
	return s, nil
}

// Verify validates the credential string and returns its claims. Failure
// kinds are distinguishable: ErrMalformed for structural garbage, ErrExpired
// for a well-signed but stale credential, ErrInvalidSig for tampering.
func (i *Issuer) Verify(credential string) (Claims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || strings.Count(credential, ".") != 2 {
		return Claims{}, ErrMalformed
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	token, err := parser.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != i.kid {
			return nil, ErrUnknownKID
		}
		return i.pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, ErrUnknownKID):
			return Claims{}, ErrUnknownKID
		default:
			return Claims{}, ErrInvalidSig
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidSig
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return Claims{}, ErrInvalidSig
	}

	return *claims, nil
}

// IsExpired reports whether the credential is valid-but-expired. Any other
// failure (tampered, malformed) returns false; Verify tells them apart.
func (i *Issuer) IsExpired(credential string) bool {
	_, err := i.Verify(credential)
	return errors.Is(err, ErrExpired)
}
