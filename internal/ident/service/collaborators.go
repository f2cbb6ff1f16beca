package service

import (
	"context"
	"errors"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
)

// Collaborator interfaces. Account persistence, outbound email, provider
// token exchange and the cookie transport all live outside this core; the
// engine consumes them through these narrow contracts and tests supply fakes.

// TemplateKind names an outbound email template.
type TemplateKind string

const (
	TemplateEmailVerification TemplateKind = "email_verification"
	TemplatePasswordReset     TemplateKind = "password_reset"
)

// ErrDeliveryFailed wraps any email collaborator failure so callers can
// distinguish "could not send" from flow-state errors.
var ErrDeliveryFailed = errors.New("ident: email delivery failed")

// ErrAccountNotFound is returned by Accounts lookups that miss.
var ErrAccountNotFound = errors.New("ident: account not found")

// EmailSender delivers transactional mail. Failures must propagate; a signup
// step that cannot send its email fails the whole step rather than leaving an
// orphaned token behind.
type EmailSender interface {
	Send(ctx context.Context, to string, template TemplateKind, vars map[string]string) error
}

// Accounts is the external account store. Password hashing is its concern,
// not ours.
type Accounts interface {
	Exists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, profile domain.Profile) (domain.Account, error)
	FindByID(ctx context.Context, id string) (domain.Account, error)
	FindByIdentity(ctx context.Context, identity string) (domain.Account, error)
	FindByProvider(ctx context.Context, provider domain.Provider, subject string) (domain.Account, error)
	CreateFromProvider(ctx context.Context, identity domain.ProviderIdentity) (domain.Account, error)
	VerifyPassword(ctx context.Context, account domain.Account, password string) (bool, error)
	SetPassword(ctx context.Context, accountID, password string) error
}

// ProviderExchange turns a provider authorization code into an identity.
type ProviderExchange interface {
	Exchange(ctx context.Context, provider domain.Provider, code string) (domain.ProviderIdentity, error)
}

// CookieSink is the transport layer that materializes credentials as cookies.
// The engine is agnostic to domain/path rewriting; it only emits name/value
// pairs with a lifetime, and names to clear.
type CookieSink interface {
	Set(name, value string, ttl time.Duration)
	Clear(name string)
}
