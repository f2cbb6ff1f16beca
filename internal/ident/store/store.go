package store

import (
	"context"
	"errors"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface owned by this core. It covers
// exactly the four record kinds the engine persists (ephemeral tokens, OAuth
// states, login attempts, sessions) plus the two-factor challenge table the
// OAuth orchestrator needs. Concrete drivers (sqlite for now) implement it;
// services receive it by handle, never through ambient globals.
type Store interface {
	EphemeralTokens() EphemeralTokens
	OAuthStates() OAuthStates
	LoginAttempts() LoginAttempts
	Sessions() Sessions
	TwoFactorChallenges() TwoFactorChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit() or Rollback().
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error. This is the path every check-and-delete
	// operation (claim, resolve) goes through.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repositories, plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type EphemeralTokens interface {
	// CreateToken inserts a new token row (id is a ULID, hash is the
	// fingerprint of the opaque value).
	CreateToken(ctx context.Context, t domain.EphemeralToken) error

	// GetTokenByHash returns a token by its fingerprint regardless of
	// expiry; the service layer decides how stale rows fail.
	GetTokenByHash(ctx context.Context, hash string) (domain.EphemeralToken, error)

	// GetLatestTokenBySubject returns the newest token for subject+kind.
	GetLatestTokenBySubject(ctx context.Context, subject string, kind domain.TokenKind) (domain.EphemeralToken, error)

	// DeleteToken removes a single row by id.
	DeleteToken(ctx context.Context, id string) error

	// DeleteTokensBySubject removes all rows for a subject; kind narrows
	// the deletion when non-empty.
	DeleteTokensBySubject(ctx context.Context, subject string, kind domain.TokenKind) error

	// DeleteExpiredTokens is housekeeping.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

type OAuthStates interface {
	CreateState(ctx context.Context, s domain.OAuthState) error

	// GetStateByHash returns a state by fingerprint regardless of expiry.
	GetStateByHash(ctx context.Context, hash string) (domain.OAuthState, error)

	// AttachIdentity records the provider exchange result on a live state.
	AttachIdentity(ctx context.Context, hash string, identity domain.ProviderIdentity) error

	DeleteState(ctx context.Context, id string) error
	DeleteExpiredStates(ctx context.Context, now time.Time) error
}

type LoginAttempts interface {
	GetAttempt(ctx context.Context, identity string) (domain.LoginAttemptRecord, error)

	// UpsertAttempt writes the full record for an identity.
	UpsertAttempt(ctx context.Context, r domain.LoginAttemptRecord) error

	DeleteAttempt(ctx context.Context, identity string) error

	// DeleteStaleAttempts drops rows untouched since cutoff (housekeeping).
	DeleteStaleAttempts(ctx context.Context, cutoff time.Time) error
}

type Sessions interface {
	// GetSession returns the session with its accounts ordered by AddedAt.
	GetSession(ctx context.Context, id string) (domain.SessionRecord, error)

	// CreateSession inserts an empty session row.
	CreateSession(ctx context.Context, id string, now time.Time) error

	// SetCurrentAccount updates the active account pointer (empty clears it).
	SetCurrentAccount(ctx context.Context, sessionID, accountID string) error

	// AddAccount inserts or replaces a session-account row.
	AddAccount(ctx context.Context, a domain.SessionAccount) error

	RemoveAccount(ctx context.Context, sessionID, accountID string) error

	// UpdateAccessCredential swaps the stored access credential after refresh.
	UpdateAccessCredential(ctx context.Context, sessionID, accountID, credential string) error

	DeleteSession(ctx context.Context, id string) error
}

type TwoFactorChallenges interface {
	CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error
	GetChallenge(ctx context.Context, id string) (domain.TwoFactorChallenge, error)

	// IncrementChallengeAttempts bumps the failure counter and returns the
	// updated row.
	IncrementChallengeAttempts(ctx context.Context, id string) (domain.TwoFactorChallenge, error)

	DeleteChallenge(ctx context.Context, id string) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}
