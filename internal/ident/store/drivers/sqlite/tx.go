package sqlite

import (
	"context"
	"database/sql"

	"github.com/oxkey/ident/internal/ident/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open

// Ping is a no-op inside a transaction; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if ever needed.
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // applied before any tx starts

func (t *txStore) EphemeralTokens() store.EphemeralTokens { return &ephemeralTokensRepo{q: t.tx} }
func (t *txStore) OAuthStates() store.OAuthStates         { return &oauthStatesRepo{q: t.tx} }
func (t *txStore) LoginAttempts() store.LoginAttempts     { return &loginAttemptsRepo{q: t.tx} }
func (t *txStore) Sessions() store.Sessions               { return &sessionsRepo{q: t.tx} }
func (t *txStore) TwoFactorChallenges() store.TwoFactorChallenges {
	return &twoFactorChallengesRepo{q: t.tx}
}
