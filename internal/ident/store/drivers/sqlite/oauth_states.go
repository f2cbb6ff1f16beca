package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
)

type oauthStatesRepo struct {
	q dbtx
}

func (r *oauthStatesRepo) CreateState(ctx context.Context, s domain.OAuthState) error {
	var identity sql.NullString
	if s.Identity != nil {
		raw, err := json.Marshal(s.Identity)
		if err != nil {
			return err
		}
		identity = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO oauth_states
			(id, state_hash, provider, auth_type, callback_url, account_id, service, scope_level, identity, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StateHash, string(s.Provider), string(s.AuthType), s.CallbackURL,
		mapStringNull(s.AccountID), mapStringNull(s.Service), mapStringNull(string(s.ScopeLevel)),
		identity, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

func (r *oauthStatesRepo) GetStateByHash(ctx context.Context, hash string) (domain.OAuthState, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, state_hash, provider, auth_type, callback_url, account_id, service, scope_level, identity, created_at, expires_at
		FROM oauth_states WHERE state_hash = ?`, hash)

	var (
		s                              domain.OAuthState
		provider, authType             string
		accountID, service, scopeLevel sql.NullString
		identity                       sql.NullString
	)
	err := row.Scan(&s.ID, &s.StateHash, &provider, &authType, &s.CallbackURL,
		&accountID, &service, &scopeLevel, &identity, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.OAuthState{}, mapNotFound(err)
	}

	s.Provider = domain.Provider(provider)
	s.AuthType = domain.AuthType(authType)
	s.AccountID = mapNullString(accountID)
	s.Service = mapNullString(service)
	s.ScopeLevel = domain.ScopeLevel(mapNullString(scopeLevel))

	if identity.Valid {
		var id domain.ProviderIdentity
		if err := json.Unmarshal([]byte(identity.String), &id); err != nil {
			return domain.OAuthState{}, err
		}
		s.Identity = &id
	}
	return s, nil
}

func (r *oauthStatesRepo) AttachIdentity(ctx context.Context, hash string, identity domain.ProviderIdentity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE oauth_states SET identity = ? WHERE state_hash = ?`, string(raw), hash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *oauthStatesRepo) DeleteState(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM oauth_states WHERE id = ?`, id)
	return err
}

func (r *oauthStatesRepo) DeleteExpiredStates(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= ?`, now)
	return err
}
