package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
)

type ephemeralTokensRepo struct {
	q dbtx
}

func (r *ephemeralTokensRepo) CreateToken(ctx context.Context, t domain.EphemeralToken) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO ephemeral_tokens (id, token_hash, subject, kind, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.Subject, string(t.Kind), string(payload), t.CreatedAt, t.ExpiresAt,
	)
	return err
}

func (r *ephemeralTokensRepo) GetTokenByHash(ctx context.Context, hash string) (domain.EphemeralToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, token_hash, subject, kind, payload, created_at, expires_at
		FROM ephemeral_tokens WHERE token_hash = ?`, hash)
	return scanEphemeralToken(row)
}

func (r *ephemeralTokensRepo) GetLatestTokenBySubject(ctx context.Context, subject string, kind domain.TokenKind) (domain.EphemeralToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, token_hash, subject, kind, payload, created_at, expires_at
		FROM ephemeral_tokens
		WHERE subject = ? AND kind = ?
		ORDER BY id DESC LIMIT 1`, subject, string(kind))
	return scanEphemeralToken(row)
}

func (r *ephemeralTokensRepo) DeleteToken(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM ephemeral_tokens WHERE id = ?`, id)
	return err
}

func (r *ephemeralTokensRepo) DeleteTokensBySubject(ctx context.Context, subject string, kind domain.TokenKind) error {
	if kind == "" {
		_, err := r.q.ExecContext(ctx, `DELETE FROM ephemeral_tokens WHERE subject = ?`, subject)
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM ephemeral_tokens WHERE subject = ? AND kind = ?`, subject, string(kind))
	return err
}

func (r *ephemeralTokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM ephemeral_tokens WHERE expires_at <= ?`, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEphemeralToken(row rowScanner) (domain.EphemeralToken, error) {
	var (
		t       domain.EphemeralToken
		kind    string
		payload string
	)
	if err := row.Scan(&t.ID, &t.TokenHash, &t.Subject, &kind, &payload, &t.CreatedAt, &t.ExpiresAt); err != nil {
		return domain.EphemeralToken{}, mapNotFound(err)
	}

	t.Kind = domain.TokenKind(kind)
	if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
		return domain.EphemeralToken{}, err
	}
	return t, nil
}
