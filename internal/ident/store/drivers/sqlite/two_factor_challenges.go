package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
)

type twoFactorChallengesRepo struct {
	q dbtx
}

func (r *twoFactorChallengesRepo) CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error {
	identity, err := json.Marshal(c.Identity)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO two_factor_challenges
			(id, account_id, provider, callback_url, identity, attempts, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, string(c.Provider), c.CallbackURL, string(identity),
		c.Attempts, c.CreatedAt, c.ExpiresAt,
	)
	return err
}

func (r *twoFactorChallengesRepo) GetChallenge(ctx context.Context, id string) (domain.TwoFactorChallenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, account_id, provider, callback_url, identity, attempts, created_at, expires_at
		FROM two_factor_challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

func (r *twoFactorChallengesRepo) IncrementChallengeAttempts(ctx context.Context, id string) (domain.TwoFactorChallenge, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE two_factor_challenges SET attempts = attempts + 1
		WHERE id = ?
		RETURNING id, account_id, provider, callback_url, identity, attempts, created_at, expires_at`, id)
	return scanChallenge(row)
}

func (r *twoFactorChallengesRepo) DeleteChallenge(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM two_factor_challenges WHERE id = ?`, id)
	return err
}

func (r *twoFactorChallengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM two_factor_challenges WHERE expires_at <= ?`, now)
	return err
}

func scanChallenge(row rowScanner) (domain.TwoFactorChallenge, error) {
	var (
		c        domain.TwoFactorChallenge
		provider string
		identity string
	)
	err := row.Scan(&c.ID, &c.AccountID, &provider, &c.CallbackURL, &identity,
		&c.Attempts, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.TwoFactorChallenge{}, mapNotFound(err)
	}

	c.Provider = domain.Provider(provider)
	if err := json.Unmarshal([]byte(identity), &c.Identity); err != nil {
		return domain.TwoFactorChallenge{}, err
	}
	return c, nil
}
