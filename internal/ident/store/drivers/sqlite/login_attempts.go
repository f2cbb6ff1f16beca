package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
)

type loginAttemptsRepo struct {
	q dbtx
}

func (r *loginAttemptsRepo) GetAttempt(ctx context.Context, identity string) (domain.LoginAttemptRecord, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT identity, failure_count, locked_until, updated_at
		FROM login_attempts WHERE identity = ?`, identity)

	var (
		rec         domain.LoginAttemptRecord
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&rec.Identity, &rec.FailureCount, &lockedUntil, &rec.UpdatedAt); err != nil {
		return domain.LoginAttemptRecord{}, mapNotFound(err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		rec.LockedUntil = &t
	}
	return rec, nil
}

func (r *loginAttemptsRepo) UpsertAttempt(ctx context.Context, rec domain.LoginAttemptRecord) error {
	var lockedUntil sql.NullTime
	if rec.LockedUntil != nil {
		lockedUntil = sql.NullTime{Time: *rec.LockedUntil, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO login_attempts (identity, failure_count, locked_until, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			failure_count = excluded.failure_count,
			locked_until  = excluded.locked_until,
			updated_at    = excluded.updated_at`,
		rec.Identity, rec.FailureCount, lockedUntil, rec.UpdatedAt,
	)
	return err
}

func (r *loginAttemptsRepo) DeleteAttempt(ctx context.Context, identity string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM login_attempts WHERE identity = ?`, identity)
	return err
}

func (r *loginAttemptsRepo) DeleteStaleAttempts(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE updated_at <= ? AND (locked_until IS NULL OR locked_until <= ?)`, cutoff, cutoff)
	return err
}
