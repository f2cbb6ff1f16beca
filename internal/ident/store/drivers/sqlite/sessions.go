package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
)

type sessionsRepo struct {
	q dbtx
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.SessionRecord, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, current_account_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var (
		rec     domain.SessionRecord
		current sql.NullString
	)
	if err := row.Scan(&rec.ID, &current, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.SessionRecord{}, mapNotFound(err)
	}
	rec.CurrentAccountID = mapNullString(current)

	rows, err := r.q.QueryContext(ctx, `
		SELECT session_id, account_id, access_credential, refresh_credential, added_at
		FROM session_accounts WHERE session_id = ?
		ORDER BY added_at ASC, account_id ASC`, id)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a       domain.SessionAccount
			refresh sql.NullString
		)
		if err := rows.Scan(&a.SessionID, &a.AccountID, &a.AccessCredential, &refresh, &a.AddedAt); err != nil {
			return domain.SessionRecord{}, err
		}
		a.RefreshCredential = mapNullString(refresh)
		rec.Accounts = append(rec.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return domain.SessionRecord{}, err
	}
	return rec, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, id string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, current_account_id, created_at, updated_at)
		VALUES (?, NULL, ?, ?)`, id, now, now)
	return err
}

func (r *sessionsRepo) SetCurrentAccount(ctx context.Context, sessionID, accountID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET current_account_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, mapStringNull(accountID), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) AddAccount(ctx context.Context, a domain.SessionAccount) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO session_accounts (session_id, account_id, access_credential, refresh_credential, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, account_id) DO UPDATE SET
			access_credential  = excluded.access_credential,
			refresh_credential = excluded.refresh_credential,
			added_at           = excluded.added_at`,
		a.SessionID, a.AccountID, a.AccessCredential, mapStringNull(a.RefreshCredential), a.AddedAt,
	)
	return err
}

func (r *sessionsRepo) RemoveAccount(ctx context.Context, sessionID, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM session_accounts WHERE session_id = ? AND account_id = ?`, sessionID, accountID)
	return err
}

func (r *sessionsRepo) UpdateAccessCredential(ctx context.Context, sessionID, accountID, credential string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE session_accounts SET access_credential = ?
		WHERE session_id = ? AND account_id = ?`, credential, sessionID, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
