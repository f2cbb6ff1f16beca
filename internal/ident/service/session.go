package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/slogx"
)

var (
	ErrNotMember      = errors.New("ident: account not in session")
	ErrRefreshInvalid = errors.New("ident: refresh credential invalid")
	ErrRefreshExpired = errors.New("ident: refresh credential expired")
)

// SessionService manages multi-account browser sessions: the set of
// authenticated accounts per browser context, which one is current, and the
// cookie issuance/refresh policy. The HTTP layer decides where to redirect;
// this service only reports which case applies.
type SessionService struct {
	Store      store.Store
	Issuer     *credx.Issuer
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func accessCookieName(accountID string) string  { return "ident_access_" + accountID }
func refreshCookieName(accountID string) string { return "ident_refresh_" + accountID }

// AddAccount attaches an authenticated account to the session (creating the
// session row on first use), makes it current, and emits its cookies.
func (s *SessionService) AddAccount(ctx context.Context, cookies CookieSink, sessionID, accountID, accessCred, refreshCred string) error {
	now := time.Now().UTC()

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Sessions().GetSession(ctx, sessionID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := tx.Sessions().CreateSession(ctx, sessionID, now); err != nil {
				return err
			}
		}

		if err := tx.Sessions().AddAccount(ctx, domain.SessionAccount{
			SessionID:         sessionID,
			AccountID:         accountID,
			AccessCredential:  accessCred,
			RefreshCredential: refreshCred,
			AddedAt:           now,
		}); err != nil {
			return err
		}

		return tx.Sessions().SetCurrentAccount(ctx, sessionID, accountID)
	})
	if err != nil {
		return err
	}

	cookies.Set(accessCookieName(accountID), accessCred, s.AccessTTL)
	if refreshCred != "" {
		cookies.Set(refreshCookieName(accountID), refreshCred, s.RefreshTTL)
	}
	return nil
}

// RemoveAccount detaches an account and clears its cookies. Removing the
// current account promotes the most recently added remaining member, or
// leaves the session with no current account when it was the last one.
func (s *SessionService) RemoveAccount(ctx context.Context, cookies CookieSink, sessionID, accountID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.Sessions().GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.HasAccount(accountID) {
			return ErrNotMember
		}

		if err := tx.Sessions().RemoveAccount(ctx, sessionID, accountID); err != nil {
			return err
		}

		if session.CurrentAccountID != accountID {
			return nil
		}

		// Never leave the current pointer dangling.
		next := ""
		for _, a := range session.Accounts {
			if a.AccountID != accountID {
				next = a.AccountID // accounts are ordered by AddedAt
			}
		}
		return tx.Sessions().SetCurrentAccount(ctx, sessionID, next)
	})
	if err != nil {
		return err
	}

	cookies.Clear(accessCookieName(accountID))
	cookies.Clear(refreshCookieName(accountID))
	return nil
}

// SetCurrent switches the active account; the account must be a member. The
// check and the write share a transaction so a concurrent removal cannot
// leave the current pointer on a non-member.
func (s *SessionService) SetCurrent(ctx context.Context, sessionID, accountID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.Sessions().GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.HasAccount(accountID) {
			return ErrNotMember
		}
		return tx.Sessions().SetCurrentAccount(ctx, sessionID, accountID)
	})
}

// Logout empties the session, clearing every account's cookies.
func (s *SessionService) Logout(ctx context.Context, cookies CookieSink, sessionID string) error {
	session, err := s.Store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.Store.Sessions().DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	for _, a := range session.Accounts {
		cookies.Clear(accessCookieName(a.AccountID))
		cookies.Clear(refreshCookieName(a.AccountID))
	}
	return nil
}

// RefreshAccess rotates the access credential for a session account using its
// stored refresh credential. An expired refresh credential means the account
// is logged out (ErrRefreshExpired); a tampered or missing one is
// ErrRefreshInvalid. On success the new access credential is persisted and
// its cookie re-issued.
func (s *SessionService) RefreshAccess(ctx context.Context, cookies CookieSink, sessionID, accountID string) (string, error) {
	session, err := s.Store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var account *domain.SessionAccount
	for i := range session.Accounts {
		if session.Accounts[i].AccountID == accountID {
			account = &session.Accounts[i]
			break
		}
	}
	if account == nil {
		return "", ErrNotMember
	}
	if account.RefreshCredential == "" {
		return "", ErrRefreshInvalid
	}

	claims, err := s.Issuer.Verify(account.RefreshCredential)
	switch {
	case errors.Is(err, credx.ErrExpired):
		return "", ErrRefreshExpired
	case err != nil:
		return "", ErrRefreshInvalid
	}
	if !claims.Refresh || claims.Subject != accountID {
		return "", ErrRefreshInvalid
	}

	newAccess, err := s.Issuer.IssueAccess(accountID, claims.AccountType, s.AccessTTL, claims.ProviderToken)
	if err != nil {
		return "", fmt.Errorf("ident: mint access credential: %w", err)
	}

	if err := s.Store.Sessions().UpdateAccessCredential(ctx, sessionID, accountID, newAccess); err != nil {
		return "", err
	}

	cookies.Set(accessCookieName(accountID), newAccess, s.AccessTTL)
	slogx.FromContext(ctx).Debug("access credential refreshed", "account_id", accountID)
	return newAccess, nil
}

// Status classifies a session account in the refresh state machine: Valid,
// NeedsRefresh (access expired, refresh still good) or LoggedOut (refresh
// expired or unusable).
func (s *SessionService) Status(ctx context.Context, sessionID, accountID string) (domain.TokenStatus, error) {
	session, err := s.Store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		return domain.TokenLoggedOut, err
	}

	var account *domain.SessionAccount
	for i := range session.Accounts {
		if session.Accounts[i].AccountID == accountID {
			account = &session.Accounts[i]
			break
		}
	}
	if account == nil {
		return domain.TokenLoggedOut, ErrNotMember
	}

	_, err = s.Issuer.Verify(account.AccessCredential)
	if err == nil {
		return domain.TokenValid, nil
	}
	if !errors.Is(err, credx.ErrExpired) {
		return domain.TokenLoggedOut, nil
	}

	if account.RefreshCredential == "" {
		return domain.TokenLoggedOut, nil
	}
	if _, err := s.Issuer.Verify(account.RefreshCredential); err != nil {
		return domain.TokenLoggedOut, nil
	}
	return domain.TokenNeedsRefresh, nil
}
