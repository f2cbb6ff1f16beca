package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/slogx"
)

// ErrInvalidCredentials covers both unknown identity and wrong password, so a
// caller cannot probe which accounts exist.
var ErrInvalidCredentials = errors.New("ident: invalid credentials")

// LoginService authenticates local accounts and attaches them to sessions.
// Every attempt, success or failure, flows through the lockout guard.
type LoginService struct {
	Accounts  Accounts
	Lockout   *LockoutService
	Sessions  *SessionService
	Issuer    *credx.Issuer
	AccessTTL time.Duration
}

// LoginResult carries the minted credentials back to the transport layer.
type LoginResult struct {
	Account domain.Account
	Access  string
	Refresh string
}

// Login verifies an identity/password pair. A locked identity is rejected
// before password verification, so a correct password never resets an active
// lock. On success the account joins the session as current.
func (s *LoginService) Login(ctx context.Context, cookies CookieSink, sessionID, identity, password string) (LoginResult, error) {
	log := slogx.FromContext(ctx)

	if !s.Lockout.Allow(identity) {
		return LoginResult{}, ErrTooManyAttempts
	}

	locked, err := s.Lockout.IsLocked(ctx, identity)
	if err != nil {
		return LoginResult{}, err
	}
	if locked {
		return LoginResult{}, ErrAccountLocked
	}

	account, err := s.Accounts.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			if rerr := s.Lockout.RecordFailure(ctx, identity); rerr != nil {
				log.Error("record login failure", "error", rerr)
			}
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := s.Accounts.VerifyPassword(ctx, account, password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("ident: verify password: %w", err)
	}
	if !ok {
		if rerr := s.Lockout.RecordFailure(ctx, identity); rerr != nil {
			log.Error("record login failure", "error", rerr)
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.Lockout.RecordSuccess(ctx, identity); err != nil {
		return LoginResult{}, err
	}

	access, err := s.Issuer.IssueAccess(account.ID, credx.AccountLocal, s.AccessTTL, "")
	if err != nil {
		return LoginResult{}, fmt.Errorf("ident: issue access credential: %w", err)
	}
	refresh, err := s.Issuer.IssueRefresh(account.ID, credx.AccountLocal, "")
	if err != nil {
		return LoginResult{}, fmt.Errorf("ident: issue refresh credential: %w", err)
	}

	if err := s.Sessions.AddAccount(ctx, cookies, sessionID, account.ID, access, refresh); err != nil {
		return LoginResult{}, err
	}

	log.Info("login succeeded", "account_id", account.ID)
	return LoginResult{Account: account, Access: access, Refresh: refresh}, nil
}
