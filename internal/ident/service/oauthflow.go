package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/idx"
	"github.com/oxkey/ident/pkg/slogx"
)

var (
	ErrUnknownProvider   = errors.New("ident: unknown oauth provider")
	ErrChallengeNotFound = errors.New("ident: 2fa challenge not found")
	ErrChallengeExpired  = errors.New("ident: 2fa challenge expired")
	ErrInvalidTwoFACode  = errors.New("ident: invalid 2fa code")
)

// DefaultChallengeTTL bounds how long a resolved-but-ungated OAuth login may
// wait for its second factor.
const DefaultChallengeTTL = 5 * time.Minute

// Max wrong codes before the challenge is burned.
const maxChallengeAttempts = 5

// CallbackResult is the outcome of processing a provider callback. Exactly
// one of the three shapes applies: full credentials, a pending 2FA
// challenge, or a permission grant.
type CallbackResult struct {
	Account domain.Account
	Access  string
	Refresh string

	// Requires2FA is set with ChallengeID when the account has a second
	// factor; no credentials are issued yet.
	Requires2FA bool
	ChallengeID string

	// Granted is set for permission flows; the identity carries the
	// provider tokens for the granted scope.
	Granted  bool
	Identity domain.ProviderIdentity
	Scope    domain.ScopeLevel
	Service  string
}

// OAuthFlowService orchestrates the provider round-trip: begin, callback,
// optional second-factor gate.
type OAuthFlowService struct {
	States    *OAuthStateService
	Exchange  ProviderExchange
	Accounts  Accounts
	Sessions  *SessionService
	Issuer    *credx.Issuer
	Store     store.Store
	Providers map[domain.Provider]domain.ProviderConfig

	AccessTTL    time.Duration
	ChallengeTTL time.Duration
}

// Begin starts a flow with the given intent and returns the provider
// authorization URL to redirect the user to.
func (s *OAuthFlowService) Begin(ctx context.Context, provider domain.Provider, authType domain.AuthType, callbackURL string) (string, error) {
	cfg, ok := s.Providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	var (
		state string
		err   error
	)
	switch authType {
	case domain.AuthSignUp:
		state, err = s.States.BeginSignup(ctx, provider, callbackURL)
	case domain.AuthSignIn:
		state, err = s.States.BeginSignin(ctx, provider, callbackURL)
	default:
		return "", fmt.Errorf("ident: auth type %q cannot begin here", authType)
	}
	if err != nil {
		return "", err
	}

	return cfg.AuthorizeURL(state, callbackURL), nil
}

// BeginPermission starts a permission-grant flow for an already
// authenticated account.
func (s *OAuthFlowService) BeginPermission(ctx context.Context, provider domain.Provider, accountID string, scope domain.ScopeLevel, svc, callbackURL string) (string, error) {
	cfg, ok := s.Providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	state, err := s.States.BeginPermission(ctx, provider, accountID, scope, svc, callbackURL)
	if err != nil {
		return "", err
	}
	return cfg.AuthorizeURL(state, callbackURL), nil
}

// Callback processes the provider redirect. The state is peeked first so the
// exchange result can be attached to it, then resolved (consumed) exactly
// once; two concurrent callbacks with the same state cannot both succeed.
func (s *OAuthFlowService) Callback(ctx context.Context, cookies CookieSink, sessionID, state, code string) (CallbackResult, error) {
	log := slogx.FromContext(ctx)

	pending, err := s.States.Peek(ctx, state)
	if err != nil {
		return CallbackResult{}, err
	}

	identity, err := s.Exchange.Exchange(ctx, pending.Provider, code)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("ident: provider exchange: %w", err)
	}

	if err := s.States.AttachIdentity(ctx, state, identity); err != nil {
		return CallbackResult{}, err
	}

	resolved, err := s.States.Resolve(ctx, state)
	if err != nil {
		return CallbackResult{}, err
	}

	switch resolved.AuthType {
	case domain.AuthPermission:
		log.Info("permission grant resolved",
			"provider", resolved.Provider, "account_id", resolved.AccountID, "scope", resolved.ScopeLevel)
		return CallbackResult{
			Granted:  true,
			Identity: identity,
			Scope:    resolved.ScopeLevel,
			Service:  resolved.Service,
		}, nil

	case domain.AuthSignUp:
		account, err := s.Accounts.FindByProvider(ctx, resolved.Provider, identity.Subject)
		switch {
		case err == nil:
			// Already registered; fall through to signin semantics.
		case errors.Is(err, ErrAccountNotFound):
			account, err = s.Accounts.CreateFromProvider(ctx, identity)
			if err != nil {
				return CallbackResult{}, fmt.Errorf("ident: create provider account: %w", err)
			}
		default:
			return CallbackResult{}, err
		}
		return s.establish(ctx, cookies, sessionID, account, resolved, identity)

	case domain.AuthSignIn:
		account, err := s.Accounts.FindByProvider(ctx, resolved.Provider, identity.Subject)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return CallbackResult{}, ErrInvalidCredentials
			}
			return CallbackResult{}, err
		}
		return s.establish(ctx, cookies, sessionID, account, resolved, identity)

	default:
		return CallbackResult{}, ErrOAuthStateInvalid
	}
}

// establish finishes the flow for a resolved account: either a 2FA challenge
// when the account is gated, or full session credentials.
func (s *OAuthFlowService) establish(ctx context.Context, cookies CookieSink, sessionID string, account domain.Account, resolved domain.OAuthState, identity domain.ProviderIdentity) (CallbackResult, error) {
	if account.TwoFactorEnabled {
		ttl := s.ChallengeTTL
		if ttl <= 0 {
			ttl = DefaultChallengeTTL
		}
		now := time.Now().UTC()
		challenge := domain.TwoFactorChallenge{
			ID:          idx.New().String(),
			AccountID:   account.ID,
			Provider:    resolved.Provider,
			CallbackURL: resolved.CallbackURL,
			Identity:    identity,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		if err := s.Store.TwoFactorChallenges().CreateChallenge(ctx, challenge); err != nil {
			return CallbackResult{}, err
		}
		slogx.FromContext(ctx).Info("2fa challenge issued", "account_id", account.ID)
		return CallbackResult{Account: account, Requires2FA: true, ChallengeID: challenge.ID}, nil
	}

	return s.issueSession(ctx, cookies, sessionID, account, identity)
}

// Verify2FA validates a TOTP code against the account bound to the
// challenge. A wrong code does not consume the challenge until the attempt
// bound is reached; only success or expiry retires it.
func (s *OAuthFlowService) Verify2FA(ctx context.Context, cookies CookieSink, sessionID, challengeID, code string) (CallbackResult, error) {
	challenges := s.Store.TwoFactorChallenges()

	challenge, err := challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CallbackResult{}, ErrChallengeNotFound
		}
		return CallbackResult{}, err
	}
	if challenge.Expired(time.Now().UTC()) {
		_ = challenges.DeleteChallenge(ctx, challengeID)
		return CallbackResult{}, ErrChallengeExpired
	}

	account, err := s.Accounts.FindByID(ctx, challenge.AccountID)
	if err != nil {
		return CallbackResult{}, err
	}

	if !totp.Validate(code, account.TwoFactorSecret) {
		updated, err := challenges.IncrementChallengeAttempts(ctx, challengeID)
		if err != nil {
			return CallbackResult{}, err
		}
		if updated.Attempts >= maxChallengeAttempts {
			_ = challenges.DeleteChallenge(ctx, challengeID)
			return CallbackResult{}, ErrTooManyAttempts
		}
		return CallbackResult{}, ErrInvalidTwoFACode
	}

	if err := challenges.DeleteChallenge(ctx, challengeID); err != nil {
		return CallbackResult{}, err
	}

	slogx.FromContext(ctx).Info("2fa verified", "account_id", account.ID)
	return s.issueSession(ctx, cookies, sessionID, account, challenge.Identity)
}

func (s *OAuthFlowService) issueSession(ctx context.Context, cookies CookieSink, sessionID string, account domain.Account, identity domain.ProviderIdentity) (CallbackResult, error) {
	access, err := s.Issuer.IssueAccess(account.ID, credx.AccountOAuth, s.AccessTTL, identity.AccessToken)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("ident: issue access credential: %w", err)
	}
	refresh, err := s.Issuer.IssueRefresh(account.ID, credx.AccountOAuth, identity.RefreshToken)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("ident: issue refresh credential: %w", err)
	}

	if err := s.Sessions.AddAccount(ctx, cookies, sessionID, account.ID, access, refresh); err != nil {
		return CallbackResult{}, err
	}

	return CallbackResult{Account: account, Access: access, Refresh: refresh}, nil
}
