package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
)

func newTestOAuthFlow(t *testing.T) (*OAuthFlowService, *fakeAccounts, *fakeExchange) {
	t.Helper()

	st := newTestStore(t)
	issuer := newTestIssuer(t)
	accounts := newFakeAccounts()
	exchange := &fakeExchange{
		identity: domain.ProviderIdentity{
			Subject:     "prov-123",
			Email:       "dev@example.com",
			AccessToken: "prov-access",
		},
	}

	sessions := &SessionService{
		Store:      st,
		Issuer:     issuer,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	svc := &OAuthFlowService{
		States:   &OAuthStateService{Store: st},
		Exchange: exchange,
		Accounts: accounts,
		Sessions: sessions,
		Issuer:   issuer,
		Store:    st,
		Providers: map[domain.Provider]domain.ProviderConfig{
			domain.ProviderGoogle: {
				AuthorizeEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
				ClientID:          "client-1",
				Scopes:            []string{"openid", "email"},
			},
		},
		AccessTTL:    15 * time.Minute,
		ChallengeTTL: 5 * time.Minute,
	}
	return svc, accounts, exchange
}

// stateFromAuthorizeURL pulls the state parameter back out of the redirect.
func stateFromAuthorizeURL(t *testing.T, authorizeURL string) string {
	t.Helper()
	_, query, ok := strings.Cut(authorizeURL, "?")
	require.True(t, ok)
	for _, kv := range strings.Split(query, "&") {
		if v, found := strings.CutPrefix(kv, "state="); found {
			return v
		}
	}
	t.Fatal("no state in authorize URL")
	return ""
}

func TestOAuthBeginBuildsAuthorizeURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestOAuthFlow(t)

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignIn, "https://app.example.com/cb")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authorizeURL, "https://accounts.google.com/o/oauth2/v2/auth?"))
	require.Contains(t, authorizeURL, "client_id=client-1")
	require.NotEmpty(t, stateFromAuthorizeURL(t, authorizeURL))
}

func TestOAuthBeginUnknownProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestOAuthFlow(t)

	_, err := svc.Begin(ctx, domain.ProviderGitHub, domain.AuthSignIn, "https://app.example.com/cb")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOAuthSignupCallbackCreatesAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, _ := newTestOAuthFlow(t)
	cookies := newFakeCookies()

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignUp, "https://app.example.com/cb")
	require.NoError(t, err)
	state := stateFromAuthorizeURL(t, authorizeURL)

	result, err := svc.Callback(ctx, cookies, "sess-1", state, "auth-code")
	require.NoError(t, err)
	require.False(t, result.Requires2FA)
	require.NotEmpty(t, result.Access)
	require.Equal(t, 1, accounts.createCalls)
	require.Equal(t, domain.ProviderGoogle, result.Account.Provider)

	session, err := svc.Store.Sessions().GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, result.Account.ID, session.CurrentAccountID)
}

func TestOAuthSigninCallbackRequiresExistingAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestOAuthFlow(t)

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignIn, "https://app.example.com/cb")
	require.NoError(t, err)
	state := stateFromAuthorizeURL(t, authorizeURL)

	_, err = svc.Callback(ctx, newFakeCookies(), "sess-1", state, "auth-code")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOAuthCallbackStateIsSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, _ := newTestOAuthFlow(t)
	accounts.add(domain.Account{
		ID: "acct-1", Email: "dev@example.com", Type: "oauth",
		Provider: domain.ProviderGoogle, ProviderSubject: "prov-123",
	}, "")

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignIn, "https://app.example.com/cb")
	require.NoError(t, err)
	state := stateFromAuthorizeURL(t, authorizeURL)

	_, err = svc.Callback(ctx, newFakeCookies(), "sess-1", state, "auth-code")
	require.NoError(t, err)

	_, err = svc.Callback(ctx, newFakeCookies(), "sess-1", state, "auth-code")
	require.ErrorIs(t, err, ErrOAuthStateInvalid)
}

func TestOAuthPermissionGrant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestOAuthFlow(t)

	authorizeURL, err := svc.BeginPermission(ctx, domain.ProviderGoogle, "acct-1",
		domain.ScopeRead, "drive", "https://app.example.com/cb")
	require.NoError(t, err)
	state := stateFromAuthorizeURL(t, authorizeURL)

	result, err := svc.Callback(ctx, newFakeCookies(), "sess-1", state, "auth-code")
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.Empty(t, result.Access, "permission grants do not mint session credentials")
	require.Equal(t, domain.ScopeRead, result.Scope)
	require.Equal(t, "drive", result.Service)
	require.Equal(t, "prov-access", result.Identity.AccessToken)
}

func TestOAuthTwoFactorGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, _ := newTestOAuthFlow(t)
	cookies := newFakeCookies()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ident", AccountName: "dev@example.com"})
	require.NoError(t, err)

	accounts.add(domain.Account{
		ID: "acct-1", Email: "dev@example.com", Type: "oauth",
		Provider: domain.ProviderGoogle, ProviderSubject: "prov-123",
		TwoFactorEnabled: true, TwoFactorSecret: key.Secret(),
	}, "")

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignIn, "https://app.example.com/cb")
	require.NoError(t, err)
	state := stateFromAuthorizeURL(t, authorizeURL)

	result, err := svc.Callback(ctx, cookies, "sess-1", state, "auth-code")
	require.NoError(t, err)
	require.True(t, result.Requires2FA)
	require.NotEmpty(t, result.ChallengeID)
	require.Empty(t, result.Access, "no credentials before the second factor clears")

	t.Run("wrong code does not consume the challenge", func(t *testing.T) {
		_, err := svc.Verify2FA(ctx, cookies, "sess-1", result.ChallengeID, "000000")
		require.ErrorIs(t, err, ErrInvalidTwoFACode)
	})

	t.Run("correct code issues credentials", func(t *testing.T) {
		code, err := totp.GenerateCode(key.Secret(), time.Now())
		require.NoError(t, err)

		verified, err := svc.Verify2FA(ctx, cookies, "sess-1", result.ChallengeID, code)
		require.NoError(t, err)
		require.NotEmpty(t, verified.Access)
		require.Equal(t, "acct-1", verified.Account.ID)

		session, err := svc.Store.Sessions().GetSession(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, "acct-1", session.CurrentAccountID)
	})

	t.Run("challenge is consumed by success", func(t *testing.T) {
		code, err := totp.GenerateCode(key.Secret(), time.Now())
		require.NoError(t, err)

		_, err = svc.Verify2FA(ctx, cookies, "sess-1", result.ChallengeID, code)
		require.ErrorIs(t, err, ErrChallengeNotFound)
	})
}

func TestOAuthTwoFactorAttemptBound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, _ := newTestOAuthFlow(t)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ident", AccountName: "dev@example.com"})
	require.NoError(t, err)

	accounts.add(domain.Account{
		ID: "acct-1", Email: "dev@example.com", Type: "oauth",
		Provider: domain.ProviderGoogle, ProviderSubject: "prov-123",
		TwoFactorEnabled: true, TwoFactorSecret: key.Secret(),
	}, "")

	authorizeURL, err := svc.Begin(ctx, domain.ProviderGoogle, domain.AuthSignIn, "https://app.example.com/cb")
	require.NoError(t, err)

	result, err := svc.Callback(ctx, newFakeCookies(), "sess-1", stateFromAuthorizeURL(t, authorizeURL), "auth-code")
	require.NoError(t, err)
	require.True(t, result.Requires2FA)

	for i := 0; i < maxChallengeAttempts-1; i++ {
		_, err := svc.Verify2FA(ctx, newFakeCookies(), "sess-1", result.ChallengeID, "000000")
		require.ErrorIs(t, err, ErrInvalidTwoFACode)
	}

	_, err = svc.Verify2FA(ctx, newFakeCookies(), "sess-1", result.ChallengeID, "000000")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// Burned challenge is gone.
	_, err = svc.Store.TwoFactorChallenges().GetChallenge(ctx, result.ChallengeID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
