package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxkey/ident/internal/ident/domain"
)

func TestOAuthStateRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	state, err := svc.BeginSignin(ctx, domain.ProviderGoogle, "https://app.example.com/cb")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	resolved, err := svc.Resolve(ctx, state)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGoogle, resolved.Provider)
	require.Equal(t, domain.AuthSignIn, resolved.AuthType)
	require.Equal(t, "https://app.example.com/cb", resolved.CallbackURL)
}

func TestOAuthStateResolveIsSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	state, err := svc.BeginSignup(ctx, domain.ProviderGitHub, "https://app.example.com/cb")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, state)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, state)
	require.ErrorIs(t, err, ErrOAuthStateInvalid)
}

func TestOAuthStateResolveConcurrentRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	state, err := svc.BeginSignin(ctx, domain.ProviderGoogle, "https://app.example.com/cb")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Resolve(ctx, state)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded, "exactly one resolve may win")
}

func TestOAuthStateExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t), TTL: time.Millisecond}

	state, err := svc.BeginSignin(ctx, domain.ProviderGoogle, "https://app.example.com/cb")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Resolve(ctx, state)
	require.ErrorIs(t, err, ErrOAuthStateExpired)

	// The expired row is consumed by the failed resolve.
	_, err = svc.Resolve(ctx, state)
	require.ErrorIs(t, err, ErrOAuthStateInvalid)
}

func TestOAuthStateUnknownValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	_, err := svc.Resolve(ctx, "never-issued")
	require.ErrorIs(t, err, ErrOAuthStateInvalid)
}

func TestOAuthStateAttachIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	state, err := svc.BeginSignup(ctx, domain.ProviderGitHub, "https://app.example.com/cb")
	require.NoError(t, err)

	identity := domain.ProviderIdentity{
		Provider: domain.ProviderGitHub,
		Subject:  "gh-123",
		Email:    "dev@example.com",
	}
	require.NoError(t, svc.AttachIdentity(ctx, state, identity))

	resolved, err := svc.Resolve(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, resolved.Identity)
	require.Equal(t, "gh-123", resolved.Identity.Subject)
	require.Equal(t, "dev@example.com", resolved.Identity.Email)
}

func TestOAuthStatePermissionContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := &OAuthStateService{Store: newTestStore(t)}

	state, err := svc.BeginPermission(ctx, domain.ProviderGoogle, "acct-1",
		domain.ScopeWrite, "calendar", "https://app.example.com/cb")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, state)
	require.NoError(t, err)
	require.Equal(t, domain.AuthPermission, resolved.AuthType)
	require.Equal(t, "acct-1", resolved.AccountID)
	require.Equal(t, domain.ScopeWrite, resolved.ScopeLevel)
	require.Equal(t, "calendar", resolved.Service)
}
