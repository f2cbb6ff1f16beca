package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/pkg/cryptox"
	"github.com/oxkey/ident/pkg/idx"
)

func TestHousekeepingSweepsExpiredRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	now := time.Now().UTC()

	expired := domain.EphemeralToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken("dead"),
		Subject:   "old@example.com",
		Kind:      domain.TokenEmailVerification,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, st.EphemeralTokens().CreateToken(ctx, expired))

	live := domain.EphemeralToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken("alive"),
		Subject:   "new@example.com",
		Kind:      domain.TokenEmailVerification,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.EphemeralTokens().CreateToken(ctx, live))

	require.NoError(t, st.OAuthStates().CreateState(ctx, domain.OAuthState{
		ID:          idx.New().String(),
		StateHash:   cryptox.FingerprintToken("stale-state"),
		Provider:    domain.ProviderGoogle,
		AuthType:    domain.AuthSignIn,
		CallbackURL: "https://app.example.com/cb",
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(-30 * time.Minute),
	}))

	require.NoError(t, st.TwoFactorChallenges().CreateChallenge(ctx, domain.TwoFactorChallenge{
		ID:        idx.New().String(),
		AccountID: "acct-1",
		Provider:  domain.ProviderGoogle,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-55 * time.Minute),
	}))

	hk := NewHousekeepingService(st, slog.Default(), time.Hour)
	hk.cleanup()

	_, err := st.EphemeralTokens().GetTokenByHash(ctx, expired.TokenHash)
	require.Error(t, err, "expired token swept")

	_, err = st.EphemeralTokens().GetTokenByHash(ctx, live.TokenHash)
	require.NoError(t, err, "live token untouched")

	_, err = st.OAuthStates().GetStateByHash(ctx, cryptox.FingerprintToken("stale-state"))
	require.Error(t, err, "expired state swept")
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	hk := NewHousekeepingService(newTestStore(t), slog.Default(), 50*time.Millisecond)
	hk.Start()
	time.Sleep(120 * time.Millisecond)
	hk.Stop()
}
