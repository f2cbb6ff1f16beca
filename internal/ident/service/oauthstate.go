package service

import (
	"context"
	"errors"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/pkg/cryptox"
	"github.com/oxkey/ident/pkg/idx"
)

var (
	ErrOAuthStateInvalid = errors.New("ident: oauth state invalid")
	ErrOAuthStateExpired = errors.New("ident: oauth state expired")
)

// DefaultStateTTL bounds one provider round-trip. Long enough for a consent
// screen, short enough that a stolen authorization code goes stale fast.
const DefaultStateTTL = 10 * time.Minute

// OAuthStateService correlates a provider round-trip back to its auth intent.
// The state value is the sole CSRF defense across the redirect: unguessable,
// single-use, short-lived, and it carries the original intent and callback
// URL since the browser leg is stateless.
type OAuthStateService struct {
	Store store.Store
	TTL   time.Duration
}

// BeginSignup creates a signup-intent state and returns its opaque value.
func (s *OAuthStateService) BeginSignup(ctx context.Context, provider domain.Provider, callbackURL string) (string, error) {
	return s.begin(ctx, domain.OAuthState{
		Provider:    provider,
		AuthType:    domain.AuthSignUp,
		CallbackURL: callbackURL,
	})
}

// BeginSignin creates a signin-intent state and returns its opaque value.
func (s *OAuthStateService) BeginSignin(ctx context.Context, provider domain.Provider, callbackURL string) (string, error) {
	return s.begin(ctx, domain.OAuthState{
		Provider:    provider,
		AuthType:    domain.AuthSignIn,
		CallbackURL: callbackURL,
	})
}

// BeginPermission creates a permission-grant state bound to the granting
// account, the service asking, and the requested scope level.
func (s *OAuthStateService) BeginPermission(ctx context.Context, provider domain.Provider, accountID string, scope domain.ScopeLevel, svc, callbackURL string) (string, error) {
	return s.begin(ctx, domain.OAuthState{
		Provider:    provider,
		AuthType:    domain.AuthPermission,
		CallbackURL: callbackURL,
		AccountID:   accountID,
		Service:     svc,
		ScopeLevel:  scope,
	})
}

func (s *OAuthStateService) begin(ctx context.Context, st domain.OAuthState) (string, error) {
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	st.ID = idx.New().String()
	st.StateHash = cryptox.FingerprintToken(opaque)
	st.CreatedAt = now
	st.ExpiresAt = now.Add(ttl)

	if err := s.Store.OAuthStates().CreateState(ctx, st); err != nil {
		return "", err
	}
	return opaque, nil
}

// Peek returns a live state without consuming it. The orchestrator needs the
// provider and intent before it can run the code exchange; Resolve stays the
// only consuming operation.
func (s *OAuthStateService) Peek(ctx context.Context, state string) (domain.OAuthState, error) {
	record, err := s.Store.OAuthStates().GetStateByHash(ctx, cryptox.FingerprintToken(state))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OAuthState{}, ErrOAuthStateInvalid
		}
		return domain.OAuthState{}, err
	}
	if record.Expired(time.Now().UTC()) {
		return domain.OAuthState{}, ErrOAuthStateExpired
	}
	return record, nil
}

// AttachIdentity records the provider's returned identity onto a live state,
// before the caller decides whether to create or link an account.
func (s *OAuthStateService) AttachIdentity(ctx context.Context, state string, identity domain.ProviderIdentity) error {
	if _, err := s.Peek(ctx, state); err != nil {
		return err
	}

	err := s.Store.OAuthStates().AttachIdentity(ctx, cryptox.FingerprintToken(state), identity)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOAuthStateInvalid
	}
	return err
}

// Resolve consumes a state: check-and-delete in one transaction, so two
// callbacks racing on the same echoed state can never both succeed. Replay of
// a stale authorization code dies here.
func (s *OAuthStateService) Resolve(ctx context.Context, state string) (domain.OAuthState, error) {
	hash := cryptox.FingerprintToken(state)
	now := time.Now().UTC()

	var (
		record  domain.OAuthState
		expired bool
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		st, err := tx.OAuthStates().GetStateByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOAuthStateInvalid
			}
			return err
		}

		if st.Expired(now) {
			// The delete only commits if the closure returns nil.
			expired = true
			return tx.OAuthStates().DeleteState(ctx, st.ID)
		}

		if err := tx.OAuthStates().DeleteState(ctx, st.ID); err != nil {
			return err
		}

		record = st
		return nil
	})
	if err != nil {
		return domain.OAuthState{}, err
	}
	if expired {
		return domain.OAuthState{}, ErrOAuthStateExpired
	}
	return record, nil
}
