package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxkey/ident/internal/ident/domain"
)

func newTestReset(t *testing.T) (*PasswordResetService, *fakeAccounts, *fakeEmail) {
	t.Helper()

	accounts := newFakeAccounts()
	email := &fakeEmail{}
	svc := &PasswordResetService{
		Tokens:   &TokenService{Store: newTestStore(t)},
		Accounts: accounts,
		Email:    email,
	}
	return svc, accounts, email
}

func TestPasswordResetEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, email := newTestReset(t)
	accounts.add(domain.Account{ID: "acct-1", Email: "user@example.com", Type: "local"}, "old-password")

	require.NoError(t, svc.Request(ctx, "user@example.com", "https://app.example.com/reset"))
	token := email.last(t).Vars["token"]
	require.NotEmpty(t, token)

	require.NoError(t, svc.Confirm(ctx, token, "new-password-1", "new-password-1"))

	ok, err := accounts.VerifyPassword(ctx, domain.Account{ID: "acct-1"}, "new-password-1")
	require.NoError(t, err)
	require.True(t, ok)

	// The token died with the confirm.
	err = svc.Confirm(ctx, token, "another-pass", "another-pass")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, email := newTestReset(t)

	require.NoError(t, svc.Request(ctx, "ghost@example.com", "https://app.example.com/reset"))
	require.Empty(t, email.sent, "no email and no error for unknown addresses")
}

func TestPasswordResetDeliveryFailureRevokesToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, email := newTestReset(t)
	accounts.add(domain.Account{ID: "acct-1", Email: "user@example.com", Type: "local"}, "pw")
	email.fail = errors.New("smtp down")

	err := svc.Request(ctx, "user@example.com", "https://app.example.com/reset")
	require.ErrorIs(t, err, ErrDeliveryFailed)

	_, err = svc.Tokens.Peek(ctx, "user@example.com", domain.TokenPasswordReset)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPasswordResetConfirmValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestReset(t)

	var verr *ValidationError
	require.ErrorAs(t, svc.Confirm(ctx, "tok", "short", "short"), &verr)
	require.Equal(t, "password", verr.Field)

	require.ErrorAs(t, svc.Confirm(ctx, "tok", "long-enough-1", "long-enough-2"), &verr)
	require.Equal(t, "confirmPassword", verr.Field)
}

func TestPasswordResetRejectsWrongKindToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, accounts, _ := newTestReset(t)
	accounts.add(domain.Account{ID: "acct-1", Email: "user@example.com", Type: "local"}, "pw")

	// A verification token must not reset a password.
	token, err := svc.Tokens.Issue(ctx, "user@example.com", domain.TokenEmailVerification,
		domain.TokenPayload{Email: "user@example.com"}, DefaultVerificationTTL)
	require.NoError(t, err)

	err = svc.Confirm(ctx, token, "new-password-1", "new-password-1")
	require.ErrorIs(t, err, ErrTokenKindMismatch)
}
