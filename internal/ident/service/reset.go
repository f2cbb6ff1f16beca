package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/pkg/slogx"
)

// DefaultResetTTL is how long a password reset link stays redeemable.
const DefaultResetTTL = 30 * time.Minute

// PasswordResetService drives the forgot-password flow on top of the
// ephemeral token store.
type PasswordResetService struct {
	Tokens   *TokenService
	Accounts Accounts
	Email    EmailSender

	ResetTTL time.Duration
}

// Request issues a reset token and emails it. An unknown email is a silent
// no-op so the endpoint cannot be used to enumerate accounts. A send failure
// revokes the token.
func (s *PasswordResetService) Request(ctx context.Context, email, callbackURL string) error {
	email = normalizeSubject(email)

	account, err := s.Accounts.FindByIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			slogx.FromContext(ctx).Debug("password reset for unknown email ignored")
			return nil
		}
		return err
	}

	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}

	token, err := s.Tokens.Issue(ctx, email, domain.TokenPasswordReset, domain.TokenPayload{
		Email:     email,
		AccountID: account.ID,
	}, ttl)
	if err != nil {
		return err
	}

	if err := s.Email.Send(ctx, email, TemplatePasswordReset, map[string]string{
		"token":        token,
		"callback_url": callbackURL,
	}); err != nil {
		if rerr := s.Tokens.Revoke(ctx, email, domain.TokenPasswordReset); rerr != nil {
			slogx.FromContext(ctx).Error("revoke orphaned reset token", "error", rerr)
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	slogx.FromContext(ctx).Info("password reset email sent", "account_id", account.ID)
	return nil
}

// Confirm claims the reset token and sets the new password.
func (s *PasswordResetService) Confirm(ctx context.Context, token, password, confirmPassword string) error {
	if len(password) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if password != confirmPassword {
		return &ValidationError{Field: "confirmPassword", Reason: "passwords do not match"}
	}

	payload, err := s.Tokens.Claim(ctx, token, domain.TokenPasswordReset)
	if err != nil {
		return err
	}

	if err := s.Accounts.SetPassword(ctx, payload.AccountID, password); err != nil {
		return fmt.Errorf("ident: set password: %w", err)
	}

	slogx.FromContext(ctx).Info("password reset completed", "account_id", payload.AccountID)
	return nil
}
