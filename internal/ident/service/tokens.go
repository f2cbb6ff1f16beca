package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/pkg/cryptox"
	"github.com/oxkey/ident/pkg/idx"
	"github.com/oxkey/ident/pkg/slogx"
)

var (
	ErrTokenNotFound     = errors.New("ident: token not found")
	ErrTokenExpired      = errors.New("ident: token expired")
	ErrTokenKindMismatch = errors.New("ident: token kind mismatch")
)

// TokenService is the ephemeral single-use token store backing email
// verification, profile completion and password reset. Tokens are opaque
// random strings handed to the caller exactly once; rows hold only the
// fingerprint.
type TokenService struct {
	Store store.Store
}

// Issue generates a token for subject+kind and stores it with the given TTL.
// Any prior live token for the same subject and kind is superseded in the
// same transaction, so at most one verification token per address is ever
// redeemable.
func (s *TokenService) Issue(ctx context.Context, subject string, kind domain.TokenKind, payload domain.TokenPayload, ttl time.Duration) (string, error) {
	subject = normalizeSubject(subject)
	now := time.Now().UTC()

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	record := domain.EphemeralToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(opaque),
		Subject:   subject,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EphemeralTokens().DeleteTokensBySubject(ctx, subject, kind); err != nil {
			return err
		}
		return tx.EphemeralTokens().CreateToken(ctx, record)
	})
	if err != nil {
		return "", err
	}

	return opaque, nil
}

// Claim atomically consumes a token: under concurrent callers racing on the
// same value, exactly one Claim succeeds and the rest see ErrTokenNotFound.
// A live token of the wrong kind is reported as ErrTokenKindMismatch and left
// in place; an expired one is reported as ErrTokenExpired regardless of
// whether the sweeper got to it yet.
func (s *TokenService) Claim(ctx context.Context, token string, kind domain.TokenKind) (domain.TokenPayload, error) {
	hash := cryptox.FingerprintToken(token)
	now := time.Now().UTC()

	var (
		payload domain.TokenPayload
		expired bool
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		record, err := tx.EphemeralTokens().GetTokenByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		if record.Expired(now) {
			// Lazy expiry: the consuming delete must commit, so the
			// closure returns nil and the error is raised after.
			expired = true
			return tx.EphemeralTokens().DeleteToken(ctx, record.ID)
		}

		if record.Kind != kind {
			return ErrTokenKindMismatch
		}

		if err := tx.EphemeralTokens().DeleteToken(ctx, record.ID); err != nil {
			return err
		}

		payload = record.Payload
		return nil
	})
	if err != nil {
		return domain.TokenPayload{}, err
	}
	if expired {
		return domain.TokenPayload{}, ErrTokenExpired
	}

	slogx.FromContext(ctx).Debug("ephemeral token claimed", "kind", string(kind))
	return payload, nil
}

// Peek is a non-destructive lookup by subject, used for resend and status
// queries. It never extends or resets expiry.
func (s *TokenService) Peek(ctx context.Context, subject string, kind domain.TokenKind) (domain.EphemeralToken, error) {
	subject = normalizeSubject(subject)

	record, err := s.Store.EphemeralTokens().GetLatestTokenBySubject(ctx, subject, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EphemeralToken{}, ErrTokenNotFound
		}
		return domain.EphemeralToken{}, err
	}

	if record.Expired(time.Now().UTC()) {
		return domain.EphemeralToken{}, ErrTokenExpired
	}
	return record, nil
}

// Revoke removes all tokens for a subject; kind narrows to one flow when
// non-empty. Used on cancellation and when superseding across flows.
func (s *TokenService) Revoke(ctx context.Context, subject string, kind domain.TokenKind) error {
	return s.Store.EphemeralTokens().DeleteTokensBySubject(ctx, normalizeSubject(subject), kind)
}

func normalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
