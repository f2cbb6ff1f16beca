package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/idx"
	"github.com/oxkey/ident/pkg/slogx"
)

var (
	ErrEmailTaken         = errors.New("ident: email already registered")
	ErrMaxRetriesExceeded = errors.New("ident: max retries exceeded")
	ErrCooldownActive     = errors.New("ident: retry cooldown active")
	ErrFlowNotFound       = errors.New("ident: signup flow not found")
)

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ident: validation failed on %s: %s", e.Field, e.Reason)
}

const (
	// DefaultVerificationTTL is how long an email verification link stays
	// redeemable.
	DefaultVerificationTTL = 24 * time.Hour

	// DefaultProfileTTL bounds the gap between clicking the verification
	// link and submitting the profile form.
	DefaultProfileTTL = time.Hour

	maxSendRetries = 3
	retryCooldown  = 5 * time.Second
)

// signupFlow is the in-memory per-email flow record. Durable progress lives
// in the token store; this only tracks phase and retry accounting, so a
// process restart simply forgets retries, it never loses a flow.
type signupFlow struct {
	ID          string
	Phase       SignupPhase
	CallbackURL string
	Retries     int
	LastSendAt  time.Time
}

// SignupService drives the multi-step email signup state machine.
type SignupService struct {
	Tokens    *TokenService
	Accounts  Accounts
	Email     EmailSender
	Sessions  *SessionService
	Issuer    *credx.Issuer
	AccessTTL time.Duration

	VerificationTTL time.Duration
	ProfileTTL      time.Duration

	mu    sync.Mutex
	flows map[string]*signupFlow
}

func NewSignupService(tokens *TokenService, accounts Accounts, email EmailSender, sessions *SessionService, issuer *credx.Issuer) *SignupService {
	return &SignupService{
		Tokens:          tokens,
		Accounts:        accounts,
		Email:           email,
		Sessions:        sessions,
		Issuer:          issuer,
		AccessTTL:       credx.DefaultAccessTTL,
		VerificationTTL: DefaultVerificationTTL,
		ProfileTTL:      DefaultProfileTTL,
		flows:           make(map[string]*signupFlow),
	}
}

func (s *SignupService) flow(email string) *signupFlow {
	f, ok := s.flows[email]
	if !ok {
		f = &signupFlow{ID: idx.New().String(), Phase: PhaseIdle}
		s.flows[email] = f
	}
	return f
}

// Phase reports the current phase of the flow for an email, PhaseIdle when
// no flow exists.
func (s *SignupService) Phase(email string) SignupPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flows[normalizeSubject(email)]; ok {
		return f.Phase
	}
	return PhaseIdle
}

// Start begins a signup flow: reject known or malformed emails, issue a
// verification token superseding any prior one, and send the verification
// email. A send failure revokes the token so no orphaned token outlives the
// failed step.
func (s *SignupService) Start(ctx context.Context, email, callbackURL string) error {
	email = normalizeSubject(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "email", Reason: "malformed address"}
	}

	taken, err := s.Accounts.Exists(ctx, email)
	if err != nil {
		return fmt.Errorf("ident: check email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}

	s.mu.Lock()
	f := s.flow(email)
	next, err := nextPhase(f.Phase, EventStart)
	if err != nil && f.Phase != PhaseCanceled && f.Phase != PhaseCompleted && f.Phase != PhaseFailed {
		// Restarting a live flow is allowed; the fresh token supersedes.
		next = PhaseEmailSending
		err = nil
	}
	if err != nil {
		// Terminal phases start over from scratch.
		f = &signupFlow{ID: idx.New().String(), Phase: PhaseEmailSending}
		s.flows[email] = f
		next = PhaseEmailSending
	}
	f.Phase = next
	f.CallbackURL = callbackURL
	flowID := f.ID
	s.mu.Unlock()

	return s.sendVerification(slogx.WithFlowID(ctx, flowID), email, callbackURL)
}

// Retry resends the verification email, bounded by maxSendRetries with a
// cooldown between sends. Exceeding either is terminal for the flow.
func (s *SignupService) Retry(ctx context.Context, email string) error {
	email = normalizeSubject(email)

	s.mu.Lock()
	f, ok := s.flows[email]
	if !ok {
		s.mu.Unlock()
		return ErrFlowNotFound
	}
	if f.Retries >= maxSendRetries {
		f.Phase = PhaseFailed
		s.mu.Unlock()
		return ErrMaxRetriesExceeded
	}
	if time.Since(f.LastSendAt) < retryCooldown {
		s.mu.Unlock()
		return ErrCooldownActive
	}
	next, err := nextPhase(f.Phase, EventRetry)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	f.Phase = next
	f.Retries++
	callbackURL := f.CallbackURL
	flowID := f.ID
	s.mu.Unlock()

	return s.sendVerification(slogx.WithFlowID(ctx, flowID), email, callbackURL)
}

func (s *SignupService) sendVerification(ctx context.Context, email, callbackURL string) error {
	token, err := s.Tokens.Issue(ctx, email, domain.TokenEmailVerification, domain.TokenPayload{
		Email: email,
	}, s.VerificationTTL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.flow(email).LastSendAt = time.Now()
	s.mu.Unlock()

	if err := s.Email.Send(ctx, email, TemplateEmailVerification, map[string]string{
		"token":        token,
		"callback_url": callbackURL,
	}); err != nil {
		// Do not leave a token that nobody can ever receive.
		if rerr := s.Tokens.Revoke(ctx, email, domain.TokenEmailVerification); rerr != nil {
			slogx.FromContext(ctx).Error("revoke orphaned verification token", "error", rerr)
		}
		s.transition(email, EventFail)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.transition(email, EventEmailSent)
	slogx.FromContext(ctx).Info("verification email sent", "email", email)
	return nil
}

// VerifyEmail claims the verification token and hands back a profile
// completion token bound to the now-verified email.
func (s *SignupService) VerifyEmail(ctx context.Context, token string) (string, error) {
	payload, err := s.Tokens.Claim(ctx, token, domain.TokenEmailVerification)
	if err != nil {
		return "", err
	}
	email := payload.Email

	s.transition(email, EventVerifyEmail)

	profileToken, err := s.Tokens.Issue(ctx, email, domain.TokenProfileCompletion, domain.TokenPayload{
		Email:         email,
		EmailVerified: true,
	}, s.ProfileTTL)
	if err != nil {
		s.transition(email, EventFail)
		return "", err
	}

	s.transition(email, EventEmailVerified)
	return profileToken, nil
}

// CompleteProfile validates the submitted profile, claims the profile token,
// creates the account and attaches it to the session as current.
func (s *SignupService) CompleteProfile(ctx context.Context, cookies CookieSink, sessionID, profileToken string, profile domain.Profile) (domain.Account, error) {
	if err := validateProfile(profile); err != nil {
		return domain.Account{}, err
	}

	payload, err := s.Tokens.Claim(ctx, profileToken, domain.TokenProfileCompletion)
	if err != nil {
		return domain.Account{}, err
	}
	email := payload.Email
	s.transition(email, EventCompleteProfile)

	profile.Email = email
	account, err := s.Accounts.Create(ctx, profile)
	if err != nil {
		s.transition(email, EventFail)
		return domain.Account{}, fmt.Errorf("ident: create account: %w", err)
	}

	access, err := s.Issuer.IssueAccess(account.ID, credx.AccountLocal, s.AccessTTL, "")
	if err != nil {
		s.transition(email, EventFail)
		return domain.Account{}, fmt.Errorf("ident: issue access credential: %w", err)
	}
	refresh, err := s.Issuer.IssueRefresh(account.ID, credx.AccountLocal, "")
	if err != nil {
		s.transition(email, EventFail)
		return domain.Account{}, fmt.Errorf("ident: issue refresh credential: %w", err)
	}

	if err := s.Sessions.AddAccount(ctx, cookies, sessionID, account.ID, access, refresh); err != nil {
		s.transition(email, EventFail)
		return domain.Account{}, err
	}

	s.transition(email, EventProfileDone)
	slogx.FromContext(ctx).Info("signup completed", "account_id", account.ID)
	return account, nil
}

// Cancel abandons the flow and revokes every outstanding token for the email.
func (s *SignupService) Cancel(ctx context.Context, email string) error {
	email = normalizeSubject(email)

	if err := s.Tokens.Revoke(ctx, email, domain.TokenEmailVerification); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	if err := s.Tokens.Revoke(ctx, email, domain.TokenProfileCompletion); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}

	s.mu.Lock()
	if f, ok := s.flows[email]; ok {
		if next, err := nextPhase(f.Phase, EventCancel); err == nil {
			f.Phase = next
		} else {
			delete(s.flows, email)
		}
	}
	s.mu.Unlock()
	return nil
}

// transition applies an event, ignoring ErrInvalidTransition: flow records
// are advisory in-memory state and must never veto durable token operations
// that already succeeded.
func (s *SignupService) transition(email string, event SignupEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flow(email)
	if next, err := nextPhase(f.Phase, event); err == nil {
		f.Phase = next
	}
}

func validateProfile(p domain.Profile) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return &ValidationError{Field: "firstName", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.LastName) == "" {
		return &ValidationError{Field: "lastName", Reason: "must not be empty"}
	}
	if len(p.Password) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if p.Password != p.ConfirmPassword {
		return &ValidationError{Field: "confirmPassword", Reason: "passwords do not match"}
	}
	if !p.AgreedToTerms {
		return &ValidationError{Field: "agreedToTerms", Reason: "terms must be accepted"}
	}
	return nil
}
