package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/pkg/slogx"
	"golang.org/x/time/rate"
)

var (
	ErrAccountLocked   = errors.New("ident: account locked")
	ErrTooManyAttempts = errors.New("ident: too many attempts")
)

// Lockout defaults. Five straight failures lock the identity out for the
// window; the keyed limiter additionally throttles attempt bursts the way an
// auth endpoint's strict rate profile would.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// LockoutService is the per-identity login attempt guard. The durable counter
// lives in the store keyed by the typed identity (email or username), because
// lockout must apply before the account is even resolved. The in-memory
// limiter map is best-effort burst protection and resets on restart.
type LockoutService struct {
	Store     store.Store
	Threshold int
	Window    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLockoutService builds a guard with the given threshold and lockout
// window; zero values fall back to the defaults.
func NewLockoutService(st store.Store, threshold int, window time.Duration) *LockoutService {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &LockoutService{
		Store:     st,
		Threshold: threshold,
		Window:    window,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the identity may attempt a login right now. This is
// the burst throttle, separate from the durable lockout counter.
func (s *LockoutService) Allow(identity string) bool {
	identity = normalizeSubject(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[identity]
	if !ok {
		// Burst sits above the lockout threshold so a failure streak hits
		// the durable lockout, not the throttle.
		burst := 3 * s.Threshold
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(burst)), burst)
		s.limiters[identity] = l
	}
	return l.Allow()
}

// RecordFailure bumps the failure counter; at the threshold it arms the
// lockout window. A failure while already locked does not extend the window.
func (s *LockoutService) RecordFailure(ctx context.Context, identity string) error {
	identity = normalizeSubject(identity)
	now := time.Now().UTC()

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.LoginAttempts().GetAttempt(ctx, identity)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			rec = domain.LoginAttemptRecord{Identity: identity}
		}

		if rec.Locked(now) {
			return nil
		}
		if rec.LockedUntil != nil {
			// Lockout window has passed; counter starts over.
			rec.FailureCount = 0
			rec.LockedUntil = nil
		}

		rec.FailureCount++
		if rec.FailureCount >= s.Threshold {
			until := now.Add(s.Window)
			rec.LockedUntil = &until
			slogx.FromContext(ctx).Warn("identity locked out",
				"identity", identity, "failures", rec.FailureCount, "until", until)
		}
		rec.UpdatedAt = now

		return tx.LoginAttempts().UpsertAttempt(ctx, rec)
	})
}

// RecordSuccess clears the failure counter for the identity.
func (s *LockoutService) RecordSuccess(ctx context.Context, identity string) error {
	return s.Store.LoginAttempts().DeleteAttempt(ctx, normalizeSubject(identity))
}

// IsLocked reports whether the identity is inside its lockout window. It must
// be consulted before any credential check: a correct password during lockout
// still fails. A window that has lapsed lazily resets the counter.
func (s *LockoutService) IsLocked(ctx context.Context, identity string) (bool, error) {
	identity = normalizeSubject(identity)
	now := time.Now().UTC()

	rec, err := s.Store.LoginAttempts().GetAttempt(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if rec.Locked(now) {
		return true, nil
	}
	if rec.LockedUntil != nil {
		// Window passed; reset so the next failure starts a fresh count.
		if err := s.Store.LoginAttempts().DeleteAttempt(ctx, identity); err != nil {
			return false, err
		}
	}
	return false, nil
}

// TimeRemaining returns how long the identity stays locked, or zero when it
// is not locked.
func (s *LockoutService) TimeRemaining(ctx context.Context, identity string) (time.Duration, error) {
	rec, err := s.Store.LoginAttempts().GetAttempt(ctx, normalizeSubject(identity))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if rec.LockedUntil == nil {
		return 0, nil
	}
	remaining := time.Until(*rec.LockedUntil)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
