package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockoutArmsAtThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	guard := NewLockoutService(newTestStore(t), 5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))

		locked, err := guard.IsLocked(ctx, "user@example.com")
		require.NoError(t, err)
		require.False(t, locked, "not locked before the threshold")
	}

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))

	locked, err := guard.IsLocked(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	remaining, err := guard.TimeRemaining(ctx, "user@example.com")
	require.NoError(t, err)
	require.Greater(t, remaining, 14*time.Minute)
}

func TestLockoutSuccessResetsCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	guard := NewLockoutService(newTestStore(t), 5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))
	}
	require.NoError(t, guard.RecordSuccess(ctx, "user@example.com"))

	// Counter starts over; four more failures still do not lock.
	for i := 0; i < 4; i++ {
		require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))
	}
	locked, err := guard.IsLocked(ctx, "user@example.com")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestLockoutWindowLapses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	guard := NewLockoutService(newTestStore(t), 2, 10*time.Millisecond)

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))
	require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))

	locked, err := guard.IsLocked(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	time.Sleep(20 * time.Millisecond)

	locked, err = guard.IsLocked(ctx, "user@example.com")
	require.NoError(t, err)
	require.False(t, locked, "lapsed window unlocks")

	// Lazy reset: one failure after the window does not immediately re-lock.
	require.NoError(t, guard.RecordFailure(ctx, "user@example.com"))
	locked, err = guard.IsLocked(ctx, "user@example.com")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestLockoutIdentitiesAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	guard := NewLockoutService(newTestStore(t), 2, 15*time.Minute)

	require.NoError(t, guard.RecordFailure(ctx, "a@example.com"))
	require.NoError(t, guard.RecordFailure(ctx, "a@example.com"))

	locked, err := guard.IsLocked(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	locked, err = guard.IsLocked(ctx, "b@example.com")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestLockoutAllowThrottlesBursts(t *testing.T) {
	t.Parallel()

	guard := NewLockoutService(newTestStore(t), 5, 15*time.Minute)

	var denied bool
	for i := 0; i < 50; i++ {
		if !guard.Allow("burst@example.com") {
			denied = true
			break
		}
	}
	require.True(t, denied, "sustained burst must eventually throttle")

	require.True(t, guard.Allow("other@example.com"), "throttle is keyed per identity")
}
