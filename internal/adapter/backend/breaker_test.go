package backend

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

func TestBreakerPassesThroughWhileClosed(t *testing.T) {
	br := NewBreaker("ep", 3, time.Second, slog.Default(), nil, nil)

	done, err := br.Allow()
	require.NoError(t, err)
	done(true)

	assert.Equal(t, domain.BreakerClosed, br.State())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	br := NewBreaker("ep", 3, time.Second, slog.Default(), nil, nil)

	for i := 0; i < 3; i++ {
		done, err := br.Allow()
		require.NoError(t, err)
		done(false)
	}
	assert.Equal(t, domain.BreakerOpen, br.State())

	_, err := br.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	br := NewBreaker("ep", 3, time.Second, slog.Default(), nil, nil)

	for i := 0; i < 2; i++ {
		done, err := br.Allow()
		require.NoError(t, err)
		done(false)
	}
	done, err := br.Allow()
	require.NoError(t, err)
	done(true)

	// Two more failures must not trip: the success reset the streak.
	for i := 0; i < 2; i++ {
		done, err := br.Allow()
		require.NoError(t, err)
		done(false)
	}
	assert.Equal(t, domain.BreakerClosed, br.State())
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	br := NewBreaker("ep", 1, 50*time.Millisecond, slog.Default(), nil, nil)

	done, err := br.Allow()
	require.NoError(t, err)
	done(false)
	assert.Equal(t, domain.BreakerOpen, br.State())

	// Wait for the half-open transition.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, domain.BreakerHalfOpen, br.State())

	done, err = br.Allow()
	require.NoError(t, err)
	done(true)
	assert.Equal(t, domain.BreakerClosed, br.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	br := NewBreaker("ep", 1, 50*time.Millisecond, slog.Default(), nil, nil)

	done, err := br.Allow()
	require.NoError(t, err)
	done(false)

	time.Sleep(100 * time.Millisecond)

	done, err = br.Allow()
	require.NoError(t, err)
	done(false)
	assert.Equal(t, domain.BreakerOpen, br.State())
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	br := NewBreaker("ep", 1, 50*time.Millisecond, slog.Default(), nil, nil)

	done, err := br.Allow()
	require.NoError(t, err)
	done(false)

	time.Sleep(100 * time.Millisecond)

	// First probe slot is granted; a second concurrent one is refused.
	_, err = br.Allow()
	require.NoError(t, err)

	_, err = br.Allow()
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
}

func TestBreakerSnapshot(t *testing.T) {
	br := NewBreaker("ep", 5, 45*time.Second, slog.Default(), nil, nil)

	done, err := br.Allow()
	require.NoError(t, err)
	done(false)

	snap := br.Snapshot()
	assert.Equal(t, domain.BreakerClosed, snap.State)
	assert.Equal(t, uint32(1), snap.FailureCount)
	assert.Equal(t, uint32(5), snap.Threshold)
	assert.Equal(t, 45*time.Second, snap.RecoveryTimeout)
	assert.False(t, snap.LastFailureAt.IsZero())
}

func TestBreakerNotifyOnOpen(t *testing.T) {
	var mu sync.Mutex
	var transitions []domain.BreakerState

	notify := func(name string, from, to domain.BreakerState) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "ep", name)
		transitions = append(transitions, to)
	}

	br := NewBreaker("ep", 1, time.Second, slog.Default(), nil, notify)

	done, err := br.Allow()
	require.NoError(t, err)
	done(false)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, transitions)
	assert.Equal(t, domain.BreakerOpen, transitions[0])
}

func TestBreakerDefaultRecovery(t *testing.T) {
	br := NewBreaker("ep", 1, 0, slog.Default(), nil, nil)
	assert.Equal(t, defaultRecoveryTimeout, br.Snapshot().RecoveryTimeout)
}
