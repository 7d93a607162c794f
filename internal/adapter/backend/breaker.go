package backend

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"inquest/internal/domain"
	"inquest/internal/infra/metrics"
)

const (
	// breakerInterval is the closed-state window after which the failure
	// counts reset. Failures must be consecutive within this window to trip.
	breakerInterval = 60 * time.Second

	defaultRecoveryTimeout = 30 * time.Second
)

// Breaker guards a single endpoint. Trips open after CircuitThreshold
// consecutive failures, fails fast while open, and allows exactly one probe
// once the recovery timeout elapses. Failures elsewhere never affect this
// breaker; each endpoint owns its own instance.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]

	threshold uint32
	recovery  time.Duration

	mu            sync.Mutex
	lastFailureAt time.Time
}

// BreakerNotifyFunc observes open transitions for alerting. May be nil.
type BreakerNotifyFunc func(name string, from, to domain.BreakerState)

// NewBreaker builds the per-endpoint circuit breaker. threshold is the
// consecutive-failure trip count, recovery the open-state cooldown.
func NewBreaker(name string, threshold uint32, recovery time.Duration, logger *slog.Logger, m *metrics.Metrics, notify BreakerNotifyFunc) *Breaker {
	if recovery <= 0 {
		recovery = defaultRecoveryTimeout
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		recovery:  recovery,
	}

	settings := gobreaker.Settings{
		Name:        "endpoint:" + name,
		MaxRequests: 1, // a single probe in half-open state
		Interval:    breakerInterval,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			fromState := breakerStateOf(from)
			toState := breakerStateOf(to)
			logger.Warn("circuit breaker state change",
				"breaker", cbName,
				"from", string(fromState),
				"to", string(toState),
			)
			if m != nil {
				m.BreakerTransitions.WithLabelValues(name, string(toState)).Inc()
			}
			if notify != nil {
				notify(name, fromState, toState)
			}
		},
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
	return b
}

// Allow asks the breaker whether a call may proceed. While open (and the
// cooldown has not elapsed) it returns ErrCircuitOpen without touching the
// endpoint. Otherwise it returns a done callback the caller must invoke with
// the call outcome.
func (b *Breaker) Allow() (done func(success bool), err error) {
	inner, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewSubSystemError("backend", "Breaker.Allow", domain.ErrCircuitOpen, b.name)
		}
		return nil, domain.NewSubSystemError("backend", "Breaker.Allow", err, b.name)
	}
	return func(success bool) {
		if !success {
			b.mu.Lock()
			b.lastFailureAt = time.Now()
			b.mu.Unlock()
		}
		inner(success)
	}, nil
}

// State reports the current breaker state.
func (b *Breaker) State() domain.BreakerState {
	return breakerStateOf(b.cb.State())
}

// Snapshot returns the observable breaker state for status reporting.
func (b *Breaker) Snapshot() domain.CircuitBreakerState {
	b.mu.Lock()
	lastFailure := b.lastFailureAt
	b.mu.Unlock()

	counts := b.cb.Counts()
	return domain.CircuitBreakerState{
		State:           breakerStateOf(b.cb.State()),
		FailureCount:    counts.ConsecutiveFailures,
		Threshold:       b.threshold,
		LastFailureAt:   lastFailure,
		RecoveryTimeout: b.recovery,
	}
}

func breakerStateOf(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}
