package orchestrate

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"inquest/internal/domain"
	"inquest/internal/infra/metrics"
)

// agentBreaker isolates one agent's failures so a broken specialist cannot
// burn the retry budget of every later investigation. Instances are fully
// independent from the endpoint breakers inside the resilient client.
type agentBreaker struct {
	kind domain.AgentKind
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newAgentBreaker(kind domain.AgentKind, threshold uint32, recovery time.Duration, logger *slog.Logger, m *metrics.Metrics, onOpen func(domain.AgentKind)) *agentBreaker {
	name := "agent:" + string(kind)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("agent breaker state change",
				"agent", string(kind),
				"from", from.String(),
				"to", to.String())
			if m != nil {
				m.BreakerTransitions.WithLabelValues(name, breakerStateLabel(to)).Inc()
			}
			if to == gobreaker.StateOpen && onOpen != nil {
				onOpen(kind)
			}
		},
	}
	return &agentBreaker{
		kind: kind,
		cb:   gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
	}
}

// Allow reserves one execution slot. The caller must invoke the returned
// done callback with the outcome; a nil error means the agent may run.
func (b *agentBreaker) Allow() (func(bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, domain.NewSubSystemError("orchestrate", "agentBreaker.Allow", domain.ErrCircuitOpen, string(b.kind))
	}
	return done, nil
}

func breakerStateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return string(domain.BreakerOpen)
	case gobreaker.StateHalfOpen:
		return string(domain.BreakerHalfOpen)
	default:
		return string(domain.BreakerClosed)
	}
}
