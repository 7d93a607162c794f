package verdict

import (
	"inquest/internal/domain"
)

// LegacyOutcome carries the legacy verdict plus whether it diverged from
// the gated Aggregate verdict for the same inputs.
type LegacyOutcome struct {
	domain.AggregateOutcome
	Diverged bool `json:"diverged,omitempty"`
}

// LegacyAggregate is the old permissive aggregation rule: it computes a
// final risk whenever at least one numeric domain exists, with no signal
// gating. Callers still on this path get their historical behavior, but any
// divergence from Aggregate is logged and flagged, never silently
// reconciled.
//
// Deprecated: use Aggregate. This exists only for callers of the
// pre-gating rule and will be removed once they migrate.
func (a *Aggregator) LegacyAggregate(domains []domain.DomainResult, facts domain.CaseFacts) LegacyOutcome {
	numeric, _ := a.partition(domains)

	var preGate *float64
	if len(numeric) > 0 {
		preGate = domain.Float(mean(numeric))
	}

	legacy := domain.AggregateOutcome{PreGateAverage: preGate, Gate: domain.GateBlock}
	switch {
	case facts.HardEvidence():
		final := fraudFloor
		if preGate != nil && *preGate > final {
			final = *preGate
		}
		legacy.Gate = domain.GatePass
		legacy.FinalRisk = domain.Float(final)
	case len(numeric) >= 1:
		legacy.Gate = domain.GatePass
		legacy.FinalRisk = domain.Float(*preGate)
	}

	out := LegacyOutcome{AggregateOutcome: legacy}
	if current := a.Aggregate(domains, facts); !sameOutcome(legacy, current) {
		out.Diverged = true
		a.logger.Warn("legacy aggregation diverged from gated verdict",
			"legacy_gate", legacy.Gate,
			"gated_gate", current.Gate,
			"legacy_final", logFloat(legacy.FinalRisk),
			"gated_final", logFloat(current.FinalRisk),
		)
	}
	return out
}

func sameOutcome(a, b domain.AggregateOutcome) bool {
	return a.Gate == b.Gate && sameFloat(a.FinalRisk, b.FinalRisk) && sameFloat(a.PreGateAverage, b.PreGateAverage)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func logFloat(v *float64) any {
	if v == nil {
		return "none"
	}
	return *v
}
