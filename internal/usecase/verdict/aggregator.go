package verdict

import (
	"log/slog"

	"inquest/internal/domain"
)

// fraudFloor is the minimum final risk once independently confirmed fraud
// exists. Weak or missing domain scores cannot pull the verdict below it.
const fraudFloor = 0.60

// Aggregator is the single authority for turning per-domain findings into a
// final risk verdict. It holds no mutable state; every method is reentrant
// and, except for the deprecated legacy path's divergence warning, performs
// no I/O.
type Aggregator struct {
	logger *slog.Logger
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Normalize fills missing fields of raw per-domain payloads with safe
// defaults: status is OK when a score is present and insufficient_evidence
// otherwise, signals default to empty, confidence defaults to zero. It never
// panics on missing or oddly typed keys.
func (a *Aggregator) Normalize(raw []map[string]any) []domain.DomainResult {
	out := make([]domain.DomainResult, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizeOne(m))
	}
	return out
}

func normalizeOne(m map[string]any) domain.DomainResult {
	r := domain.DomainResult{
		Name:       stringField(m, "name", "domain"),
		Signals:    stringSlice(m["signals"]),
		Confidence: clamp01(floatField(m, "confidence")),
		Narrative:  stringField(m, "narrative", "summary"),
	}
	if v, ok := numberValue(m["score"]); ok {
		r.Score = domain.Float(v)
	}
	if b, ok := m["narrative_only"].(bool); ok {
		r.NarrativeOnly = b
	}
	r.Facts = stringMap(m["facts"])

	switch stringField(m, "status") {
	case string(domain.StatusOK):
		r.Status = domain.StatusOK
	case string(domain.StatusInsufficientEvidence):
		r.Status = domain.StatusInsufficientEvidence
	default:
		if r.Score != nil {
			r.Status = domain.StatusOK
		} else {
			r.Status = domain.StatusInsufficientEvidence
		}
	}
	return r
}

// Validate enforces the result invariants, in order: insufficient evidence
// clears the score; the score is clamped to [0,1]; empty signals clear the
// score and force insufficient evidence; confidence is clamped to [0,1].
// The returned copy is the only validated form; inputs are never mutated.
func (a *Aggregator) Validate(r domain.DomainResult) domain.DomainResult {
	if r.Status == domain.StatusInsufficientEvidence {
		r.Score = nil
	}
	if r.Score != nil {
		r.Score = domain.Float(clamp01(*r.Score))
	}
	if len(r.Signals) == 0 {
		r.Score = nil
		r.Status = domain.StatusInsufficientEvidence
	}
	r.Confidence = clamp01(r.Confidence)
	return r
}

// Aggregate computes the authoritative verdict for one set of domain
// results. Inputs are validated on entry. Numeric evidence is the scores of
// OK, non-narrative-only domains; the signal count spans all domains.
// Independently confirmed fraud passes the gate unconditionally and applies
// the fraud floor. Otherwise the gate passes only with at least two numeric
// domains, or one numeric domain backed by at least two signals; a blocked
// gate yields no final risk. Pure: identical inputs always produce the same
// outcome.
func (a *Aggregator) Aggregate(domains []domain.DomainResult, facts domain.CaseFacts) domain.AggregateOutcome {
	numeric, signalCount := a.partition(domains)

	var preGate *float64
	if len(numeric) > 0 {
		preGate = domain.Float(mean(numeric))
	}

	if facts.HardEvidence() {
		final := fraudFloor
		if preGate != nil && *preGate > final {
			final = *preGate
		}
		return domain.AggregateOutcome{
			PreGateAverage: preGate,
			FinalRisk:      domain.Float(final),
			Gate:           domain.GatePass,
		}
	}

	enough := len(numeric) >= 2 || (len(numeric) >= 1 && signalCount >= 2)
	out := domain.AggregateOutcome{PreGateAverage: preGate, Gate: domain.GateBlock}
	if enough {
		out.Gate = domain.GatePass
		out.FinalRisk = domain.Float(*preGate)
	}
	return out
}

func (a *Aggregator) partition(domains []domain.DomainResult) (numeric []float64, signalCount int) {
	for i := range domains {
		d := a.Validate(domains[i])
		signalCount += len(d.Signals)
		if d.Status == domain.StatusOK && d.Score != nil && !d.NarrativeOnly {
			numeric = append(numeric, *d.Score)
		}
	}
	return numeric, signalCount
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	v, _ := numberValue(m[key])
	return v
}

// numberValue accepts the numeric shapes JSON decoding and hand-built
// payloads actually produce.
func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return []string{}
	}
}

func stringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		if len(m) == 0 {
			return nil
		}
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
