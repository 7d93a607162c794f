package verdict

import (
	"fmt"

	"inquest/internal/domain"
)

// Normalizer converts one agent's raw backend payload into a typed domain
// result. Implementations are external collaborators and may fail; callers
// go through SafeNormalize so a failure degrades instead of propagating.
type Normalizer interface {
	Normalize(kind domain.AgentKind, payload map[string]any) (domain.DomainResult, error)
}

// MapNormalizer is the default Normalizer for backends that already speak
// the conventional result shape: a field-mapping pass with the same safe
// defaults Normalize applies.
type MapNormalizer struct{}

func (MapNormalizer) Normalize(kind domain.AgentKind, payload map[string]any) (domain.DomainResult, error) {
	if payload == nil {
		return domain.DomainResult{}, fmt.Errorf("normalize %s: empty payload", kind)
	}
	r := normalizeOne(payload)
	if r.Name == "" {
		r.Name = string(kind)
	}
	return r, nil
}

var _ Normalizer = MapNormalizer{}

// SafeNormalize runs the normalizer and degrades any failure, including a
// panic inside the implementation, to an insufficient-evidence result named
// after the agent. The aggregator never sees a normalizer crash.
func SafeNormalize(n Normalizer, kind domain.AgentKind, payload map[string]any) (result domain.DomainResult) {
	degraded := domain.DomainResult{
		Name:    string(kind),
		Status:  domain.StatusInsufficientEvidence,
		Signals: []string{},
	}
	if n == nil {
		return degraded
	}

	defer func() {
		if recover() != nil {
			result = degraded
		}
	}()

	r, err := n.Normalize(kind, payload)
	if err != nil {
		return degraded
	}
	if r.Name == "" {
		r.Name = string(kind)
	}
	return r
}
