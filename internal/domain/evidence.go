package domain

// ResultStatus tells whether a domain produced usable numeric evidence.
type ResultStatus string

const (
	StatusOK                   ResultStatus = "ok"
	StatusInsufficientEvidence ResultStatus = "insufficient_evidence"
)

// DomainResult is one investigation domain's typed finding, produced by the
// external result normalizer and validated exactly once on entry to the
// aggregator. Invariants after validation: Status=insufficient_evidence
// implies Score=nil; empty Signals implies Score=nil; Score and Confidence
// are within [0,1].
type DomainResult struct {
	Name          string            `json:"name"`
	Score         *float64          `json:"score,omitempty"`
	Status        ResultStatus      `json:"status"`
	Signals       []string          `json:"signals"`
	Confidence    float64           `json:"confidence"`
	Narrative     string            `json:"narrative,omitempty"`
	NarrativeOnly bool              `json:"narrative_only,omitempty"`
	Facts         map[string]string `json:"facts,omitempty"`
}

// CaseFacts are externally established, independently confirmed facts about
// the case under investigation. They are inputs to gating, never outputs.
type CaseFacts struct {
	ConfirmedFraud      bool   `json:"confirmed_fraud,omitempty"`
	ConfirmedChargeback bool   `json:"confirmed_chargeback,omitempty"`
	ManualOutcome       string `json:"manual_outcome,omitempty"`
}

// HardEvidence reports whether the facts independently confirm fraud.
func (f CaseFacts) HardEvidence() bool {
	return f.ConfirmedFraud || f.ConfirmedChargeback || f.ManualOutcome == "fraud"
}

// Gate is the evidence sufficiency decision.
type Gate string

const (
	GatePass  Gate = "pass"
	GateBlock Gate = "block"
)

// AggregateOutcome is the aggregator's verdict for one set of domain
// results. It is recomputed from inputs on every call and never persisted
// as ground truth.
type AggregateOutcome struct {
	PreGateAverage *float64 `json:"pre_gate_average,omitempty"`
	FinalRisk      *float64 `json:"final_risk,omitempty"`
	Gate           Gate     `json:"gate"`
}

// Float returns a pointer to v. Score fields distinguish "no score" from
// zero, so literals need an address.
func Float(v float64) *float64 { return &v }
