package domain

import (
	"context"
	"time"
)

// Strategy is the execution plan shape for one investigation.
type Strategy string

const (
	StrategyComprehensive Strategy = "comprehensive"
	StrategySequential    Strategy = "sequential"
	StrategyAdaptive      Strategy = "adaptive"
	StrategyCriticalPath  Strategy = "critical_path"
)

// Parallel reports whether the strategy launches its agents concurrently.
func (s Strategy) Parallel() bool {
	return s == StrategyComprehensive || s == StrategyAdaptive
}

// InvestigationRequest is the orchestrator's input.
type InvestigationRequest struct {
	InvestigationID string            `json:"investigation_id"`
	EntityType      string            `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	Context         map[string]string `json:"context,omitempty"`
}

// OrchestrationDecision is the plan for one investigation. Produced once
// during the planning phase and read-only thereafter.
type OrchestrationDecision struct {
	Strategy               Strategy      `json:"strategy"`
	AgentsToActivate       []AgentKind   `json:"agents_to_activate"`
	ExecutionOrder         []AgentKind   `json:"execution_order"`
	ConfidenceScore        float64       `json:"confidence_score"`
	Reasoning              string        `json:"reasoning"`
	EstimatedDuration      time.Duration `json:"estimated_duration"`
	RiskAssessment         string        `json:"risk_assessment"`
	ResilienceRequirements []string      `json:"resilience_requirements,omitempty"`
}

// AgentHandoff is one append-only audit record of control passing from the
// orchestrator to an agent.
type AgentHandoff struct {
	ID         string    `json:"id"`
	FromAgent  string    `json:"from_agent"`
	ToAgent    string    `json:"to_agent"`
	ContextRef string    `json:"context_ref"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
}

// ConsolidatedResult is the orchestrator's outward contract: every
// investigation returns this shape, including total internal failure.
type ConsolidatedResult struct {
	InvestigationID    string            `json:"investigation_id"`
	AgentsExecuted     []string          `json:"agents_executed"`
	SuccessfulAgents   []string          `json:"successful_agents"`
	FailedAgents       []string          `json:"failed_agents"`
	KeyFindings        []string          `json:"key_findings"`
	RiskScore          float64           `json:"risk_score"`
	ConfidenceScore    float64           `json:"confidence_score"`
	HandoffCount       int               `json:"handoff_count"`
	HandoffSuccessRate float64           `json:"handoff_success_rate"`
	RecoveryActions    []string          `json:"recovery_actions,omitempty"`
	Fallback           bool              `json:"fallback,omitempty"`
	Domains            []DomainResult    `json:"domains,omitempty"`
	Verdict            *AggregateOutcome `json:"verdict,omitempty"`
	Duration           time.Duration     `json:"duration"`
}

// HandoffRecorder persists the append-only handoff trail. Implementations
// must tolerate concurrent appends from parallel agent launches.
type HandoffRecorder interface {
	Append(ctx context.Context, h AgentHandoff) error
	List(ctx context.Context, investigationID string) ([]AgentHandoff, error)
}

// InvestigationStore persists finished investigations for audit.
type InvestigationStore interface {
	HandoffRecorder
	SaveResult(ctx context.Context, res ConsolidatedResult) error
	Close() error
}
