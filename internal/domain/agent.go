package domain

import "context"

// AgentKind is the closed set of investigation agent identities. Agent
// dispatch is keyed by kind; an unrecognized kind is a registration-time
// error, never a silent runtime default.
type AgentKind string

const (
	AgentNetwork AgentKind = "network"
	AgentDevice  AgentKind = "device"
	AgentLogs    AgentKind = "logs"
	AgentChain   AgentKind = "chain"
)

// KnownAgentKinds lists every kind the roster may contain, in priority order.
func KnownAgentKinds() []AgentKind {
	return []AgentKind{AgentNetwork, AgentDevice, AgentLogs, AgentChain}
}

// ValidAgentKind reports whether k names a known agent implementation.
func ValidAgentKind(k AgentKind) bool {
	switch k {
	case AgentNetwork, AgentDevice, AgentLogs, AgentChain:
		return true
	}
	return false
}

// AgentResult is one agent's contribution to an investigation.
type AgentResult struct {
	Kind       AgentKind      `json:"kind"`
	RiskScore  float64        `json:"risk_score"`
	Confidence float64        `json:"confidence"`
	Findings   []string       `json:"findings"`
	Domain     DomainResult   `json:"domain"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// Agent is one investigation specialist. Execute blocks until the agent has
// a result or ctx is done; implementations reach their backends through the
// resilient client and must not panic on backend failure.
type Agent interface {
	Kind() AgentKind
	Execute(ctx context.Context, req InvestigationRequest) (*AgentResult, error)
}
