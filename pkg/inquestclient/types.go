package inquestclient

import (
	"encoding/json"
	"time"
)

type frameType string

const (
	frameTypeRequest  frameType = "request"
	frameTypeResponse frameType = "response"
	frameTypeEvent    frameType = "event"
)

// frame is the gateway's wire envelope. A request carries method and
// payload, the response echoes the id, and event frames are unsolicited
// pushes with no id.
type frame struct {
	Type    frameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// InvestigationRequest asks the coordinator to investigate one entity.
// InvestigationID may be left empty; the server assigns one.
type InvestigationRequest struct {
	InvestigationID string            `json:"investigation_id,omitempty"`
	EntityType      string            `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	Context         map[string]string `json:"context,omitempty"`
}

// ResultStatus values reported per evidence domain.
const (
	StatusOK                   = "ok"
	StatusInsufficientEvidence = "insufficient_evidence"
)

// DomainResult is one agent's normalized evidence for its domain.
type DomainResult struct {
	Name          string            `json:"name"`
	Score         *float64          `json:"score,omitempty"`
	Status        string            `json:"status"`
	Signals       []string          `json:"signals"`
	Confidence    float64           `json:"confidence"`
	Narrative     string            `json:"narrative,omitempty"`
	NarrativeOnly bool              `json:"narrative_only,omitempty"`
	Facts         map[string]string `json:"facts,omitempty"`
}

// Gate reports whether the aggregated evidence was sufficient to publish
// a final risk.
type Gate string

const (
	GatePass  Gate = "pass"
	GateBlock Gate = "block"
)

// Verdict is the evidence aggregation outcome attached to a result.
// FinalRisk is nil when the gate blocked.
type Verdict struct {
	PreGateAverage *float64 `json:"pre_gate_average,omitempty"`
	FinalRisk      *float64 `json:"final_risk,omitempty"`
	Gate           Gate     `json:"gate"`
}

// InvestigationResult is the consolidated outcome of one investigation.
// The server always returns one, even when every agent failed.
type InvestigationResult struct {
	InvestigationID    string         `json:"investigation_id"`
	AgentsExecuted     []string       `json:"agents_executed"`
	SuccessfulAgents   []string       `json:"successful_agents"`
	FailedAgents       []string       `json:"failed_agents"`
	KeyFindings        []string       `json:"key_findings"`
	RiskScore          float64        `json:"risk_score"`
	ConfidenceScore    float64        `json:"confidence_score"`
	HandoffCount       int            `json:"handoff_count"`
	HandoffSuccessRate float64        `json:"handoff_success_rate"`
	RecoveryActions    []string       `json:"recovery_actions,omitempty"`
	Fallback           bool           `json:"fallback,omitempty"`
	Domains            []DomainResult `json:"domains,omitempty"`
	Verdict            *Verdict       `json:"verdict,omitempty"`
	Duration           time.Duration  `json:"duration"`
}

// Handoff is one recorded agent handoff in an investigation's audit trail.
type Handoff struct {
	ID         string    `json:"id"`
	FromAgent  string    `json:"from_agent"`
	ToAgent    string    `json:"to_agent"`
	ContextRef string    `json:"context_ref"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
}

// BackendCall invokes a single backend operation directly, bypassing the
// agent layer but keeping the resilience pipeline.
type BackendCall struct {
	Endpoint        string         `json:"endpoint"`
	Operation       string         `json:"operation"`
	Params          map[string]any `json:"params,omitempty"`
	UseCache        bool           `json:"use_cache,omitempty"`
	CacheTTLSeconds int            `json:"cache_ttl_seconds,omitempty"`
}

// BackendResult is the structured outcome of a backend call. A failed
// call is a result with Success false and a classified error code, not
// an RPC error.
type BackendResult struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Err           string         `json:"error,omitempty"`
	ErrCode       string         `json:"error_code,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Cached        bool           `json:"cached"`
	EndpointName  string         `json:"endpoint_name"`
}

// Endpoint is one registered backend endpoint.
type Endpoint struct {
	Name             string        `json:"name"`
	Address          string        `json:"address"`
	Transport        string        `json:"transport"`
	Timeout          time.Duration `json:"timeout"`
	MaxRetries       int           `json:"max_retries"`
	Priority         int           `json:"priority"`
	Enabled          bool          `json:"enabled"`
	CircuitThreshold uint32        `json:"circuit_threshold"`
	APIKeyRef        string        `json:"api_key_ref,omitempty"`
}

// CacheInvalidation selects cached responses to drop: a whole endpoint,
// one operation, or one exact call.
type CacheInvalidation struct {
	Endpoint  string         `json:"endpoint"`
	Operation string         `json:"operation,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// BreakerState values reported per endpoint.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker is an endpoint circuit breaker's observable state.
type Breaker struct {
	State           BreakerState  `json:"state"`
	FailureCount    uint32        `json:"failure_count"`
	Threshold       uint32        `json:"threshold"`
	LastFailureAt   time.Time     `json:"last_failure_at,omitzero"`
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
}

// EndpointStats is the rolling call ledger for one endpoint.
type EndpointStats struct {
	EndpointName  string        `json:"endpoint_name"`
	Requests      int64         `json:"requests"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	MeanLatency   time.Duration `json:"mean_latency"`
	LastUpdatedAt time.Time     `json:"last_updated_at,omitzero"`
}

// EndpointStatus is one endpoint's health at a glance.
type EndpointStatus struct {
	Name      string        `json:"name"`
	Transport string        `json:"transport"`
	Priority  int           `json:"priority"`
	Enabled   bool          `json:"enabled"`
	Breaker   Breaker       `json:"breaker"`
	Stats     EndpointStats `json:"stats"`
}

// ServiceInfo holds process overview info.
type ServiceInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Status is the full service status snapshot.
type Status struct {
	Service   ServiceInfo      `json:"service"`
	Endpoints []EndpointStatus `json:"endpoints"`
	Clients   int64            `json:"clients"`
}

// Alert kinds pushed by the server.
const (
	AlertBreakerOpened         = "breaker_opened"
	AlertInvestigationFellBack = "investigation_fell_back"
	AlertEndpointDisabled      = "endpoint_disabled"
)

// Alert is an operator notification pushed as an event frame.
type Alert struct {
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject"`
	Detail    string            `json:"detail"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
