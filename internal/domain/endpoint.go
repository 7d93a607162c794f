package domain

import (
	"time"
)

// Transport selects the wire mechanism used to reach a backend endpoint.
type Transport string

const (
	TransportHTTP   Transport = "http"
	TransportStream Transport = "stream"
)

// Endpoint describes one registered backend analysis service. Endpoints are
// registered once at startup and are immutable afterwards except for the
// Enabled flag, which the registry flips under its own lock.
type Endpoint struct {
	Name             string        `json:"name"              yaml:"name"`
	Address          string        `json:"address"           yaml:"address"`
	Transport        Transport     `json:"transport"         yaml:"transport"`
	Timeout          time.Duration `json:"timeout"           yaml:"timeout"`
	MaxRetries       int           `json:"max_retries"       yaml:"max_retries"`
	Priority         int           `json:"priority"          yaml:"priority"`
	Enabled          bool          `json:"enabled"           yaml:"enabled"`
	CircuitThreshold uint32        `json:"circuit_threshold" yaml:"circuit_threshold"`
	APIKeyRef        string        `json:"api_key_ref,omitempty" yaml:"api_key_ref,omitempty"`
}

// ConnectionState tracks where a pooled handle is in its lifecycle.
type ConnectionState string

const (
	ConnIdle   ConnectionState = "idle"
	ConnActive ConnectionState = "active"
	ConnClosed ConnectionState = "closed"
)

// ConnectionMetrics is the pool's bookkeeping for one handle. Only the pool
// mutates it; snapshots handed out elsewhere are copies.
type ConnectionMetrics struct {
	ID           string          `json:"id"`
	EndpointName string          `json:"endpoint_name"`
	State        ConnectionState `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsedAt   time.Time       `json:"last_used_at"`
	RequestCount int64           `json:"request_count"`
	ErrorCount   int64           `json:"error_count"`
	LastError    string          `json:"last_error,omitempty"`
}

// BreakerState is the circuit breaker's externally observable state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerState is a read-only snapshot of one endpoint's breaker.
type CircuitBreakerState struct {
	State           BreakerState  `json:"state"`
	FailureCount    uint32        `json:"failure_count"`
	Threshold       uint32        `json:"threshold"`
	LastFailureAt   time.Time     `json:"last_failure_at,omitzero"`
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
}

// CallResult is the structured outcome of one resilient client call.
// Failed calls are returned as a value with Success=false, not as a panic;
// Err carries the classified failure for the caller's decision making.
type CallResult struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Err           string         `json:"error,omitempty"`
	ErrCode       ErrorCode      `json:"error_code,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Cached        bool           `json:"cached"`
	EndpointName  string         `json:"endpoint_name"`
}

// EndpointStats is the per-endpoint rolling call ledger kept by the client.
type EndpointStats struct {
	EndpointName  string        `json:"endpoint_name"`
	Requests      int64         `json:"requests"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	MeanLatency   time.Duration `json:"mean_latency"`
	LastUpdatedAt time.Time     `json:"last_updated_at,omitzero"`
}
