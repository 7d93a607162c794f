package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"inquest/internal/domain"
)

const (
	serviceName    = "inquest"
	serviceVersion = "1.0.0"
)

// StatusResponse is the body returned by GET /api/v1/status and the
// status.get RPC method.
type StatusResponse struct {
	Service   ServiceStatus    `json:"service"`
	Endpoints []EndpointStatus `json:"endpoints"`
	Clients   int64            `json:"clients"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// EndpointStatus is one endpoint's health at a glance: registration,
// breaker state, and the rolling call ledger.
type EndpointStatus struct {
	Name      string                     `json:"name"`
	Transport domain.Transport           `json:"transport"`
	Priority  int                        `json:"priority"`
	Enabled   bool                       `json:"enabled"`
	Breaker   domain.CircuitBreakerState `json:"breaker"`
	Stats     domain.EndpointStats       `json:"stats"`
}

func statusSnapshot(deps HandlerDeps, s *Server, startTime time.Time) StatusResponse {
	endpoints := deps.Backends.Registry().List()
	statuses := make([]EndpointStatus, 0, len(endpoints))
	for _, ep := range endpoints {
		status := EndpointStatus{
			Name:      ep.Name,
			Transport: ep.Transport,
			Priority:  ep.Priority,
			Enabled:   ep.Enabled,
			Breaker:   deps.Backends.BreakerSnapshot(ep.Name),
		}
		if stats, ok := deps.Backends.Stats(ep.Name); ok {
			status.Stats = stats
		}
		statuses = append(statuses, status)
	}

	return StatusResponse{
		Service: ServiceStatus{
			Name:          serviceName,
			Version:       serviceVersion,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		},
		Endpoints: statuses,
		Clients:   s.ClientCount(),
	}
}

// RegisterStatusRoutes adds the plain HTTP observability routes.
// Must be called before Start().
func RegisterStatusRoutes(s *Server, deps HandlerDeps) {
	startTime := time.Now()
	s.RegisterHTTPRoute("/api/v1/status", statusHTTPHandler(deps, s, startTime))
	s.RegisterHTTPRoute("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
}

// statusHTTPHandler returns an HTTP handler for GET /api/v1/status.
func statusHTTPHandler(deps HandlerDeps, s *Server, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusSnapshot(deps, s, startTime))
	}
}
