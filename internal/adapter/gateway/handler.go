package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"inquest/internal/adapter/backend"
	"inquest/internal/domain"
)

// Investigator runs one investigation end to end and always returns a
// structured result. Satisfied by the orchestrator.
type Investigator interface {
	OrchestrateInvestigation(ctx context.Context, req domain.InvestigationRequest) domain.ConsolidatedResult
}

// ResultStore is an investigation store that can also look finished
// investigations back up. Both audit store implementations satisfy it.
type ResultStore interface {
	domain.InvestigationStore
	GetResult(ctx context.Context, investigationID string) (domain.ConsolidatedResult, error)
}

// Alerter raises operator alerts. Satisfied by the alert dispatcher.
type Alerter interface {
	Raise(ctx context.Context, alert domain.Alert)
}

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Investigator Investigator
	Backends     *backend.Client
	Results      ResultStore // can be nil (audit persistence disabled)
	Alerter      Alerter     // can be nil
	Logger       *slog.Logger
}

// RegisterDefaultHandlers wires the full RPC surface onto the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	startTime := time.Now()

	s.RegisterHandler("investigate.run", investigateRunHandler(deps))
	s.RegisterHandler("backend.call", backendCallHandler(deps))
	s.RegisterHandler("endpoint.list", endpointListHandler(deps))
	s.RegisterHandler("endpoint.enable", endpointEnableHandler(deps, true))
	s.RegisterHandler("endpoint.disable", endpointEnableHandler(deps, false))
	s.RegisterHandler("cache.invalidate", cacheInvalidateHandler(deps))
	s.RegisterHandler("status.get", statusGetHandler(deps, s, startTime))

	if deps.Results != nil {
		s.RegisterHandler("investigate.get", investigateGetHandler(deps))
		s.RegisterHandler("investigate.handoffs", investigateHandoffsHandler(deps))
	}
}

// --- investigations ---

func investigateRunHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req domain.InvestigationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.EntityType == "" || req.EntityID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		deps.Logger.Info("investigation requested",
			"client", client.Name,
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
		)

		result := deps.Investigator.OrchestrateInvestigation(ctx, req)
		return json.Marshal(result)
	}
}

type investigateGetRequest struct {
	InvestigationID string `json:"investigation_id"`
}

func investigateGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req investigateGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.InvestigationID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		result, err := deps.Results.GetResult(ctx, req.InvestigationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

func investigateHandoffsHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req investigateGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.InvestigationID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		handoffs, err := deps.Results.List(ctx, req.InvestigationID)
		if err != nil {
			return nil, err
		}
		if handoffs == nil {
			handoffs = []domain.AgentHandoff{}
		}
		return json.Marshal(handoffs)
	}
}

// --- backend calls ---

type backendCallRequest struct {
	Endpoint        string         `json:"endpoint"`
	Operation       string         `json:"operation"`
	Params          map[string]any `json:"params,omitempty"`
	UseCache        bool           `json:"use_cache,omitempty"`
	CacheTTLSeconds int            `json:"cache_ttl_seconds,omitempty"`
}

func backendCallHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req backendCallRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Endpoint == "" || req.Operation == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		// The result is structured either way; a failed call is a payload
		// with success=false and a classified error code, not a frame error.
		result, _ := deps.Backends.Call(ctx, req.Endpoint, req.Operation, req.Params, backend.CallOptions{
			UseCache: req.UseCache,
			CacheTTL: time.Duration(req.CacheTTLSeconds) * time.Second,
		})
		return json.Marshal(result)
	}
}

// --- endpoints ---

func endpointListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Backends.Registry().List())
	}
}

type endpointNameRequest struct {
	Name string `json:"name"`
}

func endpointEnableHandler(deps HandlerDeps, enabled bool) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req endpointNameRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Name == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		if err := deps.Backends.Registry().SetEnabled(req.Name, enabled); err != nil {
			return nil, err
		}

		deps.Logger.Info("endpoint toggled", "endpoint", req.Name, "enabled", enabled, "client", client.Name)
		if !enabled && deps.Alerter != nil {
			deps.Alerter.Raise(ctx, domain.Alert{
				Kind:      domain.AlertEndpointDisabled,
				Subject:   req.Name,
				Detail:    "endpoint disabled via gateway",
				Fields:    map[string]string{"client": client.Name},
				Timestamp: time.Now().UTC(),
			})
		}
		return json.Marshal(map[string]bool{"enabled": enabled})
	}
}

// --- cache ---

type cacheInvalidateRequest struct {
	Endpoint  string         `json:"endpoint"`
	Operation string         `json:"operation,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

func cacheInvalidateHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req cacheInvalidateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Endpoint == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		n, err := deps.Backends.InvalidateCache(ctx, req.Endpoint, req.Operation, req.Params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"invalidated": n})
	}
}

func statusGetHandler(deps HandlerDeps, s *Server, startTime time.Time) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(statusSnapshot(deps, s, startTime))
	}
}
