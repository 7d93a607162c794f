// Package agent implements the investigation specialists. Each agent is
// bound to one backend endpoint and operation, reaches it through the
// resilient client, and hands the raw payload to the result normalizer
// boundary.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inquest/internal/adapter/backend"
	"inquest/internal/domain"
	"inquest/internal/infra/config"
	"inquest/internal/usecase/verdict"
)

// Caller is the slice of the resilient client agents use.
type Caller interface {
	Call(ctx context.Context, endpoint, operation string, params map[string]any, opts backend.CallOptions) (*domain.CallResult, error)
}

var _ Caller = (*backend.Client)(nil)

// Agent runs one investigation specialty against its configured backend.
type Agent struct {
	kind       domain.AgentKind
	endpoint   string
	operation  string
	useCache   bool
	cacheTTL   time.Duration
	client     Caller
	normalizer verdict.Normalizer
	logger     *slog.Logger
}

// New builds one agent from its binding. The kind must name a known
// specialist; anything else is a registration-time error.
func New(cfg config.AgentConfig, client Caller, normalizer verdict.Normalizer, logger *slog.Logger) (*Agent, error) {
	kind := domain.AgentKind(cfg.Kind)
	if !domain.ValidAgentKind(kind) {
		return nil, domain.NewSubSystemError("agent", "agent.new", domain.ErrUnknownAgentKind, cfg.Kind)
	}
	if cfg.Endpoint == "" || cfg.Operation == "" {
		return nil, domain.NewSubSystemError("agent", "agent.new", domain.ErrInvalidEndpoint,
			fmt.Sprintf("agent %s needs an endpoint and operation", cfg.Kind))
	}
	return &Agent{
		kind:       kind,
		endpoint:   cfg.Endpoint,
		operation:  cfg.Operation,
		useCache:   cfg.UseCache,
		cacheTTL:   cfg.CacheTTL,
		client:     client,
		normalizer: normalizer,
		logger:     logger.With("agent", cfg.Kind),
	}, nil
}

// NewSet builds every configured agent. Bindings are all-or-nothing: one
// bad entry fails the whole set so a misconfigured roster is caught at
// startup, not mid-investigation.
func NewSet(cfgs []config.AgentConfig, client Caller, normalizer verdict.Normalizer, logger *slog.Logger) ([]domain.Agent, error) {
	agents := make([]domain.Agent, 0, len(cfgs))
	for _, cfg := range cfgs {
		a, err := New(cfg, client, normalizer, logger)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func (a *Agent) Kind() domain.AgentKind { return a.kind }

// Execute performs the agent's backend call and normalizes the response.
// Backend failures come back as errors for the orchestrator to record; a
// normalizer failure degrades to an insufficient-evidence result instead.
func (a *Agent) Execute(ctx context.Context, req domain.InvestigationRequest) (*domain.AgentResult, error) {
	res, err := a.client.Call(ctx, a.endpoint, a.operation, a.params(req), backend.CallOptions{
		UseCache: a.useCache,
		CacheTTL: a.cacheTTL,
	})
	if err != nil {
		a.logger.Debug("backend call failed",
			"investigation_id", req.InvestigationID,
			"endpoint", a.endpoint,
			"operation", a.operation,
			"error", err)
		return nil, err
	}

	d := verdict.SafeNormalize(a.normalizer, a.kind, res.Data)
	out := &domain.AgentResult{
		Kind:       a.kind,
		Confidence: d.Confidence,
		Findings:   append([]string(nil), d.Signals...),
		Domain:     d,
		Raw:        res.Data,
	}
	if d.Score != nil {
		out.RiskScore = *d.Score
	}
	return out, nil
}

// params carries only entity identity and caller context. Investigation IDs
// stay out so identical lookups share cache entries across investigations.
func (a *Agent) params(req domain.InvestigationRequest) map[string]any {
	p := map[string]any{
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
	}
	if len(req.Context) > 0 {
		p["context"] = req.Context
	}
	return p
}

var _ domain.Agent = (*Agent)(nil)
