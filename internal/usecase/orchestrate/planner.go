package orchestrate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"inquest/internal/domain"
)

// Planner derives the execution plan for one investigation from the entity
// type and the caller's context hints. Derivation can fail on contradictory
// hints; Plan substitutes the fixed safe default so planning never aborts
// an investigation.
type Planner struct {
	roster       *Roster
	agentTimeout time.Duration
	logger       *slog.Logger
}

func NewPlanner(roster *Roster, agentTimeout time.Duration, logger *slog.Logger) *Planner {
	if agentTimeout <= 0 {
		agentTimeout = 120 * time.Second
	}
	return &Planner{roster: roster, agentTimeout: agentTimeout, logger: logger}
}

// Plan returns the orchestration decision for req. A derivation failure is
// logged and replaced by the safe default: comprehensive strategy, the full
// roster, confidence 0.7.
func (p *Planner) Plan(req domain.InvestigationRequest) domain.OrchestrationDecision {
	decision, err := p.derive(req)
	if err != nil {
		p.logger.Warn("planning failed, using safe default",
			"investigation_id", req.InvestigationID,
			"error", err)
		return p.safeDefault(req)
	}
	return decision
}

func (p *Planner) derive(req domain.InvestigationRequest) (domain.OrchestrationDecision, error) {
	kinds, requested, err := p.plannedKinds(req)
	if err != nil {
		return domain.OrchestrationDecision{}, err
	}

	strategy, reasoning, err := p.strategyFor(req, requested, len(kinds))
	if err != nil {
		return domain.OrchestrationDecision{}, err
	}

	order := executionOrder(req.EntityType, kinds)

	confidence := 0.6 + 0.08*float64(len(kinds))
	if confidence > 0.9 {
		confidence = 0.9
	}
	if req.Context["strategy"] != "" {
		confidence = 0.95
	}

	duration := p.agentTimeout
	if !strategy.Parallel() {
		duration = time.Duration(len(kinds)) * p.agentTimeout
	}

	return domain.OrchestrationDecision{
		Strategy:          strategy,
		AgentsToActivate:  kinds,
		ExecutionOrder:    order,
		ConfidenceScore:   confidence,
		Reasoning:         reasoning,
		EstimatedDuration: duration,
		RiskAssessment:    riskAssessment(req),
		ResilienceRequirements: []string{
			"per-agent timeout",
			"per-agent circuit breaker",
			"bounded retry",
		},
	}, nil
}

// plannedKinds resolves the context "domains" hint against the roster; no
// hint means the full roster.
func (p *Planner) plannedKinds(req domain.InvestigationRequest) (kinds []domain.AgentKind, requested bool, err error) {
	hint := strings.TrimSpace(req.Context["domains"])
	if hint == "" {
		return p.roster.Kinds(), false, nil
	}

	for _, part := range strings.Split(hint, ",") {
		kind := domain.AgentKind(strings.TrimSpace(part))
		if kind == "" {
			continue
		}
		if !domain.ValidAgentKind(kind) {
			return nil, true, fmt.Errorf("requested domain %q is not a known agent kind", kind)
		}
		if _, ok := p.roster.Get(kind); !ok {
			return nil, true, fmt.Errorf("requested domain %q has no registered agent", kind)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, true, fmt.Errorf("domains hint %q selected no agents", hint)
	}
	return kinds, true, nil
}

func (p *Planner) strategyFor(req domain.InvestigationRequest, requested bool, agentCount int) (domain.Strategy, string, error) {
	if hint := req.Context["strategy"]; hint != "" {
		s := domain.Strategy(hint)
		switch s {
		case domain.StrategyComprehensive, domain.StrategySequential,
			domain.StrategyAdaptive, domain.StrategyCriticalPath:
			return s, fmt.Sprintf("caller requested the %s strategy", s), nil
		default:
			return "", "", fmt.Errorf("unknown strategy hint %q", hint)
		}
	}

	switch req.Context["priority"] {
	case "critical":
		return domain.StrategyCriticalPath,
			"critical priority: ordered execution with early stop on decisive evidence", nil
	case "low":
		return domain.StrategySequential,
			"low priority: agents run one at a time to spare the backends", nil
	}

	if requested {
		return domain.StrategyAdaptive,
			fmt.Sprintf("plan adapted to the %d requested domains", agentCount), nil
	}
	return domain.StrategyComprehensive,
		"no hints: every registered agent runs in parallel", nil
}

// executionOrder front-loads the specialist most likely to be decisive for
// the entity type; relative order of the rest is preserved.
func executionOrder(entityType string, kinds []domain.AgentKind) []domain.AgentKind {
	var lead domain.AgentKind
	switch entityType {
	case "wallet", "transaction", "address":
		lead = domain.AgentChain
	case "device", "session":
		lead = domain.AgentDevice
	case "account", "user":
		lead = domain.AgentNetwork
	}

	order := make([]domain.AgentKind, 0, len(kinds))
	for _, k := range kinds {
		if k == lead {
			order = append([]domain.AgentKind{k}, order...)
			continue
		}
		order = append(order, k)
	}
	return order
}

func riskAssessment(req domain.InvestigationRequest) string {
	switch req.Context["priority"] {
	case "critical":
		return fmt.Sprintf("critical exposure on %s %s", req.EntityType, req.EntityID)
	case "low":
		return fmt.Sprintf("routine sweep of %s %s", req.EntityType, req.EntityID)
	default:
		return fmt.Sprintf("standard review of %s %s", req.EntityType, req.EntityID)
	}
}

// safeDefault is the fixed plan used when derivation fails: comprehensive,
// full roster, confidence 0.7.
func (p *Planner) safeDefault(req domain.InvestigationRequest) domain.OrchestrationDecision {
	kinds := p.roster.Kinds()
	return domain.OrchestrationDecision{
		Strategy:          domain.StrategyComprehensive,
		AgentsToActivate:  kinds,
		ExecutionOrder:    executionOrder(req.EntityType, kinds),
		ConfidenceScore:   0.7,
		Reasoning:         "planning failed; fell back to comprehensive execution of the full roster",
		EstimatedDuration: p.agentTimeout,
		RiskAssessment:    riskAssessment(req),
		ResilienceRequirements: []string{
			"per-agent timeout",
			"per-agent circuit breaker",
			"bounded retry",
		},
	}
}
