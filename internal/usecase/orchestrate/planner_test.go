package orchestrate

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

func fullRoster(t *testing.T) *Roster {
	t.Helper()
	roster, err := NewRoster(
		&fakeAgent{kind: domain.AgentNetwork},
		&fakeAgent{kind: domain.AgentDevice},
		&fakeAgent{kind: domain.AgentLogs},
		&fakeAgent{kind: domain.AgentChain},
	)
	require.NoError(t, err)
	return roster
}

func TestPlanDefaultsToComprehensiveFullRoster(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	decision := p.Plan(domain.InvestigationRequest{
		InvestigationID: "inv-1",
		EntityType:      "account",
		EntityID:        "acct-9",
	})

	assert.Equal(t, domain.StrategyComprehensive, decision.Strategy)
	assert.Equal(t, []domain.AgentKind{
		domain.AgentNetwork, domain.AgentDevice, domain.AgentLogs, domain.AgentChain,
	}, decision.AgentsToActivate)
	assert.InDelta(t, 0.9, decision.ConfidenceScore, 1e-9)
	assert.Equal(t, 2*time.Minute, decision.EstimatedDuration)
	assert.NotEmpty(t, decision.Reasoning)
	assert.NotEmpty(t, decision.RiskAssessment)
	assert.NotEmpty(t, decision.ResilienceRequirements)
}

func TestPlanHonorsDomainsHint(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	decision := p.Plan(domain.InvestigationRequest{
		EntityType: "wallet",
		EntityID:   "0xabc",
		Context:    map[string]string{"domains": " chain , network "},
	})

	assert.Equal(t, domain.StrategyAdaptive, decision.Strategy)
	assert.Equal(t, []domain.AgentKind{domain.AgentChain, domain.AgentNetwork}, decision.AgentsToActivate)
}

func TestPlanHonorsStrategyHint(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	decision := p.Plan(domain.InvestigationRequest{
		EntityType: "account",
		Context:    map[string]string{"strategy": "sequential"},
	})

	assert.Equal(t, domain.StrategySequential, decision.Strategy)
	assert.InDelta(t, 0.95, decision.ConfidenceScore, 1e-9)
	// Sequential plans budget one agent timeout per agent.
	assert.Equal(t, 8*time.Minute, decision.EstimatedDuration)
}

func TestPlanPriorityMapsToStrategy(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	tests := []struct {
		name     string
		priority string
		want     domain.Strategy
	}{
		{name: "critical priority takes the critical path", priority: "critical", want: domain.StrategyCriticalPath},
		{name: "low priority runs sequentially", priority: "low", want: domain.StrategySequential},
		{name: "normal priority runs comprehensively", priority: "normal", want: domain.StrategyComprehensive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := p.Plan(domain.InvestigationRequest{
				EntityType: "account",
				Context:    map[string]string{"priority": tt.priority},
			})
			assert.Equal(t, tt.want, decision.Strategy)
		})
	}
}

func TestPlanLeadsWithEntitySpecialist(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	tests := []struct {
		entityType string
		lead       domain.AgentKind
	}{
		{entityType: "wallet", lead: domain.AgentChain},
		{entityType: "transaction", lead: domain.AgentChain},
		{entityType: "device", lead: domain.AgentDevice},
		{entityType: "session", lead: domain.AgentDevice},
		{entityType: "account", lead: domain.AgentNetwork},
		{entityType: "user", lead: domain.AgentNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.entityType, func(t *testing.T) {
			decision := p.Plan(domain.InvestigationRequest{EntityType: tt.entityType})
			require.NotEmpty(t, decision.ExecutionOrder)
			assert.Equal(t, tt.lead, decision.ExecutionOrder[0])
			assert.Len(t, decision.ExecutionOrder, 4)
		})
	}
}

func TestPlanFallsBackOnUnknownStrategyHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewPlanner(fullRoster(t), 2*time.Minute, logger)

	decision := p.Plan(domain.InvestigationRequest{
		InvestigationID: "inv-2",
		EntityType:      "account",
		Context:         map[string]string{"strategy": "yolo"},
	})

	assert.Equal(t, domain.StrategyComprehensive, decision.Strategy)
	assert.Len(t, decision.AgentsToActivate, 4)
	assert.InDelta(t, 0.7, decision.ConfidenceScore, 1e-9)
	assert.Contains(t, decision.Reasoning, "planning failed")
	assert.Contains(t, buf.String(), "planning failed, using safe default")
}

func TestPlanFallsBackOnBadDomainsHint(t *testing.T) {
	p := NewPlanner(fullRoster(t), 2*time.Minute, slog.Default())

	tests := []struct {
		name    string
		domains string
	}{
		{name: "unknown kind", domains: "network,oracle"},
		{name: "only separators", domains: " , , "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := p.Plan(domain.InvestigationRequest{
				EntityType: "account",
				Context:    map[string]string{"domains": tt.domains},
			})
			assert.Equal(t, domain.StrategyComprehensive, decision.Strategy)
			assert.Len(t, decision.AgentsToActivate, 4)
			assert.InDelta(t, 0.7, decision.ConfidenceScore, 1e-9)
		})
	}
}

func TestPlanFallsBackOnUnregisteredDomainHint(t *testing.T) {
	roster, err := NewRoster(&fakeAgent{kind: domain.AgentNetwork})
	require.NoError(t, err)
	p := NewPlanner(roster, 2*time.Minute, slog.Default())

	decision := p.Plan(domain.InvestigationRequest{
		EntityType: "account",
		Context:    map[string]string{"domains": "chain"},
	})

	assert.Equal(t, domain.StrategyComprehensive, decision.Strategy)
	assert.Equal(t, []domain.AgentKind{domain.AgentNetwork}, decision.AgentsToActivate)
	assert.InDelta(t, 0.7, decision.ConfidenceScore, 1e-9)
}
