package verdict

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

func TestLegacyAggregateAgreesOnSufficientEvidence(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(slog.New(slog.NewTextHandler(&buf, nil)))

	out := agg.LegacyAggregate(mixedRoster(), domain.CaseFacts{})

	assert.False(t, out.Diverged)
	assert.Equal(t, domain.GatePass, out.Gate)
	require.NotNil(t, out.FinalRisk)
	assert.InDelta(t, 0.5, *out.FinalRisk, 1e-9)
	assert.Empty(t, buf.String(), "no divergence, no warning")
}

func TestLegacyAggregateDivergesOnGatedEvidence(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(slog.New(slog.NewTextHandler(&buf, nil)))

	// One numeric domain with one signal: the gated rule blocks, the old
	// permissive rule still computes.
	out := agg.LegacyAggregate([]domain.DomainResult{okResult("network", 0.9, "x")}, domain.CaseFacts{})

	assert.True(t, out.Diverged)
	assert.Equal(t, domain.GatePass, out.Gate, "legacy behavior is preserved, not reconciled")
	require.NotNil(t, out.FinalRisk)
	assert.InDelta(t, 0.9, *out.FinalRisk, 1e-9)
	assert.Contains(t, buf.String(), "diverged")
}

func TestLegacyAggregateNoNumericDomains(t *testing.T) {
	agg := newAggregator()

	out := agg.LegacyAggregate([]domain.DomainResult{insufficientResult("device")}, domain.CaseFacts{})

	assert.False(t, out.Diverged, "both rules block without numeric evidence")
	assert.Equal(t, domain.GateBlock, out.Gate)
	assert.Nil(t, out.FinalRisk)
}

func TestLegacyAggregateHardEvidenceMatchesGatedRule(t *testing.T) {
	agg := newAggregator()

	out := agg.LegacyAggregate(mixedRoster(), domain.CaseFacts{ConfirmedFraud: true})

	assert.False(t, out.Diverged)
	require.NotNil(t, out.FinalRisk)
	assert.InDelta(t, 0.60, *out.FinalRisk, 1e-9)
}
