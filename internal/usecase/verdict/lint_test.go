package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

func TestLintCleanResults(t *testing.T) {
	agg := newAggregator()

	issues := agg.Lint(mixedRoster(), domain.Float(0.5))

	assert.Empty(t, issues)
}

func TestLintInsufficientEvidenceWithScore(t *testing.T) {
	agg := newAggregator()

	contradictory := domain.DomainResult{
		Name:    "device",
		Score:   domain.Float(0.3),
		Status:  domain.StatusInsufficientEvidence,
		Signals: []string{"x"},
	}

	issues := agg.Lint([]domain.DomainResult{contradictory}, nil)

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "device")
	assert.Contains(t, issues[0], "insufficient evidence")
}

func TestLintNarrativeDownplaysElevatedScore(t *testing.T) {
	agg := newAggregator()

	tests := []struct {
		name      string
		narrative string
		flagged   bool
	}{
		{"low risk claim", "Overall this looks like a low risk interaction.", true},
		{"no risk claim", "No risk indicators were found.", true},
		{"insufficient claim", "Evidence was insufficient to conclude anything.", true},
		{"consistent narrative", "Multiple strong fraud indicators present.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := okResult("network", 0.8, "tor exit node")
			r.Narrative = tt.narrative

			issues := agg.Lint([]domain.DomainResult{r}, nil)

			if tt.flagged {
				require.Len(t, issues, 1)
				assert.Contains(t, issues[0], "downplays")
			} else {
				assert.Empty(t, issues)
			}
		})
	}
}

func TestLintNarrativeCheckedAgainstFinalRisk(t *testing.T) {
	agg := newAggregator()

	// Scoreless domain: its narrative is judged against the final verdict.
	r := insufficientResult("summary")
	r.Narrative = "no risk worth mentioning"

	issues := agg.Lint([]domain.DomainResult{r}, domain.Float(0.7))
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "downplays")

	assert.Empty(t, agg.Lint([]domain.DomainResult{r}, domain.Float(0.1)),
		"a genuinely low final risk matches the narrative")
	assert.Empty(t, agg.Lint([]domain.DomainResult{r}, nil),
		"nothing to contradict without a score or final risk")
}

func TestLintElevatedScoreWithoutSignals(t *testing.T) {
	agg := newAggregator()

	bare := domain.DomainResult{
		Name:   "chain",
		Score:  domain.Float(0.9),
		Status: domain.StatusOK,
	}

	issues := agg.Lint([]domain.DomainResult{bare}, nil)

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "no supporting signals")
}

func TestLintFactDisagreement(t *testing.T) {
	agg := newAggregator()

	network := okResult("network", 0.6, "tor exit node")
	network.Facts = map[string]string{"account_age_days": "3", "country": "GB"}
	device := okResult("device", 0.4, "emulator")
	device.Facts = map[string]string{"account_age_days": "90", "country": "GB"}

	issues := agg.Lint([]domain.DomainResult{network, device}, domain.Float(0.5))

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "account_age_days")
	assert.Contains(t, issues[0], "network=3")
	assert.Contains(t, issues[0], "device=90")
	assert.NotContains(t, issues[0], "country", "agreeing facts are not reported")
}

func TestLintReportsEveryIssueInOrder(t *testing.T) {
	agg := newAggregator()

	broken := domain.DomainResult{
		Name:      "device",
		Score:     domain.Float(0.8),
		Status:    domain.StatusInsufficientEvidence,
		Narrative: "low risk session",
	}

	issues := agg.Lint([]domain.DomainResult{broken}, nil)

	require.Len(t, issues, 3)
	assert.Contains(t, issues[0], "insufficient evidence")
	assert.Contains(t, issues[1], "downplays")
	assert.Contains(t, issues[2], "no supporting signals")
}

func TestLintNeverFixes(t *testing.T) {
	agg := newAggregator()

	broken := domain.DomainResult{
		Name:   "device",
		Score:  domain.Float(0.8),
		Status: domain.StatusInsufficientEvidence,
	}
	roster := []domain.DomainResult{broken}

	agg.Lint(roster, nil)

	require.NotNil(t, roster[0].Score)
	assert.Equal(t, 0.8, *roster[0].Score)
	assert.Equal(t, domain.StatusInsufficientEvidence, roster[0].Status)
}
