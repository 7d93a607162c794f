package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

// result store interface shared by both backends, for contract tests.
type resultGetter interface {
	domain.InvestigationStore
	GetResult(ctx context.Context, investigationID string) (domain.ConsolidatedResult, error)
}

func openStores(t *testing.T) map[string]resultGetter {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]resultGetter{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func handoff(id, investigationID, toAgent string, success bool) domain.AgentHandoff {
	return domain.AgentHandoff{
		ID:         id,
		FromAgent:  "orchestrator",
		ToAgent:    toAgent,
		ContextRef: investigationID,
		Reason:     "planned execution",
		Timestamp:  time.Now().UTC(),
		Success:    success,
	}
}

func TestStoreHandoffRoundtrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, handoff("01A", "inv-1", "network", true)))
			require.NoError(t, store.Append(ctx, handoff("01B", "inv-1", "device", false)))
			require.NoError(t, store.Append(ctx, handoff("01C", "inv-2", "chain", true)))

			got, err := store.List(ctx, "inv-1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "network", got[0].ToAgent)
			assert.True(t, got[0].Success)
			assert.Equal(t, "device", got[1].ToAgent)
			assert.False(t, got[1].Success)
			for _, h := range got {
				assert.Equal(t, "inv-1", h.ContextRef)
				assert.Equal(t, "orchestrator", h.FromAgent)
			}

			other, err := store.List(ctx, "inv-2")
			require.NoError(t, err)
			assert.Len(t, other, 1)

			none, err := store.List(ctx, "inv-nope")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStoreResultRoundtrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			res := domain.ConsolidatedResult{
				InvestigationID:    "inv-save",
				AgentsExecuted:     []string{"network", "chain"},
				SuccessfulAgents:   []string{"network", "chain"},
				FailedAgents:       []string{},
				KeyFindings:        []string{"tor exit node"},
				RiskScore:          0.75,
				ConfidenceScore:    0.8,
				HandoffCount:       2,
				HandoffSuccessRate: 1.0,
				Duration:           3 * time.Second,
			}
			require.NoError(t, store.SaveResult(ctx, res))

			got, err := store.GetResult(ctx, "inv-save")
			require.NoError(t, err)
			assert.Equal(t, res.InvestigationID, got.InvestigationID)
			assert.Equal(t, res.SuccessfulAgents, got.SuccessfulAgents)
			assert.InDelta(t, 0.75, got.RiskScore, 1e-9)
			assert.Equal(t, 3*time.Second, got.Duration)

			_, err = store.GetResult(ctx, "inv-missing")
			assert.ErrorIs(t, err, domain.ErrInvestigationNotFound)
		})
	}
}

func TestStoreReplacesResultOnRerun(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := domain.ConsolidatedResult{InvestigationID: "inv-rerun", RiskScore: 0.2}
			second := domain.ConsolidatedResult{InvestigationID: "inv-rerun", RiskScore: 0.9}
			require.NoError(t, store.SaveResult(ctx, first))
			require.NoError(t, store.SaveResult(ctx, second))

			got, err := store.GetResult(ctx, "inv-rerun")
			require.NoError(t, err)
			assert.InDelta(t, 0.9, got.RiskScore, 1e-9)
		})
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					h := handoff(string(rune('A'+n))+"-id", "inv-conc", "network", true)
					assert.NoError(t, store.Append(ctx, h))
				}(i)
			}
			wg.Wait()

			got, err := store.List(ctx, "inv-conc")
			require.NoError(t, err)
			assert.Len(t, got, 16)
		})
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, handoff("01X", "inv-persist", "logs", true)))
	require.NoError(t, store.SaveResult(ctx, domain.ConsolidatedResult{
		InvestigationID: "inv-persist",
		RiskScore:       0.5,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	handoffs, err := reopened.List(ctx, "inv-persist")
	require.NoError(t, err)
	assert.Len(t, handoffs, 1)

	res, err := reopened.GetResult(ctx, "inv-persist")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.RiskScore, 1e-9)
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path required")
}

func TestSQLiteStorePreservesTimestamps(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	h := handoff("01T", "inv-ts", "chain", true)
	h.Timestamp = ts
	require.NoError(t, store.Append(ctx, h))

	got, err := store.List(ctx, "inv-ts")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(ts))
}
