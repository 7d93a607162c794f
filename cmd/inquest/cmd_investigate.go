package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inquest/internal/adapter/agent"
	"inquest/internal/adapter/audit"
	"inquest/internal/adapter/backend"
	"inquest/internal/adapter/cachestore"
	"inquest/internal/domain"
	"inquest/internal/infra/config"
	"inquest/internal/infra/logger"
	"inquest/internal/infra/metrics"
	"inquest/internal/usecase/orchestrate"
	"inquest/internal/usecase/verdict"
)

var investigateFlags struct {
	config     string
	entityType string
	entityID   string
	id         string
	domains    string
	context    []string
	quiet      bool
}

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run one investigation locally and print the consolidated result",
	Long: `Runs the full agent pipeline in-process against the configured backends and
writes the consolidated result as JSON to stdout. The result is structured
even when every agent fails; a fallback verdict carries fallback: true.`,
	RunE: runInvestigate,
}

func init() {
	f := investigateCmd.Flags()
	f.StringVarP(&investigateFlags.config, "config", "c", defaultConfigPath(), "Path to config file")
	f.StringVar(&investigateFlags.entityType, "entity-type", "", "Entity type under investigation, e.g. wallet or account (required)")
	f.StringVar(&investigateFlags.entityID, "entity-id", "", "Entity identifier (required)")
	f.StringVar(&investigateFlags.id, "id", "", "Investigation ID (generated when empty)")
	f.StringVar(&investigateFlags.domains, "domains", "", "Comma-separated agent kinds to run (default: all registered)")
	f.StringArrayVar(&investigateFlags.context, "context", nil, "Context hint as key=value; repeatable")
	f.BoolVarP(&investigateFlags.quiet, "quiet", "q", false, "Suppress logs; stdout carries only the result JSON")

	_ = investigateCmd.MarkFlagRequired("entity-type")
	_ = investigateCmd.MarkFlagRequired("entity-id")
}

func runInvestigate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(investigateFlags.config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if investigateFlags.quiet {
		cfg.Logger.Output = "discard"
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	reqContext, err := contextHints(investigateFlags.context, investigateFlags.domains)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	registry, err := backend.NewRegistry(cfg.Backends.Endpoints, cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("endpoint registry: %w", err)
	}
	schemas, err := backend.NewSchemaIndex(cfg.Backends.Endpoints)
	if err != nil {
		return fmt.Errorf("response schemas: %w", err)
	}

	var respCache *backend.ResponseCache
	if cfg.Cache.Enabled {
		store, err := cachestore.Open(cfg.Cache.Store, cfg.Cache.Path, cfg.Cache.InMemory, log)
		if err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
		respCache = backend.NewResponseCache(store, cfg.Cache.DefaultTTL, log, m)
	}

	pool := backend.NewPool(backend.TransportDialer(cfg.Backends.Pool, registry.APIKey), cfg.Backends.Pool, m)
	client := backend.NewClient(backend.ClientDeps{
		Registry: registry,
		Pool:     pool,
		Cache:    respCache,
		Schemas:  schemas,
		Retry:    cfg.Backends.Retry,
		Recovery: cfg.Backends.BreakerRecovery,
		Logger:   log,
		Metrics:  m,
	})
	defer client.Close()

	// One-shot runs keep the audit trail only when it is persistent.
	var store domain.InvestigationStore
	if cfg.Audit.Enabled {
		s, err := audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer s.Close()
		store = s
	}

	agents, err := agent.NewSet(cfg.Agents, client, verdict.MapNormalizer{}, log)
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	roster, err := orchestrate.NewRoster(agents...)
	if err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	orch := orchestrate.New(roster, verdict.NewAggregator(log), store, nil,
		orchestratorSettings(cfg.Orchestrator), log, m)

	res := orch.OrchestrateInvestigation(ctx, domain.InvestigationRequest{
		InvestigationID: investigateFlags.id,
		EntityType:      investigateFlags.entityType,
		EntityID:        investigateFlags.entityID,
		Context:         reqContext,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	log.Info("investigation finished",
		"investigation_id", res.InvestigationID,
		"fallback", res.Fallback,
		"risk_score", res.RiskScore,
		"duration", res.Duration.Round(time.Millisecond))
	return nil
}

// contextHints merges --context key=value pairs with the --domains shorthand.
func contextHints(pairs []string, domains string) (map[string]string, error) {
	if len(pairs) == 0 && domains == "" {
		return nil, nil
	}
	hints := make(map[string]string, len(pairs)+1)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("context hint %q is not key=value", p)
		}
		hints[k] = v
	}
	if domains != "" {
		hints["domains"] = domains
	}
	return hints, nil
}
