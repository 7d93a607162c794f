package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inquest/internal/adapter/agent"
	"inquest/internal/adapter/alert"
	"inquest/internal/adapter/audit"
	"inquest/internal/adapter/backend"
	"inquest/internal/adapter/cachestore"
	"inquest/internal/adapter/gateway"
	"inquest/internal/domain"
	"inquest/internal/infra/config"
	"inquest/internal/infra/logger"
	"inquest/internal/infra/metrics"
	"inquest/internal/infra/tracer"
	"inquest/internal/usecase/janitor"
	"inquest/internal/usecase/orchestrate"
	"inquest/internal/usecase/verdict"
)

var serveFlags struct {
	config string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the investigation coordinator with its WebSocket gateway",
	Long: `Starts the long-running coordinator: backend endpoints are registered from
config, investigation agents are bound to them, and the WebSocket gateway
accepts investigate/backend/endpoint RPCs until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.config, "config", "c", defaultConfigPath(), "Path to config file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Config
	cfg, err := config.Load(serveFlags.config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.Gateway.Enabled {
		return fmt.Errorf("serve needs the gateway: set gateway.enabled in %s or INQUEST_GATEWAY_ADDR", serveFlags.config)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	m := metrics.New()

	// 3. Backend access: registry, schemas, cache, pool
	registry, err := backend.NewRegistry(cfg.Backends.Endpoints, cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("endpoint registry: %w", err)
	}
	schemas, err := backend.NewSchemaIndex(cfg.Backends.Endpoints)
	if err != nil {
		return fmt.Errorf("response schemas: %w", err)
	}

	var respCache *backend.ResponseCache
	var cacheStore domain.CacheStore
	if cfg.Cache.Enabled {
		cacheStore, err = cachestore.Open(cfg.Cache.Store, cfg.Cache.Path, cfg.Cache.InMemory, log)
		if err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
		respCache = backend.NewResponseCache(cacheStore, cfg.Cache.DefaultTTL, log, m)
	}

	pool := backend.NewPool(backend.TransportDialer(cfg.Backends.Pool, registry.APIKey), cfg.Backends.Pool, m)

	// 4. Gateway and alert sinks. The server is built before the dispatcher
	// so connected clients receive alerts as event frames.
	tokens := make([]gateway.Token, len(cfg.Gateway.Auth.Tokens))
	for i, t := range cfg.Gateway.Auth.Tokens {
		tokens[i] = gateway.Token{Token: t.Token, Name: t.Name}
	}
	gw := gateway.NewServer(gateway.NewStaticTokenAuth(tokens), cfg.Gateway.Addr, log)
	if cfg.Gateway.RateLimit.Enabled {
		gw.SetRateLimit(cfg.Gateway.RateLimit.RequestsPerMin, cfg.Gateway.RateLimit.Burst)
	}

	var sinks []domain.Notifier
	if cfg.Alerts.Slack.Enabled {
		slack, err := alert.NewSlackNotifier(cfg.Alerts.Slack.BotToken, cfg.Alerts.Slack.Channel, log)
		if err != nil {
			return fmt.Errorf("slack alerts: %w", err)
		}
		sinks = append(sinks, slack)
	}
	if cfg.Alerts.Discord.Enabled {
		discord, err := alert.NewDiscordNotifier(cfg.Alerts.Discord.Token, cfg.Alerts.Discord.ChannelID, log)
		if err != nil {
			return fmt.Errorf("discord alerts: %w", err)
		}
		sinks = append(sinks, discord)
	}
	sinks = append(sinks, gw)

	dispatcher := alert.NewDispatcher(log, sinks...)
	dispatcher.Start(ctx)

	// 5. Resilient client
	client := backend.NewClient(backend.ClientDeps{
		Registry: registry,
		Pool:     pool,
		Cache:    respCache,
		Schemas:  schemas,
		Retry:    cfg.Backends.Retry,
		Recovery: cfg.Backends.BreakerRecovery,
		Logger:   log,
		Metrics:  m,
		Notify: func(name string, _, to domain.BreakerState) {
			if to != domain.BreakerOpen {
				return
			}
			dispatcher.Raise(context.Background(), domain.Alert{
				Kind:      domain.AlertBreakerOpened,
				Subject:   name,
				Detail:    "endpoint circuit breaker opened",
				Timestamp: time.Now().UTC(),
			})
		},
	})
	defer client.Close()

	// 6. Audit trail
	var auditStore gateway.ResultStore
	if cfg.Audit.Enabled {
		s, err := audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		auditStore = s
	} else {
		auditStore = audit.NewMemoryStore()
	}
	defer auditStore.Close()

	// 7. Agents & orchestrator
	agents, err := agent.NewSet(cfg.Agents, client, verdict.MapNormalizer{}, log)
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	roster, err := orchestrate.NewRoster(agents...)
	if err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	orch := orchestrate.New(roster, verdict.NewAggregator(log), auditStore, dispatcher,
		orchestratorSettings(cfg.Orchestrator), log, m)

	// 8. Janitor
	if cfg.Janitor.Enabled {
		jan := janitor.New(log)
		err := jan.Add(janitor.Task{
			Name:     "pool_sweep",
			Schedule: cfg.Janitor.PoolSweepSchedule,
			Run: func(context.Context) error {
				pool.Sweep(time.Now())
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("janitor: %w", err)
		}
		switch cs := cacheStore.(type) {
		case *cachestore.MemoryStore:
			err = jan.Add(janitor.Task{
				Name:     "cache_purge",
				Schedule: cfg.Janitor.CachePurgeSchedule,
				Run: func(context.Context) error {
					cs.PurgeExpired(time.Now())
					return nil
				},
			})
		case *cachestore.BadgerStore:
			err = jan.Add(janitor.Task{
				Name:     "cache_gc",
				Schedule: cfg.Janitor.CachePurgeSchedule,
				Run: func(context.Context) error {
					return cs.RunGC(0.5)
				},
			})
		}
		if err != nil {
			return fmt.Errorf("janitor: %w", err)
		}
		jan.Start(ctx)
		defer jan.Stop()
	}

	// 9. Gateway surface
	deps := gateway.HandlerDeps{
		Investigator: orch,
		Backends:     client,
		Results:      auditStore,
		Alerter:      dispatcher,
		Logger:       log,
	}
	gateway.RegisterDefaultHandlers(gw, deps)
	gateway.RegisterStatusRoutes(gw, deps)
	if cfg.Gateway.Metrics {
		gw.RegisterHTTPRoute("/metrics", m.Handler())
	}

	log.Info("inquest starting",
		"version", version,
		"addr", cfg.Gateway.Addr,
		"endpoints", len(registry.List()),
		"agents", roster.Len(),
		"audit", cfg.Audit.Enabled,
		"alert_sinks", len(sinks),
	)

	// 10. Serve until signalled
	serveErr := gw.Start(ctx)
	stop()
	dispatcher.Wait()
	log.Info("inquest stopped")
	return serveErr
}

// orchestratorSettings maps config onto execution tuning.
func orchestratorSettings(c config.OrchestratorConfig) orchestrate.Settings {
	return orchestrate.Settings{
		AgentTimeout:     c.AgentTimeout,
		MaxAttempts:      c.AgentMaxAttempts,
		BackoffBase:      c.AgentBackoffBase,
		BackoffFactor:    c.AgentBackoffFactor,
		BreakerThreshold: c.BreakerThreshold,
		BreakerRecovery:  c.BreakerRecovery,
		MaxParallel:      c.MaxParallel,
		StopConfidence:   c.StopConfidenceAbove,
		StopRisk:         c.StopRiskAbove,
	}
}
