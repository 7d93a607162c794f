package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackends(cfg, ve)
	validateAgents(cfg, ve)
	validateCache(cfg, ve)
	validateOrchestrator(cfg, ve)
	validateGateway(cfg, ve)
	validateAlerts(cfg, ve)
	validateJanitor(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validTransports = map[string]bool{
	"http":   true,
	"stream": true,
}

func validateBackends(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, ep := range cfg.Backends.Endpoints {
		if ep.Name == "" {
			ve.Add("backends.endpoints[%d].name must not be empty", i)
			continue
		}
		if seen[ep.Name] {
			ve.Add("backends.endpoints[%d]: duplicate endpoint name %q", i, ep.Name)
		}
		seen[ep.Name] = true

		if ep.Address == "" {
			ve.Add("backends.endpoints[%d] (%s): address must not be empty", i, ep.Name)
		}
		if !validTransports[ep.Transport] {
			ve.Add("backends.endpoints[%d] (%s): transport must be one of http, stream (got %q)", i, ep.Name, ep.Transport)
		}
		if ep.TimeoutSeconds <= 0 {
			ve.Add("backends.endpoints[%d] (%s): timeout_seconds must be > 0", i, ep.Name)
		}
		if ep.MaxRetries < 0 {
			ve.Add("backends.endpoints[%d] (%s): max_retries must be >= 0", i, ep.Name)
		}
		if ep.CircuitThreshold == 0 {
			ve.Add("backends.endpoints[%d] (%s): circuit_threshold must be > 0", i, ep.Name)
		}
		if ep.APIKeyRef != "" {
			if _, ok := cfg.APIKeys[ep.APIKeyRef]; !ok {
				ve.Add("backends.endpoints[%d] (%s): api_key_ref %q not found in api_keys", i, ep.Name, ep.APIKeyRef)
			}
		}
		for op, schema := range ep.ResponseSchemas {
			if !json.Valid([]byte(schema)) {
				ve.Add("backends.endpoints[%d] (%s): response_schemas[%s] is not valid JSON", i, ep.Name, op)
			}
		}
	}

	if cfg.Backends.Pool.MaxIdlePerEndpoint <= 0 {
		ve.Add("backends.pool.max_idle_per_endpoint must be > 0")
	}
	if cfg.Backends.Pool.SweepInterval <= 0 {
		ve.Add("backends.pool.sweep_interval must be > 0")
	}
	if cfg.Backends.Pool.IdleStaleAfter <= 0 {
		ve.Add("backends.pool.idle_stale_after must be > 0")
	}
	if cfg.Backends.Retry.BaseDelay <= 0 {
		ve.Add("backends.retry.base_delay must be > 0")
	}
	if cfg.Backends.Retry.MaxDelay < cfg.Backends.Retry.BaseDelay {
		ve.Add("backends.retry.max_delay must be >= base_delay")
	}
	if cfg.Backends.Retry.Multiplier < 1.0 {
		ve.Add("backends.retry.multiplier must be >= 1.0")
	}
	if cfg.Backends.BreakerRecovery <= 0 {
		ve.Add("backends.breaker_recovery must be > 0")
	}
}

// validateAgents checks binding shape only; the closed set of agent kinds
// is enforced with a typed error when the roster is built.
func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, a := range cfg.Agents {
		if a.Kind == "" {
			ve.Add("agents[%d].kind must not be empty", i)
			continue
		}
		if seen[a.Kind] {
			ve.Add("agents[%d]: duplicate agent kind %q", i, a.Kind)
		}
		seen[a.Kind] = true

		if a.Endpoint == "" {
			ve.Add("agents[%d] (%s): endpoint must not be empty", i, a.Kind)
		}
		if a.Operation == "" {
			ve.Add("agents[%d] (%s): operation must not be empty", i, a.Kind)
		}
		if a.CacheTTL < 0 {
			ve.Add("agents[%d] (%s): cache_ttl must be >= 0", i, a.Kind)
		}
	}
}

var validCacheStores = map[string]bool{
	"memory": true,
	"badger": true,
}

func validateCache(cfg *Config, ve *ValidationError) {
	if !cfg.Cache.Enabled {
		return
	}
	if !validCacheStores[cfg.Cache.Store] {
		ve.Add("cache.store must be one of memory, badger (got %q)", cfg.Cache.Store)
	}
	if cfg.Cache.Store == "badger" && !cfg.Cache.InMemory && cfg.Cache.Path == "" {
		ve.Add("cache.path must be set for the badger store")
	}
	if cfg.Cache.DefaultTTL <= 0 {
		ve.Add("cache.default_ttl must be > 0")
	}
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.AgentTimeout <= 0 {
		ve.Add("orchestrator.agent_timeout must be > 0")
	}
	if o.AgentMaxAttempts <= 0 {
		ve.Add("orchestrator.agent_max_attempts must be > 0")
	}
	if o.AgentBackoffFactor < 1.0 {
		ve.Add("orchestrator.agent_backoff_factor must be >= 1.0")
	}
	if o.BreakerThreshold == 0 {
		ve.Add("orchestrator.breaker_threshold must be > 0")
	}
	if o.BreakerRecovery <= 0 {
		ve.Add("orchestrator.breaker_recovery must be > 0")
	}
	if o.MaxParallel <= 0 {
		ve.Add("orchestrator.max_parallel must be > 0")
	}
	if o.StopConfidenceAbove < 0 || o.StopConfidenceAbove > 1 {
		ve.Add("orchestrator.stop_confidence_above must be within [0,1]")
	}
	if o.StopRiskAbove < 0 || o.StopRiskAbove > 1 {
		ve.Add("orchestrator.stop_risk_above must be within [0,1]")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port: %v", cfg.Gateway.Addr, err)
	}
	switch cfg.Gateway.Auth.Type {
	case "", "static":
	default:
		ve.Add("gateway.auth.type must be \"static\" or empty (got %q)", cfg.Gateway.Auth.Type)
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty for static auth")
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RequestsPerMin <= 0 {
			ve.Add("gateway.rate_limit.requests_per_min must be > 0")
		}
		if cfg.Gateway.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0")
		}
	}
}

func validateAlerts(cfg *Config, ve *ValidationError) {
	if cfg.Alerts.Slack.Enabled {
		if cfg.Alerts.Slack.BotToken == "" {
			ve.Add("alerts.slack.bot_token must not be empty when slack alerts are enabled")
		}
		if cfg.Alerts.Slack.Channel == "" {
			ve.Add("alerts.slack.channel must not be empty when slack alerts are enabled")
		}
	}
	if cfg.Alerts.Discord.Enabled {
		if cfg.Alerts.Discord.Token == "" {
			ve.Add("alerts.discord.token must not be empty when discord alerts are enabled")
		}
		if cfg.Alerts.Discord.ChannelID == "" {
			ve.Add("alerts.discord.channel_id must not be empty when discord alerts are enabled")
		}
	}
}

func validateJanitor(cfg *Config, ve *ValidationError) {
	if !cfg.Janitor.Enabled {
		return
	}
	if cfg.Janitor.PoolSweepSchedule == "" {
		ve.Add("janitor.pool_sweep_schedule must not be empty when janitor is enabled")
	}
	if cfg.Janitor.CachePurgeSchedule == "" {
		ve.Add("janitor.cache_purge_schedule must not be empty when janitor is enabled")
	}
}
