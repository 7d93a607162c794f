package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the investigation coordinator.
type Config struct {
	Includes     []string           `yaml:"includes,omitempty"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Backends     BackendsConfig     `yaml:"backends"`
	Agents       []AgentConfig      `yaml:"agents"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Audit        AuditConfig        `yaml:"audit"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Janitor      JanitorConfig      `yaml:"janitor"`

	// APIKeys resolves Endpoint.api_key_ref to a secret. Values may be
	// "enc:" encrypted (see EncryptValue).
	APIKeys map[string]string `yaml:"api_keys,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   bool            `yaml:"metrics"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig holds gateway rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// BackendsConfig holds the registered endpoint list and shared call tuning.
type BackendsConfig struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Pool      PoolConfig       `yaml:"pool"`
	Retry     RetryConfig      `yaml:"retry"`

	// BreakerRecovery is how long an endpoint's tripped breaker stays open
	// before it allows the half-open probe.
	BreakerRecovery time.Duration `yaml:"breaker_recovery"`
}

// EndpointConfig describes one backend analysis service. The list is loaded
// once at startup; duplicates and malformed entries are rejected then.
type EndpointConfig struct {
	Name             string `yaml:"name"`
	Address          string `yaml:"address"`
	Transport        string `yaml:"transport"` // "http" or "stream"
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	MaxRetries       int    `yaml:"max_retries"`
	Priority         int    `yaml:"priority"`
	Enabled          *bool  `yaml:"enabled,omitempty"` // nil means enabled
	CircuitThreshold uint32 `yaml:"circuit_threshold"`
	APIKeyRef        string `yaml:"api_key_ref,omitempty"`

	// ResponseSchemas maps operation name to an inline JSON schema document
	// used to reject malformed responses. Optional.
	ResponseSchemas map[string]string `yaml:"response_schemas,omitempty"`
}

// IsEnabled resolves the tri-state Enabled flag (unset means enabled).
func (e EndpointConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// PoolConfig holds connection pool settings shared by all endpoints.
type PoolConfig struct {
	MaxIdlePerEndpoint int           `yaml:"max_idle_per_endpoint"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	IdleStaleAfter     time.Duration `yaml:"idle_stale_after"`

	// HTTP transport tuning for http endpoints.
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RetryConfig holds retry backoff tuning for transient call failures.
type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// AgentConfig binds one investigation agent kind to the backend endpoint
// and operation it calls. Kinds are closed; an unknown kind is rejected at
// startup.
type AgentConfig struct {
	Kind      string        `yaml:"kind"`
	Endpoint  string        `yaml:"endpoint"`
	Operation string        `yaml:"operation"`
	UseCache  bool          `yaml:"use_cache"`
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Store      string        `yaml:"store"` // "memory" or "badger"
	Path       string        `yaml:"path,omitempty"`
	InMemory   bool          `yaml:"in_memory,omitempty"` // badger only
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// OrchestratorConfig holds multi-agent execution tuning.
type OrchestratorConfig struct {
	AgentTimeout        time.Duration `yaml:"agent_timeout"`
	AgentMaxAttempts    int           `yaml:"agent_max_attempts"`
	AgentBackoffBase    time.Duration `yaml:"agent_backoff_base"`
	AgentBackoffFactor  float64       `yaml:"agent_backoff_factor"`
	BreakerThreshold    uint32        `yaml:"breaker_threshold"`
	BreakerRecovery     time.Duration `yaml:"breaker_recovery"`
	MaxParallel         int           `yaml:"max_parallel"`
	StopConfidenceAbove float64       `yaml:"stop_confidence_above"`
	StopRiskAbove       float64       `yaml:"stop_risk_above"`
}

// AuditConfig holds investigation audit trail settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertsConfig holds operator notification settings.
type AlertsConfig struct {
	Slack   SlackAlertConfig   `yaml:"slack"`
	Discord DiscordAlertConfig `yaml:"discord"`
}

// SlackAlertConfig holds Slack alert sink settings.
type SlackAlertConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordAlertConfig holds Discord alert sink settings.
type DiscordAlertConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// JanitorConfig holds background maintenance schedules. Schedule values are
// cron expressions or plain durations ("5m").
type JanitorConfig struct {
	Enabled            bool   `yaml:"enabled"`
	PoolSweepSchedule  string `yaml:"pool_sweep_schedule"`
	CachePurgeSchedule string `yaml:"cache_purge_schedule"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.inquest/data. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".inquest", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8790",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				Burst:          20,
			},
			Metrics: true,
		},
		Backends: BackendsConfig{
			Pool: PoolConfig{
				MaxIdlePerEndpoint:  5,
				SweepInterval:       5 * time.Minute,
				IdleStaleAfter:      30 * time.Minute,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Retry: RetryConfig{
				BaseDelay:  4 * time.Second,
				MaxDelay:   10 * time.Second,
				Multiplier: 2.0,
			},
			BreakerRecovery: 30 * time.Second,
		},
		Agents: []AgentConfig{
			{Kind: "network", Endpoint: "threat-intel", Operation: "network.analyze", UseCache: true, CacheTTL: 10 * time.Minute},
			{Kind: "device", Endpoint: "device-intel", Operation: "device.profile", UseCache: true, CacheTTL: 10 * time.Minute},
			{Kind: "logs", Endpoint: "log-analytics", Operation: "activity.scan"},
			{Kind: "chain", Endpoint: "chain-analysis", Operation: "wallet.screen", UseCache: true, CacheTTL: time.Hour},
		},
		Cache: CacheConfig{
			Enabled:    true,
			Store:      "memory",
			Path:       filepath.Join(dataDir, "cache"),
			DefaultTTL: 5 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			AgentTimeout:        120 * time.Second,
			AgentMaxAttempts:    2,
			AgentBackoffBase:    time.Second,
			AgentBackoffFactor:  1.5,
			BreakerThreshold:    3,
			BreakerRecovery:     60 * time.Second,
			MaxParallel:         8,
			StopConfidenceAbove: 0.8,
			StopRiskAbove:       0.7,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    filepath.Join(dataDir, "audit.db"),
		},
		Janitor: JanitorConfig{
			Enabled:            true,
			PoolSweepSchedule:  "5m",
			CachePurgeSchedule: "30m",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Process includes (merges included files into cfg).
	hasIncludes := len(cfg.Includes) > 0
	if hasIncludes {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("INQUEST_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps INQUEST_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INQUEST_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("INQUEST_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("INQUEST_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("INQUEST_TRACING"); v != "" {
		cfg.Tracer.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("INQUEST_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Enabled = true
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("INQUEST_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
			Token: v,
			Name:  "env",
		})
	}
	if v := os.Getenv("INQUEST_CACHE_STORE"); v != "" {
		cfg.Cache.Store = v
	}
	if v := os.Getenv("INQUEST_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("INQUEST_AUDIT_PATH"); v != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.Path = v
	}
	if v := os.Getenv("INQUEST_SLACK_BOT_TOKEN"); v != "" {
		if cfg.Alerts.Slack.BotToken == "" {
			cfg.Alerts.Slack.BotToken = v
		}
	}
	if v := os.Getenv("INQUEST_DISCORD_TOKEN"); v != "" {
		if cfg.Alerts.Discord.Token == "" {
			cfg.Alerts.Discord.Token = v
		}
	}
	if v := os.Getenv("INQUEST_AGENT_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Orchestrator.AgentTimeout = time.Duration(secs) * time.Second
		}
	}
	// API keys: INQUEST_API_KEY_<REF>=secret registers or overrides a key ref.
	for _, kv := range os.Environ() {
		const prefix = "INQUEST_API_KEY_"
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		rest := strings.TrimPrefix(kv, prefix)
		eq := strings.Index(rest, "=")
		if eq <= 0 {
			continue
		}
		ref := strings.ToLower(rest[:eq])
		if cfg.APIKeys == nil {
			cfg.APIKeys = make(map[string]string)
		}
		cfg.APIKeys[ref] = rest[eq+1:]
	}
}

// decryptSecrets finds "enc:..." values in secrets and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for ref, key := range cfg.APIKeys {
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("api key %s: %w", ref, err)
			}
			cfg.APIKeys[ref] = decrypted
		}
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}

	alertSecrets := []*string{
		&cfg.Alerts.Slack.BotToken,
		&cfg.Alerts.Discord.Token,
	}
	for _, fp := range alertSecrets {
		if strings.HasPrefix(*fp, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("alert secret: %w", err)
			}
			*fp = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
