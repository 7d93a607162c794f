package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Backends.Pool.MaxIdlePerEndpoint != 5 {
		t.Errorf("MaxIdlePerEndpoint = %d, want 5", cfg.Backends.Pool.MaxIdlePerEndpoint)
	}
	if cfg.Backends.Retry.BaseDelay != 4*time.Second {
		t.Errorf("Retry.BaseDelay = %v, want 4s", cfg.Backends.Retry.BaseDelay)
	}
	if cfg.Backends.Retry.MaxDelay != 10*time.Second {
		t.Errorf("Retry.MaxDelay = %v, want 10s", cfg.Backends.Retry.MaxDelay)
	}
	if cfg.Orchestrator.AgentTimeout != 120*time.Second {
		t.Errorf("AgentTimeout = %v, want 120s", cfg.Orchestrator.AgentTimeout)
	}
	if cfg.Orchestrator.BreakerThreshold != 3 {
		t.Errorf("BreakerThreshold = %d, want 3", cfg.Orchestrator.BreakerThreshold)
	}
	if cfg.Cache.Store != "memory" {
		t.Errorf("Cache.Store = %q, want memory", cfg.Cache.Store)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want info", cfg.Logger.Level)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-inquest-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.AgentMaxAttempts != 2 {
		t.Errorf("expected defaults, got AgentMaxAttempts=%d", cfg.Orchestrator.AgentMaxAttempts)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logger:
  level: "debug"
backends:
  endpoints:
    - name: "threat-intel"
      address: "https://ti.internal:9443"
      transport: "http"
      timeout_seconds: 30
      max_retries: 2
      circuit_threshold: 5
      api_key_ref: "ti"
    - name: "ml-inference"
      address: "wss://ml.internal:9444"
      transport: "stream"
      timeout_seconds: 45
      circuit_threshold: 3
api_keys:
  ti: "plain-key-123"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if len(cfg.Backends.Endpoints) != 2 {
		t.Fatalf("Endpoints = %d, want 2", len(cfg.Backends.Endpoints))
	}
	ep := cfg.Backends.Endpoints[0]
	if ep.Name != "threat-intel" || ep.TimeoutSeconds != 30 || !ep.IsEnabled() {
		t.Errorf("endpoint mismatch: %+v", ep)
	}
	if cfg.Backends.Endpoints[1].Transport != "stream" {
		t.Errorf("Transport = %q, want stream", cfg.Backends.Endpoints[1].Transport)
	}
}

func TestLoadRejectsDuplicateEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backends:
  endpoints:
    - name: "geoip"
      address: "https://a.internal"
      transport: "http"
      timeout_seconds: 10
      circuit_threshold: 5
    - name: "geoip"
      address: "https://b.internal"
      transport: "http"
      timeout_seconds: 10
      circuit_threshold: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for duplicate endpoint names")
	}
}

func TestEndpointEnabledTriState(t *testing.T) {
	var ep EndpointConfig
	if !ep.IsEnabled() {
		t.Error("unset enabled should mean enabled")
	}
	f := false
	ep.Enabled = &f
	if ep.IsEnabled() {
		t.Error("enabled=false should mean disabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INQUEST_LOG_LEVEL", "error")
	t.Setenv("INQUEST_GATEWAY_ADDR", "127.0.0.1:9999")
	t.Setenv("INQUEST_CACHE_STORE", "badger")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "error" {
		t.Errorf("Logger.Level = %q, want error", cfg.Logger.Level)
	}
	if !cfg.Gateway.Enabled || cfg.Gateway.Addr != "127.0.0.1:9999" {
		t.Errorf("gateway override not applied: %+v", cfg.Gateway)
	}
	if cfg.Cache.Store != "badger" {
		t.Errorf("Cache.Store = %q, want badger", cfg.Cache.Store)
	}
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("INQUEST_API_KEY_TI", "from-env")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.APIKeys["ti"] != "from-env" {
		t.Errorf("APIKeys[ti] = %q, want from-env", cfg.APIKeys["ti"])
	}
}

func TestEnvOverridesAgentTimeout(t *testing.T) {
	t.Setenv("INQUEST_AGENT_TIMEOUT_SECONDS", "45")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Orchestrator.AgentTimeout != 45*time.Second {
		t.Errorf("AgentTimeout = %v, want 45s", cfg.Orchestrator.AgentTimeout)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptValue(encrypted, "wrong-pass")
	if err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "test-config-key"
	plainKey := "ti-secret-123"

	encrypted, err := EncryptValue(plainKey, passphrase)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	cfg.APIKeys = map[string]string{"ti": "enc:" + encrypted}
	cfg.Gateway.Auth.Tokens = []TokenConfig{{Name: "ops", Token: "enc:" + encrypted}}

	if err := decryptSecrets(cfg, passphrase); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.APIKeys["ti"] != plainKey {
		t.Errorf("APIKeys[ti] = %q, want %q", cfg.APIKeys["ti"], plainKey)
	}
	if cfg.Gateway.Auth.Tokens[0].Token != plainKey {
		t.Errorf("gateway token not decrypted")
	}
}

func TestDecryptSecretsNoEncPrefix(t *testing.T) {
	cfg := Defaults()
	cfg.APIKeys = map[string]string{"ti": "plain-key"}

	if err := decryptSecrets(cfg, "any-pass"); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.APIKeys["ti"] != "plain-key" {
		t.Error("plain keys should pass through untouched")
	}
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.APIKeys = map[string]string{"ti": "enc:not-valid"}

	if err := decryptSecrets(cfg, "pass"); err == nil {
		t.Error("expected error for invalid ciphertext")
	}
}

func TestDecryptValueInvalidFormat(t *testing.T) {
	_, err := DecryptValue("no-colon-here", "pass")
	if err == nil {
		t.Error("expected error for missing separator")
	}
}

func TestDecryptValueTooShort(t *testing.T) {
	_, err := DecryptValue("abcd:1234", "pass")
	if err == nil {
		t.Error("expected error for short ciphertext")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insecure.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0666); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for world-writable config")
	}
}
