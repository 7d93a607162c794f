package daemon

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestSystemdTemplateRender(t *testing.T) {
	cfg := Config{
		Name:       "inquest",
		BinaryPath: "/usr/local/bin/inquest",
		ConfigPath: "/etc/inquest/config.yaml",
		WorkDir:    "/var/lib/inquest",
		User:       "inquest",
		LogPath:    "/var/log/inquest",
		HomeDir:    "/home/inquest",
	}

	content, err := RenderSystemdUnit(cfg)
	if err != nil {
		t.Fatalf("RenderSystemdUnit: %v", err)
	}

	checks := []string{
		"[Unit]",
		"Description=inquest",
		"ExecStart=/usr/local/bin/inquest serve --config /etc/inquest/config.yaml",
		"WorkingDirectory=/var/lib/inquest",
		"User=inquest",
		"StandardOutput=append:/var/log/inquest/inquest.log",
		"Environment=HOME=/home/inquest",
		"[Install]",
		"WantedBy=multi-user.target",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Errorf("systemd unit missing %q:\n%s", check, content)
		}
	}
}

func TestLaunchdTemplateRender(t *testing.T) {
	cfg := Config{
		Name:       "inquest",
		BinaryPath: "/usr/local/bin/inquest",
		ConfigPath: "/Users/test/.inquest/config.yaml",
		WorkDir:    "/Users/test/.local/share/inquest",
		LogPath:    "/Users/test/.local/share/inquest/logs",
		HomeDir:    "/Users/test",
	}

	content, err := RenderLaunchdPlist(cfg)
	if err != nil {
		t.Fatalf("RenderLaunchdPlist: %v", err)
	}

	checks := []string{
		"io.inquest.inquest",
		"/usr/local/bin/inquest",
		"<string>serve</string>",
		"--config",
		"/Users/test/.inquest/config.yaml",
		"RunAtLoad",
		"KeepAlive",
		"inquest.log",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Errorf("launchd plist missing %q:\n%s", check, content)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "inquest" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.BinaryPath == "" {
		t.Error("BinaryPath should not be empty")
	}
	if cfg.User == "" {
		t.Error("User should not be empty")
	}
	if cfg.HomeDir == "" {
		t.Error("HomeDir should not be empty")
	}
	if !strings.HasSuffix(cfg.ConfigPath, filepath.Join(".inquest", "config.yaml")) {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
}

func TestInstallUnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		t.Skip("skipping on supported platform")
	}
	err := Install(DefaultConfig())
	if err == nil {
		t.Fatal("expected unsupported platform error")
	}
	if !strings.Contains(err.Error(), "unsupported platform") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty name")
	}

	cfg = Config{Name: "test"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty binary path")
	}

	cfg = Config{Name: "test", BinaryPath: "/nonexistent/binary"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-existent binary")
	}

	// The test binary itself is a known-good executable.
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine executable: %v", err)
	}
	cfg = Config{Name: "test", BinaryPath: exe}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidateNotExecutable(t *testing.T) {
	dir := t.TempDir()
	notExec := filepath.Join(dir, "notexec")
	if err := os.WriteFile(notExec, []byte("#!/bin/sh"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Name: "test", BinaryPath: notExec}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for non-executable binary")
	}
	if !strings.Contains(err.Error(), "not executable") {
		t.Errorf("unexpected error: %v", err)
	}
}
