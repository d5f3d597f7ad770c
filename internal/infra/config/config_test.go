package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("Gateway.Host = %q, want 0.0.0.0", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18789 {
		t.Errorf("Gateway.Port = %d, want 18789", cfg.Gateway.Port)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Actor.MaxSteps != 25 {
		t.Errorf("Actor.MaxSteps = %d, want 25", cfg.Actor.MaxSteps)
	}
	if cfg.Actor.ToolTimeout.Seconds() != 30 {
		t.Errorf("Actor.ToolTimeout = %v, want 30s", cfg.Actor.ToolTimeout)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("LLM.DefaultProvider = %q, want openai", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.CircuitFailures != 5 {
		t.Errorf("LLM.CircuitFailures = %d, want 5", cfg.LLM.CircuitFailures)
	}
}

func TestLoadLocalOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	yaml := "gateway:\n  port: 9999\ndatabase:\n  type: postgres\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Port != 9999 {
		t.Errorf("Gateway.Port = %d, want 9999 from local config.yaml", cfg.Gateway.Port)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("Database.Type = %q, want postgres from local config.yaml", cfg.Database.Type)
	}
	// Values not set locally should still fall back to defaults.
	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("Gateway.Host = %q, want default 0.0.0.0", cfg.Gateway.Host)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EMA_GATEWAY.PORT", "7000")

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Port != 7000 {
		t.Errorf("Gateway.Port = %d, want 7000 from EMA_GATEWAY.PORT", cfg.Gateway.Port)
	}
}
