package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.Validator.StaleAfter != 90*time.Second {
		t.Errorf("Validator.StaleAfter = %v, want 90s", cfg.Validator.StaleAfter)
	}
	if cfg.Control.SocketPath == "" {
		t.Error("expected a non-empty default control socket path")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("LLOOM_ENV", "production")
	os.Setenv("LLOOM_EXECUTOR_BACKEND_URL", "http://localhost:11434")
	defer os.Unsetenv("LLOOM_ENV")
	defer os.Unsetenv("LLOOM_EXECUTOR_BACKEND_URL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.Executor.BackendURL != "http://localhost:11434" {
		t.Errorf("Executor.BackendURL = %q, want http://localhost:11434", cfg.Executor.BackendURL)
	}
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err != nil {
		t.Fatalf("Load with missing config file should not error, got: %v", err)
	}
}
