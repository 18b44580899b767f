package config

import (
	"os"
	"testing"
	"time"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GROUPBUY_APP_ENV", "production")
	t.Setenv("GROUPBUY_PLATFORM_ACCOUNT", "0d1f7f6e-8f3c-4a0b-9a63-0a4f6f0b8d11")
	t.Setenv("GROUPBUY_PLATFORM_FEE_BPS", "100")
	t.Setenv("GROUPBUY_REWARD_POOL_BPS", "50")
	t.Setenv("GROUPBUY_REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if !cfg.App.IsProd() {
		t.Fatal("expected IsProd to be true")
	}
	if cfg.Ledger.PlatformFeeBps != 100 || cfg.Ledger.RewardPoolBps != 50 {
		t.Fatalf("unexpected ledger bps: %+v", cfg.Ledger)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected Redis URL: %q", cfg.Redis.URL)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("redis should be enabled when a URL is set")
	}
	if got := cfg.Ledger.DefaultJoinWindow; got != 168*time.Hour {
		t.Fatalf("expected default join window 168h, got %v", got)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv("GROUPBUY_APP_ENV"); err != nil {
		t.Fatalf("failed to unset app env: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error when required env vars are missing")
	}
}

func TestLoad_RejectsOutOfRangeBps(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("GROUPBUY_PLATFORM_FEE_BPS", "10001")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for fee bps above 10000")
	}
}
