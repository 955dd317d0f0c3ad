package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ETH_BALANCE_URL", "")
	t.Setenv("ETH_RPC_URLS", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("BALANCE_TIERS_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.Port)
	}
	if cfg.IsProduction() {
		t.Error("Expected non-production default")
	}
	if cfg.DatabaseURL != "sqlite://agents.db" {
		t.Errorf("Expected sqlite fallback outside production, got %q", cfg.DatabaseURL)
	}
	if cfg.SignatureScheme != "evm" {
		t.Errorf("Expected evm scheme, got %s", cfg.SignatureScheme)
	}
	if cfg.Runtime.Timeout != 30*time.Second {
		t.Errorf("Expected 30s runtime timeout, got %v", cfg.Runtime.Timeout)
	}
	if len(cfg.Balance.Tiers) != 0 {
		t.Errorf("Expected no balance tiers, got %d", len(cfg.Balance.Tiers))
	}
}

func TestLoadProductionForcesStrictRuntime(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEPLOYMENT_STRICT", "false")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/agents")
	t.Setenv("ETH_BALANCE_URL", "http://rpc.local")
	t.Setenv("BALANCE_TIERS_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Runtime.Strict {
		t.Error("Expected strict runtime in production")
	}
}

func TestLoadProductionRequiresBalanceTier(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/agents")
	t.Setenv("ETH_BALANCE_URL", "")
	t.Setenv("ETH_RPC_URLS", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("BALANCE_TIERS_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error when no balance tier is configured in production")
	}
}

func TestLoadLiveValidationRequiresTwitterLoginCheck(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CLIENT_VALIDATION_MODE", "live")
	t.Setenv("TWITTER_PROBE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for live validation without TWITTER_PROBE_URL")
	}

	t.Setenv("TWITTER_PROBE_URL", "http://login-check.local/verify")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClientValidationMode != "live" {
		t.Errorf("Expected live, got %s", cfg.ClientValidationMode)
	}
}

func TestEnvBalanceTiers(t *testing.T) {
	t.Setenv("ETH_RPC_URLS", "http://a.local, http://b.local")
	t.Setenv("SOLANA_RPC_URL", "http://sol.local")
	t.Setenv("TOKEN_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("MIN_NATIVE_BALANCE", "0.5")
	t.Setenv("MIN_TOKEN_BALANCE", "1000")

	tiers := envBalanceTiers()
	if len(tiers) != 3 {
		t.Fatalf("Expected 3 tiers, got %d", len(tiers))
	}
	if tiers[1].RPCURL != "http://b.local" {
		t.Errorf("Expected trimmed URL, got %q", tiers[1].RPCURL)
	}
	if tiers[0].MinNative != 0.5 || tiers[0].MinToken != 1000 {
		t.Errorf("Unexpected thresholds: %+v", tiers[0])
	}
	if tiers[2].Chain != "solana" {
		t.Errorf("Expected solana tier last, got %s", tiers[2].Chain)
	}
}

func TestLoadBalanceTiersYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `tiers:
  - name: mainnet
    rpc_url: http://mainnet.local
    min_native: 0.1
    token_address: "0x2222222222222222222222222222222222222222"
    min_token: 500
  - chain: solana
    rpc_url: http://sol.local
    min_native: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write tiers file: %v", err)
	}

	tiers, err := LoadBalanceTiers(path)
	if err != nil {
		t.Fatalf("LoadBalanceTiers failed: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("Expected 2 tiers, got %d", len(tiers))
	}
	if tiers[0].Chain != "evm" || tiers[0].TokenDecimals != 18 {
		t.Errorf("Expected evm defaults on first tier, got %+v", tiers[0])
	}
	if tiers[1].Name != "tier-2" {
		t.Errorf("Expected generated name tier-2, got %q", tiers[1].Name)
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "45")
	if got := getDurationEnv("TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("Expected 45s from bare seconds, got %v", got)
	}
	t.Setenv("TEST_DURATION", "2m")
	if got := getDurationEnv("TEST_DURATION", time.Second); got != 2*time.Minute {
		t.Errorf("Expected 2m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "bogus")
	if got := getDurationEnv("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected default on parse failure, got %v", got)
	}
}
