package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "watchlist: [BTCUSDT, ETHUSDT]\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != "paper" {
		t.Fatalf("expected paper mode default, got %q", cfg.Mode)
	}
	if cfg.Risk.MaxRiskPerTrade != 0.01 || cfg.Risk.StopLossPct != 0.003 {
		t.Fatalf("risk defaults not applied: %+v", cfg.Risk)
	}
	if cfg.ExchangeTimeout != 15*time.Second {
		t.Fatalf("expected 15s exchange timeout, got %v", cfg.ExchangeTimeout)
	}
	if len(cfg.QuantityTiers) == 0 {
		t.Fatal("expected default quantity tiers")
	}
}

func TestLoadRejectsEmptyWatchlist(t *testing.T) {
	path := writeTemp(t, "mode: paper\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty watchlist")
	}
}

func TestLoadRejectsLiveWithoutCredentials(t *testing.T) {
	path := writeTemp(t, "mode: live\nwatchlist: [BTCUSDT]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for live mode without credentials")
	}
}

func TestValidateRejectsUnsortedTiers(t *testing.T) {
	cfg := &Config{
		Mode:            "paper",
		Watchlist:       []string{"BTCUSDT"},
		ScanInterval:    time.Minute,
		SyncInterval:    15 * time.Minute,
		RegimeInterval:  4 * time.Hour,
		ExchangeTimeout: 15 * time.Second,
		Risk: RiskConfig{
			MaxRiskPerTrade: 0.01, MaxLeverage: 20, MinOrderNotional: 10,
			StopLossPct: 0.003, TakeProfitPct: 0.005, CircuitBreakerGapPct: 0.05,
		},
		QuantityTiers: []QuantityTier{{MinPrice: 10, Decimals: 1}, {MinPrice: 1000, Decimals: 2}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsorted quantity tiers")
	}
}

func TestDecimalsTierLookup(t *testing.T) {
	cfg := &Config{QuantityTiers: DefaultQuantityTiers}
	if d := cfg.Decimals(45_000); d != 3 {
		t.Fatalf("expected 3 decimals for a 45k asset, got %d", d)
	}
	if d := cfg.Decimals(2_500); d != 2 {
		t.Fatalf("expected 2 decimals for a 2.5k asset, got %d", d)
	}
	if d := cfg.Decimals(0.5); d != 0 {
		t.Fatalf("expected 0 decimals for a sub-dollar asset, got %d", d)
	}
}
