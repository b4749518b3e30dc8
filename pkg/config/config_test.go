package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRADE_COIN", "")
	t.Setenv("POLL_SECONDS", "")
	t.Setenv("DRY_RUN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradeCoin != "ETH" || cfg.TradeSymbol() != "ETHUSDT" {
		t.Fatalf("unexpected coin %q / %q", cfg.TradeCoin, cfg.TradeSymbol())
	}
	if cfg.PollInterval != 20*time.Second {
		t.Fatalf("poll interval=%v", cfg.PollInterval)
	}
	if !cfg.DryRun {
		t.Fatalf("dry run should default to true")
	}
	if len(cfg.ManualSymbols) != 7 {
		t.Fatalf("manual symbols=%v", cfg.ManualSymbols)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRADE_COIN", "solusdt")
	t.Setenv("POLL_SECONDS", "1")
	t.Setenv("DRY_RUN", "off")
	t.Setenv("LEVERAGE", "10")
	t.Setenv("MANUAL_SYMBOLS", " BTCUSDT , ,ETHUSDT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradeCoin != "SOL" {
		t.Fatalf("coin=%q", cfg.TradeCoin)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval should clamp to 5s, got %v", cfg.PollInterval)
	}
	if cfg.DryRun {
		t.Fatalf("dry run should be disabled")
	}
	if cfg.Leverage != 10 {
		t.Fatalf("leverage=%v", cfg.Leverage)
	}
	if len(cfg.ManualSymbols) != 2 || cfg.ManualSymbols[1] != "ETHUSDT" {
		t.Fatalf("manual symbols=%v", cfg.ManualSymbols)
	}
}

func TestNormalizeCoin(t *testing.T) {
	cases := map[string]string{"ethusdt": "ETH", "ETH": "ETH", " btcUSDT ": "BTC", "USDT": "USDT"}
	for in, want := range cases {
		if got := NormalizeCoin(in); got != want {
			t.Fatalf("NormalizeCoin(%q)=%q want %q", in, got, want)
		}
	}
}
