package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"trading-bot/internal/strategy"
	"trading-bot/pkg/config"
	"trading-bot/pkg/market"
	"trading-bot/pkg/market/hyperliquid"
)

// signal_check fetches live candles and prints the entry verdict of every
// strategy in the catalog. It never places orders.
//
// Usage:
//   go run ./scripts/signal_check -coin ETH
//
// The momentum variant also prints its exit verdict.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}

	coin := flag.String("coin", cfg.TradeCoin, "coin to evaluate")
	params := flag.String("params", cfg.StrategyConfigPath, "strategy parameter file")
	flag.Parse()

	p, err := strategy.LoadParams(*params)
	if err != nil {
		log.Fatalf("load strategy params: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := hyperliquid.NewClient(cfg.HyperliquidInfoURL)
	symbol := strings.ToUpper(*coin)
	now := time.Now()

	report := map[string]any{"coin": symbol, "checked_at": now.UTC().Format(time.RFC3339)}
	for _, def := range strategy.Catalog() {
		candles, err := client.Candles(ctx, symbol, def.Interval, def.Bars)
		if err != nil {
			log.Printf("[%s] fetch %s candles: %v", def.ID, def.Interval, err)
			report[string(def.ID)] = map[string]any{"error": err.Error()}
			continue
		}
		closed := market.TrimInProgress(candles, now)

		entry := map[string]any{
			"interval": def.Interval,
			"candles":  len(closed),
			"entry":    strategy.EvaluateEntry(def.ID, closed, p),
		}
		if def.ID == strategy.Momentum {
			entry["exit"] = strategy.EvaluateMomentumExit(closed, p.Momentum)
		}
		report[string(def.ID)] = entry
	}

	out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("encode report: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
