package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trading-bot/internal/api"
	"trading-bot/internal/engine"
	"trading-bot/internal/events"
	"trading-bot/internal/journal"
	mdata "trading-bot/internal/market"
	"trading-bot/internal/monitor"
	"trading-bot/internal/notify"
	"trading-bot/internal/preview"
	"trading-bot/internal/risk"
	"trading-bot/internal/runner"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/config"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/aster"
	"trading-bot/pkg/exchanges/mtc"
	"trading-bot/pkg/i18n"
	"trading-bot/pkg/logger"
	"trading-bot/pkg/market/hyperliquid"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, i18n.Get("ConfigLoadFailed")+"\n", err)
		os.Exit(1)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	log := logger.Must(cfg.LogLevel, cfg.BotName)
	defer func() { _ = log.Sync() }()
	sugar := log.Sugar()

	if len(os.Args) > 1 && os.Args[1] == "register" {
		os.Exit(register(cfg, sugar))
	}

	sugar.Info(i18n.Get("Starting"))
	sugar.Infof(i18n.Get("ConfigLoaded"), cfg.Port, cfg.TradeCoin)
	if cfg.DryRun {
		sugar.Info(i18n.Get("DryRunMode"))
	} else {
		sugar.Info(i18n.Get("LiveMode"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DBDriver != "postgres" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			sugar.Fatalf(i18n.Get("DBInitFailed"), err)
		}
	}
	store, err := db.Open(ctx, cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer store.Close()
	sugar.Infof(i18n.Get("UsingDatabase"), cfg.DBDriver)

	params, err := strategy.LoadParams(cfg.StrategyConfigPath)
	if err != nil {
		sugar.Warnf(i18n.Get("StrategyConfigLoadFailed"), err)
	} else {
		sugar.Infof(i18n.Get("StrategyConfigLoaded"), cfg.StrategyConfigPath)
	}

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	venue := mtc.NewClient(cfg.MTCBaseURL, cfg.MTCAPIKey)
	if !venue.HasCredentials() {
		sugar.Warn(i18n.Get("IdleMode"))
	}

	// Market data: the runner reads candles directly, chart requests go
	// through the cache.
	hl := hyperliquid.NewClient(cfg.HyperliquidInfoURL)
	overlay := mdata.NewCachedSource(hl)
	go purgeCandles(ctx, overlay, log)

	bot, err := runner.New(runner.Options{
		TradeCoin:          cfg.TradeCoin,
		DryRun:             cfg.DryRun,
		PollInterval:       cfg.PollInterval,
		MaxPositions:       cfg.MaxPositions,
		ManualMaxPositions: cfg.ManualMaxPositions,
		ManualSymbols:      cfg.ManualSymbols,
		Settings: risk.Settings{
			MarginBoks:   cfg.MarginBoks,
			Leverage:     cfg.Leverage,
			SLCapitalPct: cfg.SLCapitalPct,
			TPCapitalPct: cfg.TPCapitalPct,
		}.Clamp(),
		Params: params,
	}, runner.Deps{
		Venue:   venue,
		Candles: hl,
		Overlay: overlay,
		Store:   store,
		Journal: journal.New(log.Named("runner"), store, time.Now),
		Bus:     bus,
		Metrics: metrics,
	})
	if err != nil {
		sugar.Fatalf(i18n.Get("StateLoadFailed"), err)
	}
	if err := bot.LoadState(ctx); err != nil {
		sugar.Warnf(i18n.Get("StateLoadFailed"), err)
	}

	// Alerts
	mon := &monitor.Monitor{Bus: bus, Logger: log.Named("monitor")}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, bot, log.Named("telegram"))
		if err != nil {
			sugar.Warnf(i18n.Get("TelegramFailed"), err)
			mon.Sink = notify.LogSink{Logger: log.Named("alerts")}
		} else {
			sugar.Info(i18n.Get("TelegramEnabled"))
			mon.Sink = tg
			go tg.Run(ctx)
		}
	} else {
		sugar.Info(i18n.Get("AlertsToLog"))
		mon.Sink = notify.LogSink{Logger: log.Named("alerts")}
	}
	mon.Start(ctx)

	// Aster preview
	var previewer engine.Previewer
	if cfg.AsterBaseURL != "" {
		asterClient := aster.NewClient(aster.Config{
			BaseURL:   cfg.AsterBaseURL,
			APIKey:    cfg.AsterAPIKey,
			APISecret: cfg.AsterAPISecret,
		}, log.Named("aster"))
		if asterClient.HasCredentials() {
			asterClient.StartTimeSync(ctx)
		}
		previewer = preview.New(asterClient, preview.Defaults{
			Symbol:   cfg.AsterSymbol,
			Notional: cfg.MarginBoks * cfg.Leverage,
			Leverage: int(cfg.Leverage),
			SLPct:    cfg.SLCapitalPct,
			TPPct:    cfg.TPCapitalPct,
		}, log.Named("preview"))
		sugar.Infof(i18n.Get("AsterPreviewEnabled"), cfg.AsterSymbol)
	}

	bot.Start(ctx)
	sugar.Infof(i18n.Get("RunnerStarted"), cfg.PollInterval, bot.ActiveStrategy())

	server := api.NewServer(api.Config{
		Bus:     bus,
		Store:   store,
		Engine:  bot,
		Preview: previewer,
		Metrics: metrics,
		Logger:  log.Named("api"),
		Meta:    api.SystemMeta{BotName: cfg.BotName, Version: version},
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sugar.Infof(i18n.Get("ServerListening"), cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorf(i18n.Get("APIServerError"), err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	sugar.Info(i18n.Get("ShuttingDown"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	stopWait := 3 * time.Second
	if bot.Stop(stopWait) {
		sugar.Info(i18n.Get("RunnerStopped"))
	} else {
		sugar.Warnf(i18n.Get("RunnerStopTimeout"), stopWait)
	}
	cancel()
}

// register asks the venue for a new bot identity and prints the response,
// which carries the API key to put in MTC_API_KEY.
func register(cfg *config.Config, sugar *zap.SugaredLogger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := mtc.NewClient(cfg.MTCBaseURL, "")
	resp, err := client.RegisterBot(ctx, cfg.BotName, fmt.Sprintf("%s long-only bot", cfg.TradeSymbol()))
	if err != nil {
		sugar.Errorf(i18n.Get("BotRegisterFailed"), err)
		return 1
	}
	sugar.Infof(i18n.Get("BotRegistered"), cfg.BotName)
	for k, v := range resp {
		fmt.Printf("%s=%v\n", k, v)
	}
	return 0
}

func purgeCandles(ctx context.Context, c *mdata.CachedSource, log *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				log.Debug(fmt.Sprintf(i18n.Get("CandleCachePurged"), n))
			}
		}
	}
}
