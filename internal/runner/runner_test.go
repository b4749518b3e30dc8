package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"trading-bot/internal/clock"
	"trading-bot/internal/events"
	"trading-bot/internal/journal"
	mdata "trading-bot/internal/market"
	"trading-bot/internal/monitor"
	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
)

type fakeVenue struct {
	mu           sync.Mutex
	key          bool
	account      common.Account
	accountErr   error
	positions    []common.Position
	positionsErr error
	afterOpen    []common.Position
	openResp     common.Response
	openErr      error
	closeErr     error
	claimErr     error

	opens  []common.OpenRequest
	closes []common.CloseRequest
	claims int
}

func (f *fakeVenue) HasCredentials() bool { return f.key }

func (f *fakeVenue) Account(context.Context) (common.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.accountErr
}

func (f *fakeVenue) Positions(context.Context) ([]common.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return append([]common.Position(nil), f.positions...), nil
}

func (f *fakeVenue) History(context.Context, int) ([]map[string]any, error) {
	return []map[string]any{{"positionId": "old"}}, nil
}

func (f *fakeVenue) OpenTrade(_ context.Context, req common.OpenRequest) (common.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.afterOpen != nil {
		f.positions = f.afterOpen
	}
	return f.openResp, nil
}

func (f *fakeVenue) CloseTrade(_ context.Context, req common.CloseRequest) (common.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, req)
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	kept := f.positions[:0]
	for _, p := range f.positions {
		if p.ID != req.PositionID {
			kept = append(kept, p)
		}
	}
	f.positions = kept
	return common.Response{"success": true}, nil
}

func (f *fakeVenue) DailyClaim(context.Context) (common.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return common.Response{"claimed": 50}, nil
}

type harness struct {
	r      *Runner
	venue  *fakeVenue
	db     *db.Database
	source *mdata.StaticSource
	clock  *clock.Fake
	logs   *observer.ObservedLogs
	bus    *events.Bus
}

var testNow = time.Unix(1_700_000_000, 0)

const fourHours = int64(4 * time.Hour / time.Millisecond)

func trendSignalCandles() []float64 {
	closes := make([]float64, 0, 63)
	for i := 0; i < 60; i++ {
		closes = append(closes, 100)
	}
	return append(closes, 110, 110, 110)
}

func flatCloses(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newHarness(t *testing.T, venue *fakeVenue, mutate func(*Options, *Deps)) *harness {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	clk := clock.NewFake(testNow)
	core, logs := observer.New(zap.DebugLevel)
	j := journal.New(zap.New(core), d, clk.Now)
	source := mdata.NewStaticSource()
	source.SetCandles("4h", mdata.Series(trendSignalCandles(), 0, fourHours))
	source.SetCandles("15m", mdata.Series(flatCloses(100, 300), 0, 900_000))
	bus := events.NewBus()

	opts := Options{
		TradeCoin:    "ETH",
		PollInterval: 20 * time.Second,
		MaxPositions: 5,
		Settings:     risk.Settings{MarginBoks: 100, Leverage: 5, SLCapitalPct: 0.01, TPCapitalPct: 0.03},
	}
	deps := Deps{
		Venue:   venue,
		Candles: source,
		Store:   d,
		Journal: j,
		Bus:     bus,
		Metrics: monitor.NewMetrics(),
		Clock:   clk,
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	r, err := New(opts, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{r: r, venue: venue, db: d, source: source, clock: clk, logs: logs, bus: bus}
}

func liveVenue() *fakeVenue {
	return &fakeVenue{
		key:     true,
		account: common.Account{Balance: 900, AvailableBalance: 850, LockedMargin: 100},
	}
}

func long(id string, pnl float64) common.Position {
	return common.Position{ID: id, Coin: "ETH", Side: common.SideLong, UnrealizedPnL: pnl, OpenedAt: 1}
}

func (h *harness) logged(msg string) bool {
	return h.logs.FilterMessage(msg).Len() > 0
}

func (h *harness) trades(t *testing.T) []db.TradeRecord {
	t.Helper()
	trades, err := h.db.Trades(context.Background(), 100)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	return trades
}

func TestTickOpensTrendEntry(t *testing.T) {
	venue := liveVenue()
	venue.afterOpen = []common.Position{long("p1", 0)}
	venue.openResp = common.Response{"success": true}
	h := newHarness(t, venue, nil)
	ctx := context.Background()

	if err := h.r.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(venue.opens) != 1 {
		t.Fatalf("opens = %d, want 1", len(venue.opens))
	}
	req := venue.opens[0]
	if req.Coin != "ETH" || req.Side != common.SideLong || req.StopLoss != 107.8 || req.TakeProfit != 116.6 {
		t.Fatalf("open request = %+v", req)
	}
	if id, _ := h.r.owners.StrategyID(ctx); id != "p1" {
		t.Fatalf("strategy id = %q", id)
	}
	marker, _ := h.db.Get(ctx, "last_entry_candle", "")
	if want := "892800000"; marker != want {
		t.Fatalf("marker = %q, want %q", marker, want)
	}
	if !h.logged("Opened strategy long on ETH.") {
		t.Fatal("missing open log")
	}

	if err := h.r.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(venue.opens) != 1 {
		t.Fatalf("second tick must not open again, opens = %d", len(venue.opens))
	}
	if !h.logged("Strategy position already open for ETH. No new entry.") {
		t.Fatal("missing already-open log")
	}

	snaps, err := h.db.EquityCurve(ctx, 10)
	if err != nil || len(snaps) != 2 {
		t.Fatalf("equity snapshots = %d, %v", len(snaps), err)
	}
	if snaps[0].TotalEquity != 1000 {
		t.Fatalf("total equity = %v", snaps[0].TotalEquity)
	}
}

func TestDryRunEntryOncePerCandle(t *testing.T) {
	h := newHarness(t, liveVenue(), func(o *Options, _ *Deps) { o.DryRun = true })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.r.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(h.venue.opens) != 0 {
		t.Fatal("dry run must not call the venue")
	}
	trades := h.trades(t)
	if len(trades) != 1 || trades[0].Status != db.StatusDryRun || trades[0].Action != db.ActionOpen {
		t.Fatalf("trades = %+v", trades)
	}
	if !h.logged("Signal already traded for this candle.") {
		t.Fatal("second tick should hit the candle marker")
	}
	signals, _ := h.db.Signals(ctx, 10)
	if len(signals) != 2 || !signals[0].Signal || signals[0].Timeframe != "4h" {
		t.Fatalf("signals = %+v", signals)
	}
}

func TestNoEntryWhenPausedOrFull(t *testing.T) {
	t.Run("paused", func(t *testing.T) {
		h := newHarness(t, liveVenue(), nil)
		h.r.Pause(context.Background())
		_ = h.r.Tick(context.Background())
		if len(h.venue.opens) != 0 {
			t.Fatal("paused runner opened a trade")
		}
	})
	t.Run("max positions", func(t *testing.T) {
		venue := liveVenue()
		venue.positions = []common.Position{
			{ID: "a", Coin: "BTC", Side: common.SideLong},
			{ID: "b", Coin: "SOL", Side: common.SideLong},
		}
		h := newHarness(t, venue, func(o *Options, _ *Deps) { o.MaxPositions = 2 })
		_ = h.r.Tick(context.Background())
		if len(venue.opens) != 0 || !h.logged("Max positions reached. Skip entry.") {
			t.Fatal("expected max positions skip")
		}
	})
	t.Run("capital unavailable", func(t *testing.T) {
		venue := liveVenue()
		venue.account = common.Account{}
		h := newHarness(t, venue, nil)
		_ = h.r.Tick(context.Background())
		if len(venue.opens) != 0 || !h.logged("Capital unavailable. Skip entry.") {
			t.Fatal("expected capital skip")
		}
	})
}

func TestTrendRiskExit(t *testing.T) {
	tests := []struct {
		name  string
		pnl   float64
		close bool
		note  string
	}{
		{"stop loss", -10, true, "SL hit on total capital (-10.00 BOKS)"},
		{"take profit", 30, true, "TP hit on total capital (30.00 BOKS)"},
		{"inside band", 5, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venue := liveVenue()
			venue.positions = []common.Position{long("s1", tt.pnl)}
			h := newHarness(t, venue, nil)
			ctx := context.Background()
			_ = h.r.owners.BindStrategy(ctx, "s1")

			if err := h.r.Tick(ctx); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if got := len(venue.closes) == 1; got != tt.close {
				t.Fatalf("closed = %v, want %v", got, tt.close)
			}
			if !tt.close {
				return
			}
			if venue.closes[0].Comment != defaultRiskComment {
				t.Fatalf("comment = %q", venue.closes[0].Comment)
			}
			if !h.logged("Closed position s1: " + tt.note) {
				t.Fatalf("missing close log for %q", tt.note)
			}
			if id, _ := h.r.owners.StrategyID(ctx); id != "" {
				t.Fatalf("strategy id not cleared: %q", id)
			}
		})
	}
}

func TestCloseRespectsGuard(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", -50)}
	h := newHarness(t, venue, func(_ *Options, d *Deps) {
		d.Guard = common.NewTradeWindow(0, time.Minute, nil)
	})
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")

	_ = h.r.Tick(ctx)
	if len(venue.closes) != 0 {
		t.Fatal("guard should block the close")
	}
	if !h.logged("Skipped close trade due to rate limit guard.") {
		t.Fatal("missing guard log")
	}
}

func TestCloseFailureRecordsError(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", -50)}
	venue.closeErr = &common.APIError{Code: "INVALID", Status: 400, Message: "bad"}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")

	_ = h.r.Tick(ctx)
	trades := h.trades(t)
	if len(trades) == 0 || trades[0].Action != db.ActionClose || trades[0].Status != db.StatusError {
		t.Fatalf("trades = %+v", trades)
	}
	if id, _ := h.r.owners.StrategyID(ctx); id != "s1" {
		t.Fatal("failed close must keep ownership")
	}
}

func TestMomentumTrailingStop(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", 0)}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	if res := h.r.SetActiveStrategy(ctx, strategy.Momentum); !res.Success {
		t.Fatalf("SetActiveStrategy: %s", res.Message)
	}
	_ = h.r.owners.BindStrategy(ctx, "s1")

	steps := []struct {
		pnl    float64
		closed int
	}{
		{0, 0},
		{12, 0},
		{1, 1},
	}
	for i, step := range steps {
		venue.mu.Lock()
		if len(venue.positions) > 0 {
			venue.positions[0].UnrealizedPnL = step.pnl
		}
		venue.mu.Unlock()
		if err := h.r.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if len(venue.closes) != step.closed {
			t.Fatalf("tick %d: closes = %d, want %d", i, len(venue.closes), step.closed)
		}
	}

	if !h.logged("Initialized EMA strategy state for s1: R=10.000000") {
		t.Fatal("missing state init log")
	}
	if !h.logged("EMA trailing activated for s1 at >= 1R.") {
		t.Fatal("missing trailing activation log")
	}
	if venue.closes[0].Comment != "EMA strategy exit: trailing stop after 1R activation." {
		t.Fatalf("comment = %q", venue.closes[0].Comment)
	}
	if raw, _ := h.db.Get(ctx, keyRiskState, ""); raw != "" {
		t.Fatalf("risk state not cleared: %s", raw)
	}
	if !h.logged("Open LONG already exists on ETH. EMA strategy keeps one position per symbol.") {
		t.Fatal("momentum entry should be skipped while a LONG is open")
	}
}

func TestMomentumExitSignalFailureContinues(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", -20)}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	h.r.SetActiveStrategy(ctx, strategy.Momentum)
	_ = h.r.owners.BindStrategy(ctx, "s1")
	h.source.SetError(context.DeadlineExceeded)

	_ = h.r.Tick(ctx)
	if !h.logged("EMA exit signal evaluation failed: context deadline exceeded") {
		t.Fatal("missing exit evaluation error log")
	}
	if len(venue.closes) != 1 || venue.closes[0].Comment != "EMA strategy exit: stop loss 1R." {
		t.Fatalf("closes = %+v", venue.closes)
	}
}

func TestPositionsFailureKeepsOwnership(t *testing.T) {
	venue := liveVenue()
	venue.positionsErr = &common.APIError{Status: 502, Message: "bad gateway"}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")

	if err := h.r.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if id, _ := h.r.owners.StrategyID(ctx); id != "s1" {
		t.Fatalf("strategy id = %q, want s1", id)
	}
	if len(venue.opens) != 0 {
		t.Fatal("no entry without a position view")
	}
	if !h.logged("Positions fetch failed: bad gateway") {
		t.Fatal("missing fetch failure log")
	}
}

func TestDailyClaim(t *testing.T) {
	venue := liveVenue()
	venue.claimErr = &common.APIError{Code: "COOLDOWN", Status: 429, Message: "Already claimed"}
	h := newHarness(t, venue, nil)
	h.clock.Set(time.Unix(1_699_999_200+5, 0))
	ctx := context.Background()

	_ = h.r.Tick(ctx)
	_ = h.r.Tick(ctx)
	if venue.claims != 1 {
		t.Fatalf("claims = %d, want 1", venue.claims)
	}
	if h.logs.FilterLevelExact(zap.WarnLevel).FilterMessageSnippet("Daily claim failed").Len() != 0 {
		t.Fatal("COOLDOWN must be swallowed")
	}

	h.clock.Set(time.Unix(1_699_999_200+3600+5, 0))
	venue.claimErr = nil
	_ = h.r.Tick(ctx)
	if venue.claims != 2 || h.logs.FilterMessageSnippet("Daily claim result").Len() != 1 {
		t.Fatalf("claims = %d", venue.claims)
	}
}

func TestManualForceOpen(t *testing.T) {
	tests := []struct {
		name    string
		venue   func() *fakeVenue
		dryRun  bool
		prep    func(*harness)
		symbol  string
		success bool
		message string
	}{
		{
			name:    "missing key",
			venue:   func() *fakeVenue { return &fakeVenue{} },
			symbol:  "ETHUSDT",
			message: "MTC_API_KEY is missing.",
		},
		{
			name:    "unsupported symbol",
			venue:   liveVenue,
			symbol:  "ADAUSDT",
			message: "Unsupported manual symbol: ADAUSDT.",
		},
		{
			name:  "cap reached",
			venue: liveVenue,
			prep: func(h *harness) {
				h.venue.positions = []common.Position{long("m1", 0), long("m2", 0), long("m3", 0)}
				for _, id := range []string{"m1", "m2", "m3"} {
					_ = h.r.owners.AddManual(context.Background(), id)
				}
			},
			symbol:  "BTCUSDT",
			message: "Manual position limit reached (3).",
		},
		{
			name:  "already open on coin",
			venue: liveVenue,
			prep: func(h *harness) {
				h.venue.positions = []common.Position{{ID: "m1", Coin: "BTC", Side: common.SideLong}}
				_ = h.r.owners.AddManual(context.Background(), "m1")
			},
			symbol:  "btcusdt",
			message: "Manual BTCUSDT position is already open.",
		},
		{
			name:    "dry run",
			venue:   liveVenue,
			dryRun:  true,
			symbol:  "ETHUSDT",
			success: true,
			message: "DRY_RUN enabled. No live order was sent.",
		},
		{
			name: "live",
			venue: func() *fakeVenue {
				v := liveVenue()
				v.afterOpen = []common.Position{long("new", 0)}
				return v
			},
			symbol:  "ETHUSDT",
			success: true,
			message: "Force open submitted.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.venue(), func(o *Options, _ *Deps) { o.DryRun = tt.dryRun })
			if tt.prep != nil {
				tt.prep(h)
			}
			res := h.r.ManualForceOpen(context.Background(), tt.symbol, "")
			if res.Success != tt.success || res.Message != tt.message {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestManualForceOpenCapturesManual(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", 0)}
	venue.afterOpen = []common.Position{long("s1", 0), long("m1", 0)}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")

	res := h.r.ManualForceOpen(ctx, "ETHUSDT", "Manual force open LONG")
	if !res.Success || res.PositionID != "m1" {
		t.Fatalf("result = %+v", res)
	}
	if venue.opens[0].Comment != "Manual force open LONG ETHUSDT" {
		t.Fatalf("comment = %q", venue.opens[0].Comment)
	}
	ids, _ := h.r.owners.ManualIDs(ctx)
	if len(ids) != 1 || ids[0] != "m1" {
		t.Fatalf("manual ids = %v", ids)
	}
	if id, _ := h.r.owners.StrategyID(ctx); id != "s1" {
		t.Fatalf("strategy id changed to %q", id)
	}
}

func TestManualClose(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", 0), long("m1", 0)}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")
	_ = h.r.owners.AddManual(ctx, "m1")

	if res := h.r.ManualClose(ctx, " ", ""); res.Message != "Please select manual position to close." {
		t.Fatalf("empty id: %+v", res)
	}
	if res := h.r.ManualClose(ctx, "s1", ""); res.Message != "Selected position is not a manual-owned position." {
		t.Fatalf("strategy id: %+v", res)
	}

	res := h.r.ManualClose(ctx, "m1", "")
	if !res.Success || res.Closed != 1 || res.Message != "Closed manual position." {
		t.Fatalf("close: %+v", res)
	}
	if ids, _ := h.r.owners.ManualIDs(ctx); len(ids) != 0 {
		t.Fatalf("manual ids = %v", ids)
	}
	if venue.closes[0].Comment != "Manual close position" {
		t.Fatalf("comment = %q", venue.closes[0].Comment)
	}
}

func TestCloseStrategyPosition(t *testing.T) {
	venue := liveVenue()
	h := newHarness(t, venue, nil)
	ctx := context.Background()

	if res := h.r.CloseStrategyPosition(ctx, ""); res.Message != "No open strategy ETHUSDT position." {
		t.Fatalf("no position: %+v", res)
	}

	venue.positions = []common.Position{long("s1", 0)}
	_ = h.r.owners.BindStrategy(ctx, "s1")
	res := h.r.CloseStrategyPosition(ctx, "")
	if !res.Success || res.Message != "Closed strategy position." {
		t.Fatalf("close: %+v", res)
	}
	if venue.closes[0].Comment != "Manual close strategy ETHUSDT" {
		t.Fatalf("comment = %q", venue.closes[0].Comment)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, liveVenue(), nil)
	ctx := context.Background()

	if res := h.r.Pause(ctx); res.Message != "Strategy paused." || !*res.Paused {
		t.Fatalf("pause: %+v", res)
	}
	if res := h.r.Pause(ctx); res.Message != "Strategy is already paused." {
		t.Fatalf("pause again: %+v", res)
	}
	if v, _ := h.db.Get(ctx, "bot_status", ""); v != "paused" {
		t.Fatalf("bot_status = %q", v)
	}
	if res := h.r.Resume(ctx); res.Message != "Strategy resumed." || *res.Paused {
		t.Fatalf("resume: %+v", res)
	}
	if res := h.r.Resume(ctx); res.Message != "Strategy is already running." {
		t.Fatalf("resume again: %+v", res)
	}
	if v, _ := h.db.Get(ctx, "strategy_state", ""); v != "running" {
		t.Fatalf("strategy_state = %q", v)
	}
}

func TestSettingsPersistAndReload(t *testing.T) {
	h := newHarness(t, liveVenue(), nil)
	ctx := context.Background()

	lev, sl := 0.0, 0.02
	got, err := h.r.ApplyRuntimeSettings(ctx, risk.SettingsPatch{Leverage: &lev, SLCapitalPct: &sl})
	if err != nil {
		t.Fatalf("ApplyRuntimeSettings: %v", err)
	}
	if got.Leverage != 1 || got.SLCapitalPct != 0.02 || got.MarginBoks != 100 {
		t.Fatalf("settings = %+v", got)
	}
	h.r.SetActiveStrategy(ctx, "ema_rsi_15m_eth_only")
	h.r.Pause(ctx)

	fresh, err := New(Options{TradeCoin: "ETH", Settings: risk.Settings{MarginBoks: 50, Leverage: 3}}, Deps{
		Venue: h.venue, Candles: h.source, Store: h.db, Clock: h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fresh.LoadState(ctx); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	st := fresh.Status(ctx)
	if st.Settings.Leverage != 1 || st.Settings.MarginBoks != 100 || st.Settings.SLCapitalPct != 0.02 {
		t.Fatalf("reloaded settings = %+v", st.Settings)
	}
	if st.ActiveStrategy != strategy.Momentum || !st.Paused {
		t.Fatalf("status = %+v", st)
	}
}

func TestSetActiveStrategyRejectsUnknown(t *testing.T) {
	h := newHarness(t, liveVenue(), nil)
	res := h.r.SetActiveStrategy(context.Background(), "RSI_ONLY")
	if res.Success || res.Message != "Unsupported strategy: RSI_ONLY" {
		t.Fatalf("result = %+v", res)
	}
	if h.r.ActiveStrategy() != strategy.DefaultVariant {
		t.Fatal("active strategy changed")
	}
}

func TestIdleModeLogsOnce(t *testing.T) {
	h := newHarness(t, &fakeVenue{}, nil)
	ctx := context.Background()

	h.r.Start(ctx)
	h.r.Start(ctx)
	if !h.r.Stop(time.Second) {
		t.Fatal("runner did not stop")
	}
	h.r.iterate(ctx)

	if n := h.logs.FilterMessage("MTC_API_KEY missing; bot idle mode.").Len(); n != 1 {
		t.Fatalf("idle warnings = %d, want 1", n)
	}
	if v, _ := h.db.Get(ctx, "last_tick", ""); v != "1700000000" {
		t.Fatalf("last_tick = %q", v)
	}
	if !h.r.Status(ctx).Idle {
		t.Fatal("status should report idle")
	}
}

func TestTickPublishesEvents(t *testing.T) {
	venue := liveVenue()
	h := newHarness(t, venue, func(o *Options, _ *Deps) { o.DryRun = true })
	ch, unsub := h.bus.Subscribe([]events.Event{events.EventTick, events.EventTrade}, 8)
	defer unsub()

	_ = h.r.Tick(context.Background())

	seen := map[events.Event]bool{}
	for len(ch) > 0 {
		env := <-ch
		seen[env.Topic] = true
	}
	if !seen[events.EventTick] || !seen[events.EventTrade] {
		t.Fatalf("events seen = %v", seen)
	}
}

func TestClassifyOpenPositions(t *testing.T) {
	venue := liveVenue()
	venue.positions = []common.Position{long("s1", 0), long("u1", 0)}
	h := newHarness(t, venue, nil)
	ctx := context.Background()
	_ = h.r.owners.BindStrategy(ctx, "s1")

	c, err := h.r.ClassifyOpenPositions(ctx)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.StrategyPosition == nil || len(c.UnknownPositions) != 1 {
		t.Fatalf("classification = %+v", c)
	}
	if c.Items[1].Owner != ownership.OwnerUnknown {
		t.Fatalf("owner = %s", c.Items[1].Owner)
	}
}

func TestOverlayMomentumNeeds15m(t *testing.T) {
	h := newHarness(t, liveVenue(), nil)
	ctx := context.Background()

	o, err := h.r.Overlay(ctx, strategy.Momentum, "4h", 200)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if o.Enabled || o.RequiredInterval != "15m" {
		t.Fatalf("overlay = %+v", o)
	}

	o, err = h.r.Overlay(ctx, strategy.TrendConfirm, "4h", 200)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if !o.Enabled || len(o.MA50) == 0 || len(o.Entries) != 1 {
		t.Fatalf("trend overlay: enabled=%v ma=%d entries=%d", o.Enabled, len(o.MA50), len(o.Entries))
	}

	if _, err := h.r.Overlay(ctx, strategy.TrendConfirm, "7m", 0); err == nil {
		t.Fatal("expected interval error")
	}
}
