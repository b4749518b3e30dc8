// Package runner drives the trading loop: it polls the venue, reconciles
// position ownership, manages the strategy position and looks for entries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"trading-bot/internal/clock"
	"trading-bot/internal/engine"
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

// KV keys owned by the runner.
const (
	keyBotStatus      = "bot_status"
	keyStrategyState  = "strategy_state"
	keyLastTick       = "last_tick"
	keyAccount        = "account"
	keyAccountOK      = "account_ok"
	keyNotices        = "notices"
	keyPositions      = "positions"
	keyLastHistory    = "last_history"
	keyLastSignal     = "last_signal"
	keyRiskState      = "ema_strategy_state"
	keyActiveStrategy = "active_strategy"
	keyDailyClaimTry  = "last_daily_claim_try"
	keyPaused         = "strategy_paused"

	keyMargin   = "cfg_margin_boks"
	keyLeverage = "cfg_leverage"
	keySLPct    = "cfg_sl_capital_pct"
	keyTPPct    = "cfg_tp_capital_pct"
)

const (
	historyLimit       = 100
	dailyClaimInterval = time.Hour
	manualInterval     = "4h"
	manualBars         = 5
)

// Options are the static runner settings taken from configuration.
type Options struct {
	TradeCoin          string
	DryRun             bool
	PollInterval       time.Duration
	MaxPositions       int
	ManualMaxPositions int
	ManualSymbols      []string
	Settings           risk.Settings
	Params             strategy.Params
}

// Deps are the collaborators the runner drives. Overlay, Bus and Metrics
// are optional.
type Deps struct {
	Venue   common.Venue
	Candles mdata.Source
	Overlay mdata.Source
	Store   db.Store
	Journal *journal.Journal
	Guard   *common.TradeWindow
	Bus     *events.Bus
	Metrics *monitor.Metrics
	Clock   clock.Clock
	Owners  *ownership.Tracker
}

// Runner is the bot orchestrator.
type Runner struct {
	opts    Options
	venue   common.Venue
	candles mdata.Source
	overlay mdata.Source
	store   db.Store
	journal *journal.Journal
	guard   *common.TradeWindow
	bus     *events.Bus
	metrics *monitor.Metrics
	clock   clock.Clock
	owners  *ownership.Tracker

	// mu guards settings, paused and active.
	mu       sync.RWMutex
	settings risk.Settings
	paused   bool
	active   strategy.Variant

	running    atomic.Bool
	stopCh     chan struct{}
	done       chan struct{}
	idleLogged bool
	lastTick   atomic.Int64
	lastTickID atomic.Value
}

var _ engine.Service = (*Runner)(nil)

// New wires a runner. Missing optional collaborators get defaults.
func New(opts Options, deps Deps) (*Runner, error) {
	if deps.Venue == nil || deps.Candles == nil || deps.Store == nil {
		return nil, errors.New("runner: venue, candle source and store are required")
	}
	opts.TradeCoin = strings.ToUpper(opts.TradeCoin)
	if opts.TradeCoin == "" {
		opts.TradeCoin = "ETH"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Second
	}
	if opts.MaxPositions <= 0 {
		opts.MaxPositions = 5
	}
	if opts.ManualMaxPositions <= 0 {
		opts.ManualMaxPositions = 3
	}
	if opts.Params == (strategy.Params{}) {
		opts.Params = strategy.DefaultParams()
	}

	r := &Runner{
		opts:     opts,
		venue:    deps.Venue,
		candles:  deps.Candles,
		overlay:  deps.Overlay,
		store:    deps.Store,
		journal:  deps.Journal,
		guard:    deps.Guard,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		owners:   deps.Owners,
		settings: opts.Settings.Clamp(),
		active:   strategy.DefaultVariant,
	}
	if r.overlay == nil {
		r.overlay = r.candles
	}
	if r.clock == nil {
		r.clock = clock.Real{}
	}
	if r.journal == nil {
		r.journal = journal.New(nil, deps.Store, r.clock.Now)
	}
	if r.guard == nil {
		r.guard = common.NewTradeWindow(9, time.Minute, r.clock.Now)
	}
	if r.owners == nil {
		r.owners = ownership.NewTracker(deps.Store, r.journal, r.bus, opts.TradeCoin, opts.ManualMaxPositions)
	}
	return r, nil
}

// Start launches the background loop. Calling it twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stopCh, r.done)
}

// Stop signals the loop and waits up to timeout for the in-flight tick to
// finish. It reports whether the loop exited in time.
func (r *Runner) Stop(timeout time.Duration) bool {
	if !r.running.CompareAndSwap(true, false) {
		return true
	}
	close(r.stopCh)
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		r.journal.Logger().Warn("runner did not stop in time", zap.Duration("timeout", timeout))
		return false
	}
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		r.iterate(ctx)
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-r.clock.After(r.opts.PollInterval):
		}
	}
}

func (r *Runner) iterate(ctx context.Context) {
	now := r.clock.Now()
	state := r.stateLabel()
	r.setKV(ctx, keyBotStatus, state)
	r.setKV(ctx, keyStrategyState, state)
	r.setKV(ctx, keyLastTick, strconv.FormatInt(now.Unix(), 10))
	r.lastTick.Store(now.Unix())

	if !r.venue.HasCredentials() {
		if !r.idleLogged {
			r.journal.Warn(ctx, "MTC_API_KEY missing; bot idle mode.")
			r.idleLogged = true
		}
		return
	}
	if err := r.safeTick(ctx); err != nil {
		r.journal.Error(ctx, fmt.Sprintf("Tick failure: %v", err))
	}
}

func (r *Runner) safeTick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Tick(ctx)
}

func (r *Runner) stateLabel() string {
	if r.Paused() {
		return "paused"
	}
	return "running"
}

// Paused reports whether automatic entries are suspended.
func (r *Runner) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// Settings returns the effective trade sizing settings.
func (r *Runner) Settings() risk.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// ActiveStrategy returns the selected variant.
func (r *Runner) ActiveStrategy() strategy.Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Pause stops automatic entries. Position management keeps running.
func (r *Runner) Pause(ctx context.Context) engine.ActionResult {
	return r.setPaused(ctx, true)
}

// Resume re-enables automatic entries.
func (r *Runner) Resume(ctx context.Context) engine.ActionResult {
	return r.setPaused(ctx, false)
}

func (r *Runner) setPaused(ctx context.Context, paused bool) engine.ActionResult {
	r.mu.Lock()
	changed := r.paused != paused
	r.paused = paused
	r.mu.Unlock()

	res := engine.ActionResult{Success: true, Paused: &paused}
	switch {
	case !changed && paused:
		res.Message = "Strategy is already paused."
		return res
	case !changed:
		res.Message = "Strategy is already running."
		return res
	}

	state := r.stateLabel()
	r.setKV(ctx, keyBotStatus, state)
	r.setKV(ctx, keyStrategyState, state)
	r.setKV(ctx, keyPaused, strconv.FormatBool(paused))
	r.metrics.SetPaused(paused)
	r.bus.Publish(events.EventStateChange, events.StateChange{Field: "paused", Value: paused})

	if paused {
		r.journal.Info(ctx, "Strategy paused by user action. Manual trading remains available.")
		res.Message = "Strategy paused."
	} else {
		r.journal.Info(ctx, "Strategy resumed by user action.")
		res.Message = "Strategy resumed."
	}
	return res
}

// ApplyRuntimeSettings clamps and persists new sizing settings.
func (r *Runner) ApplyRuntimeSettings(ctx context.Context, patch risk.SettingsPatch) (risk.Settings, error) {
	r.mu.Lock()
	r.settings = r.settings.Apply(patch)
	s := r.settings
	r.mu.Unlock()

	for key, v := range map[string]float64{
		keyMargin:   s.MarginBoks,
		keyLeverage: s.Leverage,
		keySLPct:    s.SLCapitalPct,
		keyTPPct:    s.TPCapitalPct,
	} {
		if err := r.store.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
			return s, fmt.Errorf("persist %s: %w", key, err)
		}
	}
	r.journal.Info(ctx, fmt.Sprintf("Updated runtime settings: margin=%g, leverage=%g, sl_capital_pct=%g, tp_capital_pct=%g",
		s.MarginBoks, s.Leverage, s.SLCapitalPct, s.TPCapitalPct))
	r.bus.Publish(events.EventStateChange, events.StateChange{Field: "settings", Value: s})
	return s, nil
}

// SetActiveStrategy selects the entry variant.
func (r *Runner) SetActiveStrategy(ctx context.Context, id strategy.Variant) engine.ActionResult {
	selected := strategy.Variant(strings.ToUpper(strings.TrimSpace(string(id))))
	if _, ok := strategy.Lookup(selected); !ok {
		return engine.Fail(fmt.Sprintf("Unsupported strategy: %s", id))
	}
	r.mu.Lock()
	r.active = selected
	r.mu.Unlock()

	r.setKV(ctx, keyActiveStrategy, string(selected))
	r.journal.Info(ctx, fmt.Sprintf("Active strategy set to %s.", selected))
	r.bus.Publish(events.EventStateChange, events.StateChange{Field: "active_strategy", Value: selected})
	return engine.ActionResult{Success: true, Message: "Strategy selected.", Strategy: selected}
}

// Strategies lists the selectable variants.
func (r *Runner) Strategies() []strategy.Definition {
	return strategy.Catalog()
}

// LoadState restores settings, the pause flag and the active strategy from
// the store. Missing or malformed values keep the configured defaults.
func (r *Runner) LoadState(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.settings
	for key, dst := range map[string]*float64{
		keyMargin:   &s.MarginBoks,
		keyLeverage: &s.Leverage,
		keySLPct:    &s.SLCapitalPct,
		keyTPPct:    &s.TPCapitalPct,
	} {
		raw, err := r.store.Get(ctx, key, "")
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = f
		}
	}
	r.settings = s.Clamp()

	raw, err := r.store.Get(ctx, keyActiveStrategy, string(strategy.DefaultVariant))
	if err != nil {
		return fmt.Errorf("load %s: %w", keyActiveStrategy, err)
	}
	r.active = strategy.DefaultVariant
	if v := strategy.Variant(strings.ToUpper(strings.TrimSpace(raw))); v != "" {
		if _, ok := strategy.Lookup(v); ok {
			r.active = v
		}
	}

	paused, err := r.store.Get(ctx, keyPaused, "false")
	if err != nil {
		return fmt.Errorf("load %s: %w", keyPaused, err)
	}
	r.paused, _ = strconv.ParseBool(paused)
	r.metrics.SetPaused(r.paused)
	return nil
}

// Status returns a snapshot for the dashboard.
func (r *Runner) Status(_ context.Context) engine.Status {
	r.mu.RLock()
	settings, paused, active := r.settings, r.paused, r.active
	r.mu.RUnlock()

	def, _ := strategy.Lookup(active)
	used, limit, _ := r.guard.Usage()
	tickID, _ := r.lastTickID.Load().(string)
	state := "running"
	if paused {
		state = "paused"
	}
	return engine.Status{
		Running:            r.running.Load(),
		Paused:             paused,
		BotStatus:          state,
		Idle:               !r.venue.HasCredentials(),
		DryRun:             r.opts.DryRun,
		TradeCoin:          r.opts.TradeCoin,
		TradeSymbol:        r.opts.TradeCoin + "USDT",
		LastTick:           r.lastTick.Load(),
		LastTickID:         tickID,
		ActiveStrategy:     active,
		Strategy:           def,
		Settings:           settings,
		MaxPositions:       r.opts.MaxPositions,
		ManualMaxPositions: r.opts.ManualMaxPositions,
		ManualSymbols:      append([]string(nil), r.opts.ManualSymbols...),
		PollSeconds:        int(r.opts.PollInterval / time.Second),
		GuardUsed:          used,
		GuardLimit:         limit,
	}
}

func (r *Runner) setKV(ctx context.Context, key, value string) {
	if err := r.store.Set(ctx, key, value); err != nil {
		r.journal.Logger().Error("kv write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Runner) setJSON(ctx context.Context, key string, v any) {
	s, err := sonic.MarshalString(v)
	if err != nil {
		r.journal.Logger().Error("kv encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	r.setKV(ctx, key, s)
}

func toJSON(v any) string {
	s, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
