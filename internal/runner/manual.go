package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"trading-bot/internal/engine"
	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
	"trading-bot/pkg/market"
)

// DefaultManualSymbols are the pairs accepted for manual force opens.
var DefaultManualSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "HYPEUSDT", "PUMPUSDT", "DOGEUSDT"}

const (
	msgNoKey                = "MTC_API_KEY is missing."
	msgPositionsUnavailable = "Positions unavailable, try again."
)

// ClassifyOpenPositions fetches live positions and annotates their owners.
func (r *Runner) ClassifyOpenPositions(ctx context.Context) (ownership.Classification, error) {
	positions, err := r.venue.Positions(ctx)
	if err != nil {
		return ownership.Classification{}, err
	}
	return r.owners.Classify(ctx, positions)
}

// ManualForceOpen opens a manual LONG on symbol at the latest 4h close.
func (r *Runner) ManualForceOpen(ctx context.Context, symbol, comment string) engine.ActionResult {
	if !r.venue.HasCredentials() {
		return engine.Fail(msgNoKey)
	}
	target := strings.ToUpper(strings.TrimSpace(symbol))
	if target == "" {
		target = r.opts.TradeCoin + "USDT"
	}
	if !slices.Contains(r.manualSymbols(), target) {
		return engine.Fail(fmt.Sprintf("Unsupported manual symbol: %s.", target))
	}
	coin := strings.TrimSuffix(target, "USDT")
	if comment == "" {
		comment = "Manual force open LONG"
	}

	acct, _ := r.fetchAccount(ctx)
	positions, ok := r.fetchPositions(ctx)
	if !ok {
		return engine.Fail(msgPositionsUnavailable)
	}
	r.reconcile(ctx, positions)

	ids, err := r.owners.ManualIDs(ctx)
	if err != nil {
		return engine.Fail(fmt.Sprintf("Open failed: %v", err))
	}
	if len(ids) >= r.owners.ManualCap() {
		return engine.Fail(fmt.Sprintf("Manual position limit reached (%d).", r.owners.ManualCap()))
	}
	if open, err := r.owners.ManualHasOpenCoin(ctx, positions, coin); err == nil && open {
		return engine.Fail(fmt.Sprintf("Manual %s position is already open.", target))
	}
	if len(positions) >= r.opts.MaxPositions {
		return engine.Fail("Max positions reached.")
	}
	capital := r.capital(acct)
	if capital <= 0 {
		return engine.Fail("Capital unavailable, cannot open trade.")
	}

	candles, err := r.candles.Candles(ctx, coin, manualInterval, manualBars)
	if err != nil {
		r.journal.Error(ctx, fmt.Sprintf("Manual force open failed to fetch candles: %v", err))
		return engine.Fail(fmt.Sprintf("Failed to fetch market data: %v", err))
	}
	if len(candles) == 0 {
		return engine.Fail("No candles returned from Hyperliquid.")
	}
	entry := candles[len(candles)-1].Close
	if entry <= 0 {
		return engine.Fail("Invalid entry price from candle data.")
	}

	s := r.Settings()
	targets := risk.BuildLongTargets(entry, capital, s.MarginBoks, s.Leverage, s.SLCapitalPct, s.TPCapitalPct)
	req := common.OpenRequest{
		Coin:       coin,
		Side:       common.SideLong,
		Margin:     s.MarginBoks,
		Leverage:   s.Leverage,
		StopLoss:   risk.RoundPrice(targets.StopLoss),
		TakeProfit: risk.RoundPrice(targets.TakeProfit),
		Comment:    strings.TrimSpace(comment + " " + target),
	}

	if r.opts.DryRun {
		r.recordTrade(ctx, db.ActionOpen, db.StatusDryRun, ownership.OwnerManual, coin, "", toJSON(req))
		r.journal.Info(ctx, "DRY_RUN manual force open payload: "+toJSON(req))
		return engine.ActionResult{
			Success: true,
			DryRun:  true,
			Message: "DRY_RUN enabled. No live order was sent.",
			Symbol:  target,
			Payload: &req,
		}
	}
	if !r.guard.Allow() {
		r.metrics.GuardRejected()
		return engine.Fail("Rate limit guard blocked this request.")
	}

	resp, err := r.venue.OpenTrade(ctx, req)
	if err != nil {
		r.recordTrade(ctx, db.ActionOpen, db.StatusError, ownership.OwnerManual, coin, "", err.Error())
		r.journal.Error(ctx, fmt.Sprintf("Manual force open failed: %v", err))
		res := engine.Fail(fmt.Sprintf("Open failed: %v", err))
		res.Code = common.ErrorCode(err)
		return res
	}
	after, _ := r.fetchPositions(ctx)
	id, _, err := r.owners.Capture(ctx, ownership.OwnerManual, coin, positions, after, resp)
	if err != nil {
		r.journal.Warn(ctx, fmt.Sprintf("Manual position could not be tracked: %v", err))
	}
	r.recordTrade(ctx, db.ActionOpen, db.StatusOK, ownership.OwnerManual, coin, id, toJSON(resp))
	r.journal.Info(ctx, fmt.Sprintf("Manual force open success on %s.", target))
	return engine.ActionResult{
		Success:    true,
		Message:    "Force open submitted.",
		Symbol:     target,
		PositionID: id,
		Response:   resp,
	}
}

// ManualClose closes one manual-owned position.
func (r *Runner) ManualClose(ctx context.Context, positionID, comment string) engine.ActionResult {
	if !r.venue.HasCredentials() {
		return engine.Fail(msgNoKey)
	}
	if comment == "" {
		comment = "Manual close position"
	}
	positions, ok := r.fetchPositions(ctx)
	if !ok {
		return engine.Fail(msgPositionsUnavailable)
	}
	r.reconcile(ctx, positions)

	id := strings.TrimSpace(positionID)
	if id == "" {
		return engine.Fail("Please select manual position to close.")
	}
	ids, err := r.owners.ManualIDs(ctx)
	if err != nil {
		return engine.Fail(fmt.Sprintf("Close failed: %v", err))
	}
	if !slices.Contains(ids, id) {
		return engine.Fail("Selected position is not a manual-owned position.")
	}
	pos, open := common.FindPosition(positions, id)
	if !open {
		if err := r.owners.RemoveManual(ctx, id); err != nil {
			r.journal.Logger().Error("remove stale manual id", zap.Error(err))
		}
		return engine.Fail("Selected manual position is not open.")
	}

	outcome, resp, err := r.closeTrade(ctx, pos, ownership.OwnerManual, "manual close "+id, comment)
	switch outcome {
	case closeDryRun:
		r.journal.Info(ctx, "DRY_RUN manual close for manual-owned position.")
		return engine.ActionResult{Success: true, DryRun: true, Closed: 1, PositionID: id,
			Message: "DRY_RUN enabled. Simulated manual position close."}
	case closeBlocked:
		return engine.Fail("Rate limit guard blocked this request.")
	case closeFailed:
		r.journal.Error(ctx, fmt.Sprintf("Manual close failed %s: %v", id, err))
		res := engine.Fail(fmt.Sprintf("Close failed: %v", err))
		res.Code = common.ErrorCode(err)
		return res
	}
	r.journal.Info(ctx, fmt.Sprintf("Manual close success for manual position %s.", id))
	return engine.ActionResult{Success: true, Closed: 1, PositionID: id, Message: "Closed manual position.", Response: resp}
}

// CloseStrategyPosition closes the strategy-owned position on demand.
func (r *Runner) CloseStrategyPosition(ctx context.Context, comment string) engine.ActionResult {
	if !r.venue.HasCredentials() {
		return engine.Fail(msgNoKey)
	}
	symbol := r.opts.TradeCoin + "USDT"
	if comment == "" {
		comment = "Manual close strategy " + symbol
	}
	positions, ok := r.fetchPositions(ctx)
	if !ok {
		return engine.Fail(msgPositionsUnavailable)
	}
	r.reconcile(ctx, positions)
	pos, open, err := r.owners.StrategyOpen(ctx, positions)
	if err != nil || !open {
		return engine.Fail(fmt.Sprintf("No open strategy %s position.", symbol))
	}

	outcome, resp, err := r.closeTrade(ctx, pos, ownership.OwnerStrategy, "strategy close "+pos.ID, comment)
	switch outcome {
	case closeDryRun:
		r.journal.Info(ctx, "DRY_RUN close strategy position request accepted.")
		return engine.ActionResult{Success: true, DryRun: true, Closed: 1, PositionID: pos.ID,
			Message: "DRY_RUN simulated strategy position close."}
	case closeBlocked:
		return engine.Fail("Rate limit guard blocked this request.")
	case closeFailed:
		r.journal.Error(ctx, fmt.Sprintf("Close strategy failed %s: %v", pos.ID, err))
		res := engine.Fail(fmt.Sprintf("Close failed: %v", err))
		res.Code = common.ErrorCode(err)
		return res
	}
	if r.ActiveStrategy() == strategy.Momentum {
		r.clearRiskState(ctx)
	}
	r.journal.Info(ctx, fmt.Sprintf("Manual close success for strategy position %s.", pos.ID))
	return engine.ActionResult{Success: true, Closed: 1, PositionID: pos.ID, Message: "Closed strategy position.", Response: resp}
}

// Overlay builds chart data for a strategy. Unknown ids fall back to the
// active strategy.
func (r *Runner) Overlay(ctx context.Context, id strategy.Variant, interval string, bars int) (strategy.Overlay, error) {
	def, ok := strategy.Lookup(id)
	if !ok {
		def, _ = strategy.Lookup(r.ActiveStrategy())
	}
	if interval == "" {
		interval = def.Interval
	}
	if _, err := market.IntervalDuration(interval); err != nil {
		return strategy.Overlay{}, err
	}
	if o, mismatch := strategy.IntervalMismatch(def, interval); mismatch {
		return o, nil
	}
	if bars <= 0 {
		bars = def.Bars
	}
	bars = min(max(bars, 60), 1000)

	candles, err := r.overlay.Candles(ctx, r.opts.TradeCoin, interval, bars)
	if err != nil {
		return strategy.Overlay{}, fmt.Errorf("overlay candles: %w", err)
	}
	candles = market.TrimInProgress(candles, r.clock.Now())
	return strategy.BuildOverlay(def, r.opts.Params, interval, candles), nil
}

func (r *Runner) reconcile(ctx context.Context, positions []common.Position) {
	if err := r.owners.Reconcile(ctx, positions); err != nil {
		r.journal.Logger().Error("reconcile ownership", zap.Error(err))
	}
}

func (r *Runner) manualSymbols() []string {
	if len(r.opts.ManualSymbols) == 0 {
		return DefaultManualSymbols
	}
	out := make([]string, 0, len(r.opts.ManualSymbols))
	for _, s := range r.opts.ManualSymbols {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}
