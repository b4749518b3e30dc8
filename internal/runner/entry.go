package runner

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"trading-bot/internal/events"
	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
)

var entryComments = map[strategy.Variant]string{
	strategy.TrendConfirm: "MA50(4H) cross-up confirmed by 3 closes. Long setup.",
	strategy.Momentum:     "EMA20>EMA50 with RSI 50-70 on closed 15m candle. Long setup.",
}

func (r *Runner) maybeOpenLong(ctx context.Context, acct common.Account, positions []common.Position) {
	coin := r.opts.TradeCoin
	variant := r.ActiveStrategy()
	def, _ := strategy.Lookup(variant)

	if _, open, err := r.owners.StrategyOpen(ctx, positions); err != nil {
		r.journal.Logger().Error("read strategy owner", zap.Error(err))
		return
	} else if open {
		r.journal.Info(ctx, fmt.Sprintf("Strategy position already open for %s. No new entry.", coin))
		return
	}
	if variant == strategy.Momentum && anyLongOn(positions, coin) {
		r.journal.Info(ctx, fmt.Sprintf("Open LONG already exists on %s. EMA strategy keeps one position per symbol.", coin))
		return
	}
	if len(positions) >= r.opts.MaxPositions {
		r.journal.Warn(ctx, "Max positions reached. Skip entry.")
		return
	}

	candles, err := r.closedCandles(ctx, variant)
	if err != nil {
		r.journal.Error(ctx, fmt.Sprintf("Hyperliquid candles fetch failed: %v", err))
		return
	}
	verdict := strategy.EvaluateEntry(variant, candles, r.opts.Params)
	details := toJSON(verdict)
	if err := r.store.RecordSignal(ctx, db.SignalRecord{
		TS:        r.clock.Now().Unix(),
		Coin:      coin,
		Timeframe: def.Interval,
		Signal:    verdict.Signal,
		Details:   details,
	}); err != nil {
		r.journal.Logger().Error("record signal", zap.Error(err))
	}
	r.setKV(ctx, keyLastSignal, details)
	r.metrics.ObserveSignal(string(variant), verdict.Signal)
	r.bus.Publish(events.EventSignal, events.SignalEvent{
		Variant: string(variant), Coin: coin, Signal: verdict.Signal, Reason: string(verdict.Reason),
	})

	if !verdict.Signal {
		r.journal.Info(ctx, fmt.Sprintf("No entry signal: %s", verdict.Reason))
		return
	}
	candleKey := strconv.FormatInt(verdict.LastCandleOpenTime, 10)
	if marker, err := r.store.Get(ctx, def.MarkerKey, ""); err != nil {
		r.journal.Logger().Error("read entry marker", zap.Error(err))
		return
	} else if marker == candleKey {
		r.journal.Info(ctx, "Signal already traded for this candle.")
		return
	}

	capital := r.capital(acct)
	if capital <= 0 {
		r.journal.Warn(ctx, "Capital unavailable. Skip entry.")
		return
	}
	entry := verdict.Close
	if entry <= 0 {
		r.journal.Warn(ctx, "Invalid entry price from candles.")
		return
	}

	s := r.Settings()
	tpPct := s.TPCapitalPct
	if variant == strategy.Momentum {
		tpPct = 2 * s.SLCapitalPct
	}
	targets := risk.BuildLongTargets(entry, capital, s.MarginBoks, s.Leverage, s.SLCapitalPct, tpPct)
	req := common.OpenRequest{
		Coin:       coin,
		Side:       common.SideLong,
		Margin:     s.MarginBoks,
		Leverage:   s.Leverage,
		StopLoss:   risk.RoundPrice(targets.StopLoss),
		TakeProfit: risk.RoundPrice(targets.TakeProfit),
		Comment:    entryComments[variant],
	}

	if r.opts.DryRun {
		r.journal.Info(ctx, "DRY_RUN open long payload: "+toJSON(req))
		r.recordTrade(ctx, db.ActionOpen, db.StatusDryRun, ownership.OwnerStrategy, coin, "", toJSON(req))
		r.setKV(ctx, def.MarkerKey, candleKey)
		return
	}
	if !r.guard.Allow() {
		r.metrics.GuardRejected()
		r.journal.Warn(ctx, "Skipped open trade due to rate limit guard.")
		return
	}

	resp, err := r.venue.OpenTrade(ctx, req)
	if err != nil {
		r.recordTrade(ctx, db.ActionOpen, db.StatusError, ownership.OwnerStrategy, coin, "", err.Error())
		r.journal.Error(ctx, fmt.Sprintf("Open trade failed: %v", err), zap.String("code", common.ErrorCode(err)))
		return
	}
	after, _ := r.fetchPositions(ctx)
	id, _, err := r.owners.Capture(ctx, ownership.OwnerStrategy, coin, positions, after, resp)
	if err != nil {
		r.journal.Logger().Error("capture strategy position", zap.Error(err))
	}
	r.recordTrade(ctx, db.ActionOpen, db.StatusOK, ownership.OwnerStrategy, coin, id, toJSON(resp))
	if variant == strategy.Momentum && id != "" {
		if pos, ok := common.FindPosition(after, id); ok {
			r.ensureRiskState(ctx, acct, pos)
		}
	}
	r.setKV(ctx, def.MarkerKey, candleKey)
	r.journal.Info(ctx, fmt.Sprintf("Opened strategy long on %s.", coin))
}

func anyLongOn(positions []common.Position, coin string) bool {
	for _, p := range positions {
		if p.IsLongOn(coin) {
			return true
		}
	}
	return false
}
