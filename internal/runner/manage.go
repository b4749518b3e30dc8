package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"trading-bot/internal/events"
	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
	"trading-bot/pkg/market"
)

const defaultRiskComment = "Risk exit: capital threshold reached."

func (r *Runner) manage(ctx context.Context, acct common.Account, positions []common.Position) {
	variant := r.ActiveStrategy()
	pos, open, err := r.owners.StrategyOpen(ctx, positions)
	if err != nil {
		r.journal.Logger().Error("read strategy owner", zap.Error(err))
		return
	}
	if !open {
		if variant == strategy.Momentum {
			r.clearRiskState(ctx)
		}
		return
	}
	if variant == strategy.Momentum {
		r.manageMomentum(ctx, acct, pos)
		return
	}

	capital := r.capital(acct)
	if capital <= 0 {
		return
	}
	s := r.Settings()
	pnl := pos.UnrealizedPnL
	switch risk.FixedFractionExit(pnl, capital, s.SLCapitalPct, s.TPCapitalPct) {
	case risk.ExitStopLoss:
		r.closePosition(ctx, pos, ownership.OwnerStrategy, fmt.Sprintf("SL hit on total capital (%.2f BOKS)", pnl), defaultRiskComment)
	case risk.ExitTakeProfit:
		r.closePosition(ctx, pos, ownership.OwnerStrategy, fmt.Sprintf("TP hit on total capital (%.2f BOKS)", pnl), defaultRiskComment)
	}
}

// manageMomentum applies the R-unit exits: exit signal, -1R, +2R, then the
// trailing giveback once +1R has been reached.
func (r *Runner) manageMomentum(ctx context.Context, acct common.Account, pos common.Position) {
	pnl := pos.UnrealizedPnL
	state := r.ensureRiskState(ctx, acct, pos)
	if state.Observe(pnl) {
		r.journal.Info(ctx, fmt.Sprintf("EMA trailing activated for %s at >= 1R.", pos.ID))
		r.bus.Publish(events.EventRiskAlert, events.RiskAlert{
			PositionID: pos.ID, Kind: "trailing_activated", PnL: pnl, RiskR: state.RiskR,
		})
	}
	r.saveRiskState(ctx, state)

	exitSignal := false
	if candles, err := r.closedCandles(ctx, strategy.Momentum); err != nil {
		r.journal.Error(ctx, fmt.Sprintf("EMA exit signal evaluation failed: %v", err))
	} else {
		exitSignal = strategy.EvaluateMomentumExit(candles, r.opts.Params.Momentum).Signal
	}

	var note, comment string
	switch state.Exit(pnl, exitSignal) {
	case risk.ExitSignal:
		note = "EMA20 crossed below EMA50 on closed 15m candle"
		comment = "EMA strategy exit: cross down on closed 15m candle."
	case risk.ExitStopLoss:
		note = fmt.Sprintf("EMA strategy SL 1R hit (%.4f BOKS)", pnl)
		comment = "EMA strategy exit: stop loss 1R."
	case risk.ExitTakeProfit:
		note = fmt.Sprintf("EMA strategy TP 2R hit (%.4f BOKS)", pnl)
		comment = "EMA strategy exit: take profit 2R."
	case risk.ExitTrailing:
		note = fmt.Sprintf("EMA trailing stop hit: drawdown %.4f >= 1R from peak", state.PeakPnL-pnl)
		comment = "EMA strategy exit: trailing stop after 1R activation."
	default:
		return
	}
	r.closePosition(ctx, pos, ownership.OwnerStrategy, note, comment)
	r.clearRiskState(ctx)
}

// ensureRiskState returns the stored state for pos, creating it when it is
// missing or belongs to another position.
func (r *Runner) ensureRiskState(ctx context.Context, acct common.Account, pos common.Position) risk.RiskUnitState {
	if state, ok := r.loadRiskState(ctx); ok && state.PositionID == pos.ID && pos.ID != "" {
		return state
	}
	state := risk.NewRiskUnitState(pos.ID, r.capital(acct), r.Settings().SLCapitalPct, pos.UnrealizedPnL)
	r.saveRiskState(ctx, state)
	r.journal.Info(ctx, fmt.Sprintf("Initialized EMA strategy state for %s: R=%.6f", pos.ID, state.RiskR))
	return state
}

func (r *Runner) loadRiskState(ctx context.Context) (risk.RiskUnitState, bool) {
	raw, err := r.store.Get(ctx, keyRiskState, "")
	if err != nil || raw == "" {
		return risk.RiskUnitState{}, false
	}
	var state risk.RiskUnitState
	if err := sonic.UnmarshalString(raw, &state); err != nil {
		return risk.RiskUnitState{}, false
	}
	return state, true
}

func (r *Runner) saveRiskState(ctx context.Context, state risk.RiskUnitState) {
	r.setJSON(ctx, keyRiskState, state)
}

func (r *Runner) clearRiskState(ctx context.Context) {
	r.setKV(ctx, keyRiskState, "")
}

// closedCandles fetches the variant's candles with the in-progress candle
// removed.
func (r *Runner) closedCandles(ctx context.Context, v strategy.Variant) ([]market.Candle, error) {
	def, ok := strategy.Lookup(v)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %s", v)
	}
	candles, err := r.candles.Candles(ctx, r.opts.TradeCoin, def.Interval, def.Bars)
	if err != nil {
		return nil, err
	}
	return market.TrimInProgress(candles, r.clock.Now()), nil
}

// closeOutcome is what a close attempt did.
type closeOutcome int

const (
	closeDryRun closeOutcome = iota
	closeBlocked
	closeFailed
	closeOK
)

var errGuard = errors.New("rate limit guard blocked this request")

// closeTrade runs the shared close flow: dry-run record, guard, venue call,
// trade record and owner unbinding.
func (r *Runner) closeTrade(ctx context.Context, pos common.Position, owner ownership.Owner, note, comment string) (closeOutcome, common.Response, error) {
	coin := pos.Coin
	if coin == "" {
		coin = r.opts.TradeCoin
	}
	if r.opts.DryRun {
		r.recordTrade(ctx, db.ActionClose, db.StatusDryRun, owner, coin, pos.ID, note)
		return closeDryRun, nil, nil
	}
	if !r.guard.Allow() {
		r.metrics.GuardRejected()
		return closeBlocked, nil, errGuard
	}
	resp, err := r.venue.CloseTrade(ctx, common.CloseRequest{PositionID: pos.ID, Comment: comment})
	if err != nil {
		r.recordTrade(ctx, db.ActionClose, db.StatusError, owner, coin, pos.ID, err.Error())
		return closeFailed, nil, err
	}
	r.recordTrade(ctx, db.ActionClose, db.StatusOK, owner, coin, pos.ID, toJSON(resp))

	var unbindErr error
	switch owner {
	case ownership.OwnerStrategy:
		unbindErr = r.owners.ClearStrategy(ctx)
	case ownership.OwnerManual:
		unbindErr = r.owners.RemoveManual(ctx, pos.ID)
	}
	if unbindErr != nil {
		r.journal.Logger().Error("unbind closed position", zap.String("position_id", pos.ID), zap.Error(unbindErr))
	}
	return closeOK, resp, nil
}

// closePosition is the tick-side close with operator log messages.
func (r *Runner) closePosition(ctx context.Context, pos common.Position, owner ownership.Owner, note, comment string) {
	outcome, _, err := r.closeTrade(ctx, pos, owner, note, comment)
	switch outcome {
	case closeDryRun:
		r.journal.Info(ctx, fmt.Sprintf("DRY_RUN close %s: %s", pos.ID, note))
	case closeBlocked:
		r.journal.Warn(ctx, "Skipped close trade due to rate limit guard.")
	case closeFailed:
		r.journal.Error(ctx, fmt.Sprintf("Close trade failed: %v", err), zap.String("code", common.ErrorCode(err)))
	case closeOK:
		r.journal.Info(ctx, fmt.Sprintf("Closed position %s: %s", pos.ID, note))
	}
}

func (r *Runner) recordTrade(ctx context.Context, action, status string, owner ownership.Owner, coin, positionID, notes string) {
	s := r.Settings()
	rec := db.TradeRecord{
		TS:         r.clock.Now().Unix(),
		Action:     action,
		Coin:       coin,
		Side:       string(common.SideLong),
		Margin:     s.MarginBoks,
		Leverage:   s.Leverage,
		Status:     status,
		Notes:      notes,
		PositionID: positionID,
	}
	if err := r.store.RecordTrade(ctx, rec); err != nil {
		r.journal.Logger().Error("record trade", zap.String("action", action), zap.Error(err))
	}
	r.metrics.ObserveTrade(action, status)
	r.bus.Publish(events.EventTrade, events.TradeEvent{
		Action:     action,
		Status:     status,
		Owner:      string(owner),
		Coin:       coin,
		PositionID: positionID,
		Margin:     s.MarginBoks,
		Leverage:   s.Leverage,
		Note:       notes,
	})
}
