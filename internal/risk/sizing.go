package risk

import "math"

const epsilon = 1e-9

// Targets are the absolute stop-loss and take-profit prices for a long entry,
// with the intermediate values used to derive them.
type Targets struct {
	Notional   float64 `json:"notional"`
	SLPnL      float64 `json:"sl_pnl_target"`
	TPPnL      float64 `json:"tp_pnl_target"`
	SLMovePct  float64 `json:"sl_move_pct"`
	TPMovePct  float64 `json:"tp_move_pct"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// BuildLongTargets sizes stop-loss and take-profit distances as fractions of
// account capital rather than of the entry price.
func BuildLongTargets(entry, capital, margin, leverage, slPct, tpPct float64) Targets {
	notional := math.Max(margin*leverage, epsilon)
	slPnL := -math.Abs(capital * slPct)
	tpPnL := math.Abs(capital * tpPct)
	slMove := math.Abs(slPnL) / notional
	tpMove := tpPnL / notional
	return Targets{
		Notional:   notional,
		SLPnL:      slPnL,
		TPPnL:      tpPnL,
		SLMovePct:  slMove,
		TPMovePct:  tpMove,
		StopLoss:   math.Max(entry*(1-slMove), 0),
		TakeProfit: math.Max(entry*(1+tpMove), 0),
	}
}

// Capital is realized collateral: free balance plus margin locked in open
// positions. Unrealized PnL is never included.
func Capital(balance, lockedMargin float64) float64 {
	return math.Max(balance+lockedMargin, 0)
}

// RoundPrice rounds to 6 decimals for order payloads.
func RoundPrice(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
