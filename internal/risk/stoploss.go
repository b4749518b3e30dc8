package risk

import "math"

// ExitReason says why a managed position should be closed.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTrailing   ExitReason = "trailing_stop"
)

// FixedFractionExit compares PnL against +/- capital fractions. No state, no trailing.
func FixedFractionExit(pnl, capital, slPct, tpPct float64) ExitReason {
	if capital <= 0 {
		return ExitNone
	}
	switch {
	case pnl <= -math.Abs(capital*slPct):
		return ExitStopLoss
	case pnl >= math.Abs(capital*tpPct):
		return ExitTakeProfit
	}
	return ExitNone
}

// RiskUnitState tracks one managed position in units of R, the capital at
// risk fixed when the position was first observed.
type RiskUnitState struct {
	PositionID     string  `json:"position_id"`
	RiskR          float64 `json:"risk_r"`
	TrailingActive bool    `json:"trailing_active"`
	PeakPnL        float64 `json:"peak_pnl"`
}

// NewRiskUnitState starts tracking positionID at the current PnL.
func NewRiskUnitState(positionID string, capital, slPct, pnl float64) RiskUnitState {
	r := math.Max(math.Abs(capital*slPct), epsilon)
	return RiskUnitState{
		PositionID:     positionID,
		RiskR:          r,
		TrailingActive: pnl >= r,
		PeakPnL:        pnl,
	}
}

// Observe folds the latest PnL into the peak and reports whether trailing
// was activated by this observation.
func (s *RiskUnitState) Observe(pnl float64) (activated bool) {
	s.PeakPnL = math.Max(s.PeakPnL, pnl)
	if !s.TrailingActive && pnl >= s.RiskR {
		s.TrailingActive = true
		return true
	}
	return false
}

// Exit applies the checks in order: exit signal, -1R stop, +2R target,
// then a 1R giveback from the peak once trailing.
func (s RiskUnitState) Exit(pnl float64, exitSignal bool) ExitReason {
	switch {
	case exitSignal:
		return ExitSignal
	case pnl <= -s.RiskR:
		return ExitStopLoss
	case pnl >= 2*s.RiskR:
		return ExitTakeProfit
	case s.TrailingActive && s.PeakPnL-pnl >= s.RiskR:
		return ExitTrailing
	}
	return ExitNone
}
