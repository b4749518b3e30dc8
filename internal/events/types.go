package events

import "time"

// Event enumerates the topics the runner publishes.
type Event string

const (
	EventTick        Event = "runner.tick"
	EventSignal      Event = "strategy.signal"
	EventTrade       Event = "trade"
	EventOwnership   Event = "ownership"
	EventRiskAlert   Event = "risk.alert"
	EventStateChange Event = "runner.state"
)

// All lists every topic, for subscribers that want the full stream.
var All = []Event{EventTick, EventSignal, EventTrade, EventOwnership, EventRiskAlert, EventStateChange}

// Envelope is what subscribers receive.
type Envelope struct {
	Topic   Event     `json:"topic"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// TickEvent summarises one completed runner tick.
type TickEvent struct {
	TickID      string  `json:"tick_id"`
	TS          int64   `json:"ts"`
	Positions   int     `json:"positions"`
	TotalEquity float64 `json:"total_equity"`
	Paused      bool    `json:"paused"`
	Err         string  `json:"error,omitempty"`
}

// SignalEvent carries an entry evaluation outcome.
type SignalEvent struct {
	Variant string `json:"variant"`
	Coin    string `json:"coin"`
	Signal  bool   `json:"signal"`
	Reason  string `json:"reason"`
}

// TradeEvent is emitted for every OPEN/CLOSE attempt.
type TradeEvent struct {
	Action     string  `json:"action"`
	Status     string  `json:"status"`
	Owner      string  `json:"owner"`
	Coin       string  `json:"coin"`
	PositionID string  `json:"position_id,omitempty"`
	Margin     float64 `json:"margin"`
	Leverage   float64 `json:"leverage"`
	Note       string  `json:"note"`
}

// OwnershipEvent reports a binding change.
type OwnershipEvent struct {
	Owner      string `json:"owner"`
	PositionID string `json:"position_id"`
	Change     string `json:"change"` // bound, cleared, pruned, heuristic
	Detail     string `json:"detail,omitempty"`
}

// RiskAlert reports a risk state transition such as trailing activation.
type RiskAlert struct {
	PositionID string  `json:"position_id"`
	Kind       string  `json:"kind"`
	PnL        float64 `json:"pnl"`
	RiskR      float64 `json:"risk_r"`
}

// StateChange reports pause/resume and strategy or settings changes.
type StateChange struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}
