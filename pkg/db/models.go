package db

// LogEntry is one row of the append-only runtime log shown on the dashboard.
type LogEntry struct {
	TS      int64  `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TradeRecord is an immutable OPEN/CLOSE attempt.
type TradeRecord struct {
	TS         int64   `json:"ts"`
	Action     string  `json:"action"`
	Coin       string  `json:"coin"`
	Side       string  `json:"side"`
	Margin     float64 `json:"margin"`
	Leverage   float64 `json:"leverage"`
	Status     string  `json:"status"`
	Notes      string  `json:"notes"`
	PositionID string  `json:"position_id,omitempty"`
}

// Trade actions and statuses.
const (
	ActionOpen  = "OPEN"
	ActionClose = "CLOSE"

	StatusOK     = "OK"
	StatusError  = "ERROR"
	StatusDryRun = "DRY_RUN"
)

// SignalRecord stores an evaluated entry verdict; Details is the verdict JSON.
type SignalRecord struct {
	TS        int64  `json:"ts"`
	Coin      string `json:"coin"`
	Timeframe string `json:"timeframe"`
	Signal    bool   `json:"signal"`
	Details   string `json:"details"`
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	TS          int64   `json:"ts"`
	Balance     float64 `json:"balance"`
	Available   float64 `json:"available"`
	Locked      float64 `json:"locked"`
	Unrealized  float64 `json:"unrealized"`
	TotalEquity float64 `json:"total_equity"`
}
