package engine

import (
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/exchanges/common"
)

// ActionResult is the outcome of an operator action.
type ActionResult struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	DryRun     bool                `json:"dry_run,omitempty"`
	Paused     *bool               `json:"paused,omitempty"`
	Closed     int                 `json:"closed,omitempty"`
	PositionID string              `json:"position_id,omitempty"`
	Symbol     string              `json:"symbol,omitempty"`
	Strategy   strategy.Variant    `json:"active_strategy,omitempty"`
	Payload    *common.OpenRequest `json:"payload,omitempty"`
	Response   common.Response     `json:"response,omitempty"`
	Code       string              `json:"code,omitempty"`
}

// Fail builds a rejected result.
func Fail(msg string) ActionResult {
	return ActionResult{Message: msg}
}

// Status is the runner snapshot shown on the dashboard.
type Status struct {
	Running            bool                `json:"running"`
	Paused             bool                `json:"paused"`
	BotStatus          string              `json:"bot_status"`
	Idle               bool                `json:"idle"`
	DryRun             bool                `json:"dry_run"`
	TradeCoin          string              `json:"trade_coin"`
	TradeSymbol        string              `json:"trade_symbol"`
	LastTick           int64               `json:"last_tick"`
	LastTickID         string              `json:"last_tick_id,omitempty"`
	ActiveStrategy     strategy.Variant    `json:"active_strategy"`
	Strategy           strategy.Definition `json:"strategy"`
	Settings           risk.Settings       `json:"settings"`
	MaxPositions       int                 `json:"max_positions"`
	ManualMaxPositions int                 `json:"manual_max_positions"`
	ManualSymbols      []string            `json:"manual_symbols"`
	PollSeconds        int                 `json:"poll_seconds"`
	GuardUsed          int                 `json:"guard_used"`
	GuardLimit         int                 `json:"guard_limit"`
}

// PreviewRequest describes a hypothetical Aster futures order.
type PreviewRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Price     float64 `json:"price"`
	Notional  float64 `json:"notional"`
	Leverage  int     `json:"leverage"`
	SLPct     float64 `json:"sl_pct"`
	TPPct     float64 `json:"tp_pct"`
}

// PreviewResult is the normalised order with its risk figures.
type PreviewResult struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	OrderType     string   `json:"order_type"`
	MarkPrice     float64  `json:"mark_price"`
	EntryPrice    string   `json:"entry_price"`
	Quantity      string   `json:"quantity"`
	Notional      string   `json:"notional"`
	Leverage      int      `json:"leverage"`
	Margin        string   `json:"margin"`
	StopLoss      string   `json:"stop_loss"`
	TakeProfit    string   `json:"take_profit"`
	RiskUSDT      string   `json:"risk_usdt"`
	OpenPositions int      `json:"open_positions"`
	Warnings      []string `json:"warnings"`
}
