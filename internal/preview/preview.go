// Package preview sizes hypothetical Aster futures orders against the
// exchange's symbol filters without placing them.
package preview

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-bot/internal/engine"
	"trading-bot/internal/risk"
	"trading-bot/pkg/exchanges/aster"
)

const (
	maxLeverage = 125
	minSLPct    = 0.0001
)

var orderTypes = []string{"MARKET", "LIMIT", "STOP", "STOP_MARKET", "TAKE_PROFIT", "TAKE_PROFIT_MARKET"}

// Defaults fill request fields the caller leaves empty.
type Defaults struct {
	Symbol   string
	Notional float64
	Leverage int
	SLPct    float64
	TPPct    float64
}

// Service implements engine.Previewer on top of the Aster client.
type Service struct {
	client   *aster.Client
	defaults Defaults
	logger   *zap.Logger
}

var _ engine.Previewer = (*Service)(nil)

// New creates a preview service.
func New(client *aster.Client, d Defaults, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Symbol == "" {
		d.Symbol = "ETHUSDT"
	}
	if d.Leverage <= 0 {
		d.Leverage = 5
	}
	if d.SLPct <= 0 {
		d.SLPct = 0.01
	}
	return &Service{client: client, defaults: d, logger: logger}
}

// Preview normalises req against the symbol filters at the current mark
// price. Filter violations come back as warnings.
func (s *Service) Preview(ctx context.Context, req engine.PreviewRequest) (engine.PreviewResult, error) {
	req = s.normalise(req)

	raw, err := s.client.SymbolFilters(ctx, req.Symbol)
	if err != nil {
		return engine.PreviewResult{}, fmt.Errorf("symbol filters: %w", err)
	}
	filters := risk.ParseFilters(toEntries(raw))
	mark, err := s.client.MarkPrice(ctx, req.Symbol)
	if err != nil {
		return engine.PreviewResult{}, fmt.Errorf("mark price: %w", err)
	}

	entry := mark
	if req.OrderType != "MARKET" && req.Price > 0 {
		entry = req.Price
	}
	entryDec := decimal.NewFromFloat(entry)
	order := risk.NormalizeOrder(decimal.NewFromFloat(req.Notional), entryDec, filters)
	notional := order.Quantity.Mul(entryDec)

	sl := decimal.NewFromFloat(req.SLPct)
	tp := decimal.NewFromFloat(req.TPPct)
	one := decimal.NewFromInt(1)
	slMult, tpMult := one.Sub(sl), one.Add(tp)
	if req.Side == "SELL" {
		slMult, tpMult = one.Add(sl), one.Sub(tp)
	}

	res := engine.PreviewResult{
		Symbol:     req.Symbol,
		Side:       req.Side,
		OrderType:  req.OrderType,
		MarkPrice:  mark,
		EntryPrice: entryDec.String(),
		Quantity:   order.Quantity.String(),
		Notional:   notional.StringFixed(4),
		Leverage:   req.Leverage,
		Margin:     notional.Div(decimal.NewFromInt(int64(req.Leverage))).StringFixed(4),
		StopLoss:   risk.FloorToStep(entryDec.Mul(slMult), filters.TickSize).String(),
		TakeProfit: risk.FloorToStep(entryDec.Mul(tpMult), filters.TickSize).String(),
		RiskUSDT:   notional.Mul(sl).StringFixed(4),
		Warnings:   order.Warnings,
	}

	if s.client.HasCredentials() {
		positions, err := s.client.Positions(ctx, req.Symbol)
		if err != nil {
			s.logger.Warn("aster positions unavailable", zap.String("symbol", req.Symbol), zap.Error(err))
		} else {
			res.OpenPositions = len(positions)
			if len(positions) > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%d open %s position(s) on Aster.", len(positions), req.Symbol))
			}
		}
	}
	return res, nil
}

func (s *Service) normalise(req engine.PreviewRequest) engine.PreviewRequest {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		req.Symbol = s.defaults.Symbol
	}
	req.Side = strings.ToUpper(strings.TrimSpace(req.Side))
	if req.Side != "BUY" && req.Side != "SELL" {
		req.Side = "BUY"
	}
	req.OrderType = strings.ToUpper(strings.TrimSpace(req.OrderType))
	if !slices.Contains(orderTypes, req.OrderType) {
		req.OrderType = "MARKET"
	}
	if req.Leverage == 0 {
		req.Leverage = s.defaults.Leverage
	}
	req.Leverage = min(max(req.Leverage, 1), maxLeverage)
	if req.Notional == 0 {
		req.Notional = s.defaults.Notional
	}
	req.Notional = max(req.Notional, 0)
	if req.SLPct == 0 {
		req.SLPct = s.defaults.SLPct
	}
	req.SLPct = max(req.SLPct, minSLPct)
	if req.TPPct == 0 {
		req.TPPct = s.defaults.TPPct
	}
	req.TPPct = max(req.TPPct, 0)
	return req
}

func toEntries(filters []aster.SymbolFilter) []risk.FilterEntry {
	out := make([]risk.FilterEntry, len(filters))
	for i, f := range filters {
		out[i] = risk.FilterEntry(f)
	}
	return out
}
