package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LotFilters are the exchange symbol filters that constrain order size and price.
type LotFilters struct {
	StepSize    decimal.Decimal `json:"step_size"`
	TickSize    decimal.Decimal `json:"tick_size"`
	MinQty      decimal.Decimal `json:"min_qty"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// DefaultLotFilters apply when the exchange omits LOT_SIZE or PRICE_FILTER.
func DefaultLotFilters() LotFilters {
	return LotFilters{
		StepSize: decimal.RequireFromString("0.001"),
		TickSize: decimal.RequireFromString("0.01"),
	}
}

// FilterEntry is one element of a symbol's "filters" array in exchangeInfo.
type FilterEntry struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinQty      string `json:"minQty"`
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}

// ParseFilters folds exchange filter entries into LotFilters. Minimums keep
// the largest value seen across LOT_SIZE/MARKET_LOT_SIZE and MIN_NOTIONAL/NOTIONAL.
func ParseFilters(entries []FilterEntry) LotFilters {
	out := DefaultLotFilters()
	for _, e := range entries {
		switch e.FilterType {
		case "LOT_SIZE", "MARKET_LOT_SIZE":
			if d, ok := parseDecimal(e.StepSize); ok {
				out.StepSize = d
			}
			if d, ok := parseDecimal(e.MinQty); ok {
				out.MinQty = decimal.Max(out.MinQty, d)
			}
		case "PRICE_FILTER":
			if d, ok := parseDecimal(e.TickSize); ok {
				out.TickSize = d
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			if d, ok := parseDecimal(e.Notional); ok {
				out.MinNotional = decimal.Max(out.MinNotional, d)
			}
			if d, ok := parseDecimal(e.MinNotional); ok {
				out.MinNotional = decimal.Max(out.MinNotional, d)
			}
		}
	}
	return out
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FloorToStep rounds v down to a multiple of step. A non-positive step is a no-op.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// Normalized is an order after applying exchange filters.
type Normalized struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	Warnings []string        `json:"warnings"`
}

// NormalizeOrder converts a notional into a step-aligned quantity at price and
// floors price to the tick. A quantity below MinQty is bumped up to it.
// Violations come back as warnings, not errors.
func NormalizeOrder(notional, price decimal.Decimal, f LotFilters) Normalized {
	if !price.IsPositive() {
		price = decimal.NewFromFloat(epsilon)
	}
	qty := FloorToStep(notional.Div(price), f.StepSize)
	if qty.LessThan(f.MinQty) {
		qty = FloorToStep(f.MinQty, f.StepSize)
	}
	n := Normalized{
		Quantity: qty,
		Price:    FloorToStep(price, f.TickSize),
		Notional: qty.Mul(price),
		Warnings: []string{},
	}
	if n.Notional.LessThan(f.MinNotional) {
		n.Warnings = append(n.Warnings, fmt.Sprintf("Notional %s is below exchange minNotional %s.",
			n.Notional.StringFixed(4), f.MinNotional.StringFixed(4)))
	}
	if !qty.IsPositive() {
		n.Warnings = append(n.Warnings, "Quantity resolved to zero after step-size rounding.")
	}
	return n
}
