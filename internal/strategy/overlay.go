package strategy

import (
	"fmt"

	"trading-bot/internal/indicators"
	"trading-bot/pkg/market"
)

// EvaluateEntry dispatches to the entry evaluator of v.
func EvaluateEntry(v Variant, candles []market.Candle, p Params) Verdict {
	if v == Momentum {
		return EvaluateMomentumEntry(candles, p.Momentum)
	}
	return EvaluateTrend(candles, p.Trend)
}

// Point is one value of an indicator line.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Overlay is the chart payload for a strategy: candles, indicator lines and
// the historical markers produced by the scan evaluators.
type Overlay struct {
	Strategy         Variant         `json:"strategy"`
	Enabled          bool            `json:"enabled"`
	RequiredInterval string          `json:"required_interval"`
	Interval         string          `json:"interval"`
	Message          string          `json:"message,omitempty"`
	Candles          []market.Candle `json:"candles"`
	MA50             []Point         `json:"ma50"`
	EMAFast          []Point         `json:"ema_fast"`
	EMASlow          []Point         `json:"ema_slow"`
	Entries          []Marker        `json:"entries"`
	Exits            []Marker        `json:"exits"`
}

// IntervalMismatch returns a disabled overlay when the momentum variant is
// charted on another interval, and ok=false otherwise.
func IntervalMismatch(def Definition, interval string) (Overlay, bool) {
	if def.ID != Momentum || interval == def.Interval {
		return Overlay{}, false
	}
	return Overlay{
		Strategy:         def.ID,
		RequiredInterval: def.Interval,
		Interval:         interval,
		Message:          fmt.Sprintf("%s requires %s candles", def.Label, def.Interval),
		Candles:          []market.Candle{},
		MA50:             []Point{},
		EMAFast:          []Point{},
		EMASlow:          []Point{},
		Entries:          []Marker{},
		Exits:            []Marker{},
	}, true
}

// BuildOverlay computes the chart payload for def on closed candles.
func BuildOverlay(def Definition, p Params, interval string, candles []market.Candle) Overlay {
	if o, mismatch := IntervalMismatch(def, interval); mismatch {
		return o
	}
	o := Overlay{
		Strategy:         def.ID,
		Enabled:          true,
		RequiredInterval: def.Interval,
		Interval:         interval,
		Candles:          candles,
		MA50:             []Point{},
		EMAFast:          []Point{},
		EMASlow:          []Point{},
		Entries:          []Marker{},
		Exits:            []Marker{},
	}
	closes := market.Closes(candles)

	switch def.ID {
	case Momentum:
		if s, err := indicators.EMASeries(closes, p.Momentum.FastPeriod); err == nil {
			o.EMAFast = line(candles, s)
		}
		if s, err := indicators.EMASeries(closes, p.Momentum.SlowPeriod); err == nil {
			o.EMASlow = line(candles, s)
		}
		entries, exits := ScanMomentum(candles, p.Momentum)
		o.Entries = append(o.Entries, entries...)
		o.Exits = append(o.Exits, exits...)
	default:
		if s, err := indicators.SMASeries(closes, p.Trend.MAPeriod); err == nil {
			o.MA50 = line(candles, s)
		}
		o.Entries = append(o.Entries, ScanTrend(candles, p.Trend)...)
	}
	return o
}

func line(candles []market.Candle, s indicators.Series) []Point {
	out := make([]Point, 0, len(candles))
	for i, c := range candles {
		if v, ok := s.At(i); ok {
			out = append(out, Point{Time: c.OpenTime, Value: v})
		}
	}
	return out
}
