package strategy

import (
	"fmt"

	"trading-bot/internal/indicators"
	"trading-bot/pkg/market"
)

type trendInputs struct {
	closes []float64
	ma     indicators.Series
	p      TrendParams
}

func newTrendInputs(candles []market.Candle, p TrendParams) (trendInputs, error) {
	closes := market.Closes(candles)
	ma, err := indicators.SMASeries(closes, p.MAPeriod)
	if err != nil {
		return trendInputs{}, err
	}
	return trendInputs{closes: closes, ma: ma, p: p}, nil
}

type trendCheck struct {
	above    []bool
	preLE    bool
	close    float64
	ma       float64
	preClose float64
	preMA    float64
}

func (c trendCheck) fired() bool {
	for _, ok := range c.above {
		if !ok {
			return false
		}
	}
	return c.preLE
}

// at evaluates the confirmation window ending at index t. ok is false when
// any index in the window, or the candle before it, has no MA value.
func (in trendInputs) at(t int) (trendCheck, bool) {
	pre := t - in.p.Confirmations
	if pre < 0 || t >= len(in.closes) {
		return trendCheck{}, false
	}
	preMA, ok := in.ma.At(pre)
	if !ok {
		return trendCheck{}, false
	}
	c := trendCheck{
		above:    make([]bool, 0, in.p.Confirmations),
		preClose: in.closes[pre],
		preMA:    preMA,
		preLE:    in.closes[pre] <= preMA,
	}
	for i := pre + 1; i <= t; i++ {
		m, ok := in.ma.At(i)
		if !ok {
			return trendCheck{}, false
		}
		c.above = append(c.above, in.closes[i] > m)
		c.close, c.ma = in.closes[i], m
	}
	return c, true
}

// EvaluateTrend checks the trend-confirm entry on the latest candle.
func EvaluateTrend(candles []market.Candle, p TrendParams) Verdict {
	n := len(candles)
	if n < p.MinCandles() {
		return notEnough(TrendConfirm, p.MinCandles(), n)
	}
	in, err := newTrendInputs(candles, p)
	if err != nil {
		return unavailable(TrendConfirm)
	}
	c, ok := in.at(n - 1)
	if !ok {
		return unavailable(TrendConfirm)
	}

	checks := make(map[string]bool, len(c.above)+1)
	for i, above := range c.above {
		checks[fmt.Sprintf("c%d_gt_ma", i+1)] = above
	}
	checks["pre_le_ma"] = c.preLE

	v := Verdict{
		Variant:            TrendConfirm,
		Signal:             c.fired(),
		Reason:             ReasonConditionsNotMet,
		Close:              c.close,
		MA:                 c.ma,
		PreClose:           c.preClose,
		PreMA:              c.preMA,
		LastCandleOpenTime: candles[n-1].OpenTime,
		Diagnostics:        &Diagnostics{Checks: checks},
	}
	if v.Signal {
		v.Reason = ReasonLongSignal
	}
	return v
}

// ScanTrend marks every candle where the trend-confirm entry would have fired.
func ScanTrend(candles []market.Candle, p TrendParams) []Marker {
	in, err := newTrendInputs(candles, p)
	if err != nil {
		return nil
	}
	var out []Marker
	for t := p.Confirmations; t < len(candles); t++ {
		if c, ok := in.at(t); ok && c.fired() {
			out = append(out, Marker{Time: candles[t].OpenTime, Price: candles[t].Close, Label: "MA50 LONG"})
		}
	}
	return out
}
