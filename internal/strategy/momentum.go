package strategy

import (
	"trading-bot/internal/indicators"
	"trading-bot/pkg/market"
)

type momentumInputs struct {
	closes  []float64
	volumes []float64
	fast    indicators.Series
	slow    indicators.Series
	rsi     indicators.Series
	p       MomentumParams
}

func newMomentumInputs(candles []market.Candle, p MomentumParams) (momentumInputs, error) {
	closes := market.Closes(candles)
	fast, err := indicators.EMASeries(closes, p.FastPeriod)
	if err != nil {
		return momentumInputs{}, err
	}
	slow, err := indicators.EMASeries(closes, p.SlowPeriod)
	if err != nil {
		return momentumInputs{}, err
	}
	rsi, err := indicators.RSISeries(closes, p.RSIPeriod)
	if err != nil {
		return momentumInputs{}, err
	}
	return momentumInputs{closes: closes, volumes: market.Volumes(candles), fast: fast, slow: slow, rsi: rsi, p: p}, nil
}

type emaPair struct {
	fastPrev, fastNow float64
	slowPrev, slowNow float64
}

func (in momentumInputs) pair(t int) (emaPair, bool) {
	if t < 1 {
		return emaPair{}, false
	}
	var (
		e   emaPair
		ok1 bool
		ok2 bool
		ok3 bool
		ok4 bool
	)
	e.fastPrev, ok1 = in.fast.At(t - 1)
	e.fastNow, ok2 = in.fast.At(t)
	e.slowPrev, ok3 = in.slow.At(t - 1)
	e.slowNow, ok4 = in.slow.At(t)
	return e, ok1 && ok2 && ok3 && ok4
}

func (e emaPair) crossUp() bool   { return e.fastPrev <= e.slowPrev && e.fastNow > e.slowNow }
func (e emaPair) crossDown() bool { return e.fastPrev >= e.slowPrev && e.fastNow < e.slowNow }

type entryCheck struct {
	emaPair
	rsi       float64
	close     float64
	crossUp   bool
	rsiInBand bool
	volumeOK  bool
	aboveSlow bool
}

func (c entryCheck) fired() bool {
	return c.crossUp && c.rsiInBand && c.volumeOK && c.aboveSlow
}

func (c entryCheck) passedFilters() []string {
	out := make([]string, 0, 4)
	if c.crossUp {
		out = append(out, FilterCrossUp)
	}
	if c.rsiInBand {
		out = append(out, FilterRSIBand)
	}
	if c.volumeOK {
		out = append(out, FilterVolume)
	}
	if c.aboveSlow {
		out = append(out, FilterCloseAboveSlow)
	}
	return out
}

func (in momentumInputs) entryAt(t int) (entryCheck, bool) {
	e, ok := in.pair(t)
	if !ok {
		return entryCheck{}, false
	}
	r, ok := in.rsi.At(t)
	if !ok {
		return entryCheck{}, false
	}
	return entryCheck{
		emaPair:   e,
		rsi:       r,
		close:     in.closes[t],
		crossUp:   e.crossUp(),
		rsiInBand: in.p.RSIMin <= r && r <= in.p.RSIMax,
		volumeOK:  in.volumes[t] > 0,
		aboveSlow: in.closes[t] > e.slowNow,
	}, true
}

// EvaluateMomentumEntry checks the EMA cross-up entry with its RSI, volume
// and trend filters on the latest candle.
func EvaluateMomentumEntry(candles []market.Candle, p MomentumParams) Verdict {
	n := len(candles)
	if n < p.MinEntryCandles() {
		return notEnough(Momentum, p.MinEntryCandles(), n)
	}
	in, err := newMomentumInputs(candles, p)
	if err != nil {
		return unavailable(Momentum)
	}
	c, ok := in.entryAt(n - 1)
	if !ok {
		return unavailable(Momentum)
	}

	v := Verdict{
		Variant:            Momentum,
		Signal:             c.fired(),
		Reason:             ReasonConditionsNotMet,
		Close:              c.close,
		EMAFast:            c.fastNow,
		EMASlow:            c.slowNow,
		RSI:                c.rsi,
		LastCandleOpenTime: candles[n-1].OpenTime,
		Diagnostics: &Diagnostics{
			Checks: map[string]bool{
				"cross_up":          c.crossUp,
				"rsi_band_ok":       c.rsiInBand,
				"volume_ok":         c.volumeOK,
				"close_gt_ema_slow": c.aboveSlow,
			},
			PassedFilters: c.passedFilters(),
		},
	}
	if v.Signal {
		v.Reason = ReasonLongSignal
	}
	return v
}

// EvaluateMomentumExit checks for an EMA cross-down on the latest candle.
func EvaluateMomentumExit(candles []market.Candle, p MomentumParams) Verdict {
	n := len(candles)
	if n < p.MinExitCandles() {
		return notEnough(Momentum, p.MinExitCandles(), n)
	}
	in, err := newMomentumInputs(candles, p)
	if err != nil {
		return unavailable(Momentum)
	}
	e, ok := in.pair(n - 1)
	if !ok {
		return unavailable(Momentum)
	}
	v := Verdict{
		Variant:            Momentum,
		Signal:             e.crossDown(),
		Reason:             ReasonConditionsNotMet,
		Close:              in.closes[n-1],
		EMAFast:            e.fastNow,
		EMASlow:            e.slowNow,
		LastCandleOpenTime: candles[n-1].OpenTime,
		Diagnostics:        &Diagnostics{Checks: map[string]bool{"cross_down": e.crossDown()}},
	}
	if v.Signal {
		v.Reason = ReasonExitSignal
	}
	return v
}

// ScanMomentum marks every candle where the momentum entry or exit fired.
func ScanMomentum(candles []market.Candle, p MomentumParams) (entries, exits []Marker) {
	in, err := newMomentumInputs(candles, p)
	if err != nil {
		return nil, nil
	}
	for t := 1; t < len(candles); t++ {
		if c, ok := in.entryAt(t); ok && c.fired() {
			entries = append(entries, Marker{Time: candles[t].OpenTime, Price: candles[t].Close, Label: "EMA LONG"})
		}
		if e, ok := in.pair(t); ok && e.crossDown() {
			exits = append(exits, Marker{Time: candles[t].OpenTime, Price: candles[t].Close, Label: "EMA EXIT"})
		}
	}
	return entries, exits
}
