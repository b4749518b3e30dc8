package strategy

// Variant identifies a strategy implementation.
type Variant string

const (
	// TrendConfirm enters when price crosses above the 4h MA50 and holds for three candles.
	TrendConfirm Variant = "MA50_4H_CROSSUP_3C_LONG_ONLY"
	// Momentum enters on a 15m EMA20/EMA50 cross-up filtered by RSI and exits on cross-down.
	Momentum Variant = "EMA_RSI_15M_ETH_ONLY"
)

// Reason explains a verdict.
type Reason string

const (
	ReasonLongSignal           Reason = "long_signal"
	ReasonExitSignal           Reason = "exit_signal"
	ReasonConditionsNotMet     Reason = "conditions_not_met"
	ReasonNotEnoughCandles     Reason = "not_enough_candles"
	ReasonIndicatorUnavailable Reason = "indicator_unavailable"
)

// Momentum entry filter names reported in Diagnostics.PassedFilters.
const (
	FilterCrossUp        = "CROSS_UP"
	FilterRSIBand        = "RSI_BAND"
	FilterVolume         = "VOLUME_GT_0"
	FilterCloseAboveSlow = "CLOSE_GT_EMA_SLOW"
)

// Verdict is the outcome of evaluating one variant on the latest closed candle.
type Verdict struct {
	Variant            Variant      `json:"strategy"`
	Signal             bool         `json:"signal"`
	Reason             Reason       `json:"reason"`
	Needed             int          `json:"needed,omitempty"`
	Current            int          `json:"current,omitempty"`
	Close              float64      `json:"close,omitempty"`
	MA                 float64      `json:"ma50,omitempty"`
	PreClose           float64      `json:"pre_close,omitempty"`
	PreMA              float64      `json:"pre_ma50,omitempty"`
	EMAFast            float64      `json:"ema_fast,omitempty"`
	EMASlow            float64      `json:"ema_slow,omitempty"`
	RSI                float64      `json:"rsi,omitempty"`
	LastCandleOpenTime int64        `json:"last_candle_open_time,omitempty"`
	Diagnostics        *Diagnostics `json:"diagnostics,omitempty"`
}

// Diagnostics lists each sub-condition of a verdict.
type Diagnostics struct {
	Checks        map[string]bool `json:"checks"`
	PassedFilters []string        `json:"passed_filters,omitempty"`
}

// Passed reports whether filter is in PassedFilters.
func (d *Diagnostics) Passed(filter string) bool {
	if d == nil {
		return false
	}
	for _, f := range d.PassedFilters {
		if f == filter {
			return true
		}
	}
	return false
}

func notEnough(v Variant, needed, current int) Verdict {
	return Verdict{Variant: v, Reason: ReasonNotEnoughCandles, Needed: needed, Current: current}
}

func unavailable(v Variant) Verdict {
	return Verdict{Variant: v, Reason: ReasonIndicatorUnavailable}
}

// Marker is a historical point where a condition fired.
type Marker struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
	Label string  `json:"label"`
}

// Definition describes a selectable strategy.
type Definition struct {
	ID        Variant `json:"id"`
	Label     string  `json:"label"`
	Entry     string  `json:"entry"`
	Interval  string  `json:"interval"`
	Bars      int     `json:"bars"`
	MarkerKey string  `json:"-"`
}

var catalog = []Definition{
	{
		ID:        TrendConfirm,
		Label:     "MA50 4H CrossUp 3 Candles",
		Entry:     "Price crosses above MA50 then closes above MA50 for 3 consecutive 4H candles.",
		Interval:  "4h",
		Bars:      90,
		MarkerKey: "last_entry_candle",
	},
	{
		ID:        Momentum,
		Label:     "EMA20/50 + RSI filter 15m",
		Entry:     "EMA20 cross above EMA50 with RSI in 50-70 band on closed 15m candle.",
		Interval:  "15m",
		Bars:      300,
		MarkerKey: "last_entry_candle_ema_rsi",
	},
}

// DefaultVariant is used when no valid strategy has been selected.
const DefaultVariant = TrendConfirm

// Catalog lists the selectable strategies.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a definition by id.
func Lookup(id Variant) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}
