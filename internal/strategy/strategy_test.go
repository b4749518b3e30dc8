package strategy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trading-bot/pkg/market"
)

func candlesFrom(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime:  int64(i) * 900_000,
			CloseTime: int64(i+1)*900_000 - 1,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNotEnoughCandles(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name   string
		eval   func([]market.Candle) Verdict
		needed int
	}{
		{"trend", func(c []market.Candle) Verdict { return EvaluateTrend(c, p.Trend) }, 54},
		{"momentum entry", func(c []market.Candle) Verdict { return EvaluateMomentumEntry(c, p.Momentum) }, 55},
		{"momentum exit", func(c []market.Candle) Verdict { return EvaluateMomentumExit(c, p.Momentum) }, 53},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range []int{0, 1, tt.needed - 1} {
				v := tt.eval(candlesFrom(repeat(100, n)))
				if v.Signal || v.Reason != ReasonNotEnoughCandles {
					t.Fatalf("n=%d: got signal=%v reason=%s", n, v.Signal, v.Reason)
				}
				if v.Needed != tt.needed || v.Current != n {
					t.Fatalf("n=%d: needed=%d current=%d", n, v.Needed, v.Current)
				}
			}
		})
	}
}

func TestTrendConfirm(t *testing.T) {
	p := DefaultParams().Trend

	// 51 flat closes (the last one is the pre-window candle at the MA), then 3 above.
	crossing := append(repeat(100, 51), 101, 101, 101)

	t.Run("three closes above after close at MA", func(t *testing.T) {
		v := EvaluateTrend(candlesFrom(crossing), p)
		if !v.Signal || v.Reason != ReasonLongSignal {
			t.Fatalf("expected long signal, got %+v", v)
		}
		if v.Close != 101 || v.PreClose != 100 || v.PreMA != 100 {
			t.Fatalf("unexpected values %+v", v)
		}
		if v.LastCandleOpenTime != 53*900_000 {
			t.Fatalf("last candle open time=%d", v.LastCandleOpenTime)
		}
		for _, k := range []string{"c1_gt_ma", "c2_gt_ma", "c3_gt_ma", "pre_le_ma"} {
			if !v.Diagnostics.Checks[k] {
				t.Fatalf("check %s should pass: %v", k, v.Diagnostics.Checks)
			}
		}
	})

	t.Run("longer history still fires on the confirmation state", func(t *testing.T) {
		long := append(repeat(100, 87), 101, 101, 101)
		if v := EvaluateTrend(candlesFrom(long), p); !v.Signal {
			t.Fatalf("expected signal with 90 candles, got %+v", v)
		}
	})

	t.Run("pre-window candle above MA does not fire", func(t *testing.T) {
		four := append(repeat(100, 50), 101, 101, 101, 101)
		v := EvaluateTrend(candlesFrom(four), p)
		if v.Signal || v.Reason != ReasonConditionsNotMet {
			t.Fatalf("expected conditions_not_met, got %+v", v)
		}
		if v.Diagnostics.Checks["pre_le_ma"] {
			t.Fatalf("pre_le_ma should be false")
		}
	})

	t.Run("one confirmation close back under MA", func(t *testing.T) {
		broken := append(repeat(100, 51), 101, 99, 101)
		if v := EvaluateTrend(candlesFrom(broken), p); v.Signal || v.Diagnostics.Checks["c2_gt_ma"] {
			t.Fatalf("expected no signal, got %+v", v)
		}
	})

	t.Run("scan marks only the confirmation candle", func(t *testing.T) {
		markers := ScanTrend(candlesFrom(crossing), p)
		if len(markers) != 1 || markers[0].Time != 53*900_000 || markers[0].Price != 101 {
			t.Fatalf("unexpected markers %+v", markers)
		}
	})
}

func zigzagThenJump() []float64 {
	closes := make([]float64, 0, 74)
	for i := 0; i < 70; i++ {
		if i%2 == 0 {
			closes = append(closes, 100)
		} else {
			closes = append(closes, 101)
		}
	}
	return append(closes, 100, 99.5, 99, 104)
}

func TestMomentumEntry(t *testing.T) {
	p := DefaultParams().Momentum

	t.Run("cross up inside rsi band fires", func(t *testing.T) {
		v := EvaluateMomentumEntry(candlesFrom(zigzagThenJump()), p)
		if !v.Signal || v.Reason != ReasonLongSignal {
			t.Fatalf("expected long signal, got %+v", v)
		}
		if v.RSI < 50 || v.RSI > 70 {
			t.Fatalf("rsi=%v outside band", v.RSI)
		}
		want := []string{FilterCrossUp, FilterRSIBand, FilterVolume, FilterCloseAboveSlow}
		if strings.Join(v.Diagnostics.PassedFilters, ",") != strings.Join(want, ",") {
			t.Fatalf("passed filters=%v", v.Diagnostics.PassedFilters)
		}
	})

	t.Run("rsi outside band blocks a true cross up", func(t *testing.T) {
		// Non-decreasing closes: no losses so RSI is pinned at 100.
		closes := append(repeat(100, 60), 110)
		v := EvaluateMomentumEntry(candlesFrom(closes), p)
		if v.Signal || v.Reason != ReasonConditionsNotMet {
			t.Fatalf("expected no signal, got %+v", v)
		}
		if v.RSI != 100 {
			t.Fatalf("rsi=%v want 100", v.RSI)
		}
		if !v.Diagnostics.Checks["cross_up"] || !v.Diagnostics.Passed(FilterCrossUp) {
			t.Fatalf("cross up should pass: %+v", v.Diagnostics)
		}
		if v.Diagnostics.Passed(FilterRSIBand) {
			t.Fatalf("RSI_BAND must be omitted: %v", v.Diagnostics.PassedFilters)
		}
	})

	t.Run("zero volume blocks entry", func(t *testing.T) {
		candles := candlesFrom(zigzagThenJump())
		candles[len(candles)-1].Volume = 0
		v := EvaluateMomentumEntry(candles, p)
		if v.Signal || v.Diagnostics.Passed(FilterVolume) {
			t.Fatalf("expected volume filter to fail, got %+v", v)
		}
	})
}

func TestMomentumExit(t *testing.T) {
	p := DefaultParams().Momentum

	down := EvaluateMomentumExit(candlesFrom(append(repeat(100, 60), 90)), p)
	if !down.Signal || down.Reason != ReasonExitSignal {
		t.Fatalf("expected exit signal, got %+v", down)
	}

	up := EvaluateMomentumExit(candlesFrom(append(repeat(100, 60), 110)), p)
	if up.Signal || up.Reason != ReasonConditionsNotMet {
		t.Fatalf("cross up must not exit, got %+v", up)
	}
}

func TestScanMatchesPointEvaluation(t *testing.T) {
	p := DefaultParams().Momentum
	closes := zigzagThenJump()
	closes = append(closes, 104.5, 105, 103, 100, 98, 97, 99, 102, 101)
	candles := candlesFrom(closes)

	entries, exits := ScanMomentum(candles, p)
	entryAt := map[int64]bool{}
	for _, m := range entries {
		entryAt[m.Time] = true
	}
	exitAt := map[int64]bool{}
	for _, m := range exits {
		exitAt[m.Time] = true
	}

	for n := p.MinEntryCandles(); n <= len(candles); n++ {
		window := candles[:n]
		last := window[n-1].OpenTime
		if got := EvaluateMomentumEntry(window, p).Signal; got != entryAt[last] {
			t.Fatalf("entry mismatch at n=%d: point=%v scan=%v", n, got, entryAt[last])
		}
		if got := EvaluateMomentumExit(window, p).Signal; got != exitAt[last] {
			t.Fatalf("exit mismatch at n=%d: point=%v scan=%v", n, got, exitAt[last])
		}
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one entry marker")
	}
}

func TestOverlay(t *testing.T) {
	p := DefaultParams()
	rising := make([]float64, 200)
	for i := range rising {
		rising[i] = 1900 + float64(i)*0.8
	}

	ema, _ := Lookup(Momentum)
	ma, _ := Lookup(TrendConfirm)

	t.Run("momentum rejects wrong interval", func(t *testing.T) {
		o := BuildOverlay(ema, p, "4h", candlesFrom(rising[:120]))
		if o.Enabled || o.RequiredInterval != "15m" || !strings.Contains(o.Message, "15m") {
			t.Fatalf("unexpected overlay %+v", o)
		}
	})

	t.Run("momentum returns ema lines", func(t *testing.T) {
		o := BuildOverlay(ema, p, "15m", candlesFrom(rising[:150]))
		if !o.Enabled || len(o.EMAFast) == 0 || len(o.EMASlow) == 0 || len(o.MA50) != 0 {
			t.Fatalf("unexpected overlay lines fast=%d slow=%d ma=%d", len(o.EMAFast), len(o.EMASlow), len(o.MA50))
		}
		if len(o.EMAFast) != 150-19 || len(o.EMASlow) != 150-49 {
			t.Fatalf("line lengths fast=%d slow=%d", len(o.EMAFast), len(o.EMASlow))
		}
	})

	t.Run("trend returns ma50 line", func(t *testing.T) {
		o := BuildOverlay(ma, p, "4h", candlesFrom(rising))
		if !o.Enabled || o.RequiredInterval != "4h" || len(o.MA50) == 0 || len(o.EMAFast) != 0 || len(o.EMASlow) != 0 {
			t.Fatalf("unexpected overlay %+v", o)
		}
	})
}

func TestCatalog(t *testing.T) {
	if len(Catalog()) != 2 {
		t.Fatalf("catalog size=%d", len(Catalog()))
	}
	d, ok := Lookup(Momentum)
	if !ok || d.Interval != "15m" || d.Bars != 300 || d.MarkerKey != "last_entry_candle_ema_rsi" {
		t.Fatalf("unexpected momentum definition %+v", d)
	}
	if _, ok := Lookup("UNKNOWN"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		p, err := LoadParams(filepath.Join(dir, "absent.yaml"))
		if err != nil || p != DefaultParams() {
			t.Fatalf("got %+v, %v", p, err)
		}
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		if err := os.WriteFile(path, []byte("momentum:\n  rsi_min: 45\n  rsi_max: 75\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		p, err := LoadParams(path)
		if err != nil {
			t.Fatalf("LoadParams: %v", err)
		}
		if p.Momentum.RSIMin != 45 || p.Momentum.RSIMax != 75 || p.Momentum.SlowPeriod != 50 || p.Trend.MAPeriod != 50 {
			t.Fatalf("unexpected params %+v", p)
		}
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("momentum:\n  fast_period: 60\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadParams(path); err == nil {
			t.Fatalf("expected validation error")
		}
	})
}
