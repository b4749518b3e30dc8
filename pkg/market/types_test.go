package market

import (
	"testing"
	"time"
)

func TestTrimInProgress(t *testing.T) {
	now := time.UnixMilli(10_000)
	closed := Candle{OpenTime: 0, CloseTime: 5_000, Close: 1}
	open := Candle{OpenTime: 5_000, CloseTime: 15_000, Close: 2}

	tests := []struct {
		name    string
		candles []Candle
		want    int
	}{
		{"drops unclosed tail", []Candle{closed, open}, 1},
		{"keeps closed tail", []Candle{closed, {OpenTime: 5_000, CloseTime: 10_000}}, 2},
		{"single candle kept", []Candle{open}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimInProgress(tt.candles, now); len(got) != tt.want {
				t.Fatalf("len=%d want %d", len(got), tt.want)
			}
		})
	}
}

func TestIntervalDuration(t *testing.T) {
	if d, err := IntervalDuration("15m"); err != nil || d != 15*time.Minute {
		t.Fatalf("15m -> %v, %v", d, err)
	}
	if _, err := IntervalDuration("2h"); err == nil {
		t.Fatalf("expected error for unsupported interval")
	}
}
