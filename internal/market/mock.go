package market

import (
	"context"
	"fmt"
	"sync"

	"trading-bot/pkg/market"
)

// StaticSource serves fixed candles per interval. It is used for local dry
// runs and tests.
type StaticSource struct {
	mu      sync.Mutex
	candles map[string][]market.Candle
	err     error
	calls   []string
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{candles: make(map[string][]market.Candle)}
}

// SetCandles replaces the candles returned for interval.
func (s *StaticSource) SetCandles(interval string, candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[interval] = candles
}

// SetError makes every call fail with err (nil clears it).
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the requests seen so far as "coin|interval|bars".
func (s *StaticSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *StaticSource) Candles(_ context.Context, coin, interval string, bars int) ([]market.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("%s|%s|%d", coin, interval, bars))
	if s.err != nil {
		return nil, s.err
	}
	src := s.candles[interval]
	if bars > 0 && len(src) > bars {
		src = src[len(src)-bars:]
	}
	return append([]market.Candle(nil), src...), nil
}

// Series builds candles from closes at a fixed interval, each with volume 1.
func Series(closes []float64, startMs, stepMs int64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := startMs + int64(i)*stepMs
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + stepMs - 1,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}
