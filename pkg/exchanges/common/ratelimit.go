package common

import (
	"sync"
	"time"
)

// TradeWindow caps trade-mutating calls within a sliding window.
type TradeWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time
	stamps []time.Time
	mu     sync.Mutex
}

// NewTradeWindow creates a guard allowing limit calls per window.
// now defaults to time.Now.
func NewTradeWindow(limit int, window time.Duration, now func() time.Time) *TradeWindow {
	if now == nil {
		now = time.Now
	}
	return &TradeWindow{
		limit:  limit,
		window: window,
		now:    now,
	}
}

// Allow evicts stamps older than the window and, if under the limit, records
// the current call. Check and record happen under one lock.
func (w *TradeWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Usage returns current usage information.
func (w *TradeWindow) Usage() (used int, limit int, percentage float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(w.now())
	used = len(w.stamps)
	if w.limit > 0 {
		percentage = float64(used) / float64(w.limit) * 100
	}
	return used, w.limit, percentage
}

func (w *TradeWindow) evict(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) > w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
