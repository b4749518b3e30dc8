package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-bot/internal/events"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func (c *captureSink) Send(msg string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func TestMonitorForwardsAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{got: make(chan struct{}, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	(&Monitor{Bus: bus, Sink: sink}).Start(ctx)

	bus.Publish(events.EventOwnership, events.OwnershipEvent{Owner: "manual", Change: "pruned"})
	bus.Publish(events.EventTrade, events.TradeEvent{Action: "OPEN", Status: "OK", Owner: "strategy", Coin: "ETH", Margin: 100, Leverage: 5})

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 1 || !strings.Contains(sink.msgs[0], "OPEN ETH strategy [OK]") {
		t.Fatalf("msgs = %v", sink.msgs)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveTrade("OPEN", "OK")
	m.ObserveTrade("OPEN", "OK")
	m.ObserveSignal("EMA_RSI_15M_ETH_ONLY", true)
	m.GuardRejected()
	m.ObserveTick(time.Unix(100, 0), 150*time.Millisecond, true)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "bot_trades_total" {
			found = true
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 2 {
				t.Fatalf("bot_trades_total = %v", v)
			}
		}
	}
	if !found {
		t.Fatal("bot_trades_total not registered")
	}
	snap := m.Snapshot()
	if snap.Trades != 2 || snap.Signals != 1 || snap.GuardRejections != 1 || snap.TickFailures != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.TickLatency.Count != 1 {
		t.Fatalf("tick latency = %+v", snap.TickLatency)
	}
}
