package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trading-bot/internal/events"
)

// Monitor forwards trade, ownership and risk events to an alert sink.
type Monitor struct {
	Bus    *events.Bus
	Sink   AlertSink
	Logger *zap.Logger
}

func (m *Monitor) Start(ctx context.Context) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if m.Bus == nil || m.Sink == nil {
		logger.Info("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(alertTopics, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				msg, alert := FormatAlert(env)
				if !alert {
					continue
				}
				if err := m.Sink.Send(stamp(env.At) + msg); err != nil {
					logger.Warn("alert delivery failed", zap.String("topic", string(env.Topic)), zap.Error(err))
				}
			}
		}
	}()
}

func stamp(t time.Time) string {
	return "[" + t.UTC().Format(time.RFC3339) + "] "
}
