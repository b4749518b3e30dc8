package monitor

import (
	"fmt"

	"trading-bot/internal/events"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// alertTopics are the events worth pushing to an operator.
var alertTopics = []events.Event{events.EventTrade, events.EventOwnership, events.EventRiskAlert}

// FormatAlert renders an event as a one-line operator message. ok is false
// for events that should not alert.
func FormatAlert(env events.Envelope) (msg string, ok bool) {
	switch p := env.Payload.(type) {
	case events.TradeEvent:
		id := ""
		if p.PositionID != "" {
			id = " " + p.PositionID
		}
		return fmt.Sprintf("%s %s %s%s [%s] margin=%.2f lev=%.0fx: %s",
			p.Action, p.Coin, p.Owner, id, p.Status, p.Margin, p.Leverage, p.Note), true
	case events.OwnershipEvent:
		if p.Change == "pruned" {
			return "", false
		}
		return fmt.Sprintf("ownership %s: %s -> %s %s", p.Change, p.Owner, p.PositionID, p.Detail), true
	case events.RiskAlert:
		return fmt.Sprintf("risk %s on %s: pnl=%.4f R=%.4f", p.Kind, p.PositionID, p.PnL, p.RiskR), true
	}
	return "", false
}
