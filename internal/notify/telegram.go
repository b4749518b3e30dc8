// Package notify delivers operator alerts and answers chat commands.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"trading-bot/internal/engine"
	"trading-bot/internal/monitor"
)

const helpText = "Commands: /status, /positions, /pause, /resume"

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram is an alert sink bound to one chat. Run additionally serves
// commands from that chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	out    sender
	chatID int64
	svc    engine.Service
	logger *zap.Logger
}

var _ monitor.AlertSink = (*Telegram)(nil)

// NewTelegram connects to the Bot API.
func NewTelegram(token string, chatID int64, svc engine.Service, logger *zap.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram connected", zap.String("bot", api.Self.UserName))
	return &Telegram{api: api, out: api, chatID: chatID, svc: svc, logger: logger}, nil
}

// Send posts message to the configured chat.
func (t *Telegram) Send(message string) error {
	_, err := t.out.Send(tgbotapi.NewMessage(t.chatID, message))
	return err
}

// Run polls for updates until ctx ends. Messages from other chats are ignored.
func (t *Telegram) Run(ctx context.Context) {
	if t.api == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil || up.Message.Chat == nil || up.Message.Chat.ID != t.chatID {
				continue
			}
			reply := t.handle(ctx, up.Message.Text)
			if err := t.Send(reply); err != nil {
				t.logger.Warn("telegram reply failed", zap.Error(err))
			}
		}
	}
}

func (t *Telegram) handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	// Group chats append the bot name: /status@my_bot.
	cmd, _, _ := strings.Cut(fields[0], "@")

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/status":
		return FormatStatus(t.svc.Status(ctx))
	case "/positions":
		c, err := t.svc.ClassifyOpenPositions(ctx)
		if err != nil {
			return "Positions unavailable: " + err.Error()
		}
		if len(c.Items) == 0 {
			return "No open positions."
		}
		lines := make([]string, 0, len(c.Items))
		for _, p := range c.Items {
			lines = append(lines, fmt.Sprintf("%s %s %s pnl=%.4f (%s)", p.ID, p.Coin, p.Side, p.UnrealizedPnL, p.Owner))
		}
		return strings.Join(lines, "\n")
	case "/pause":
		return t.svc.Pause(ctx).Message
	case "/resume":
		return t.svc.Resume(ctx).Message
	}
	return "Unknown command. " + helpText
}

// FormatStatus renders a runner status for chat.
func FormatStatus(s engine.Status) string {
	mode := "LIVE"
	if s.DryRun {
		mode = "DRY_RUN"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Bot: %s (%s)\n", s.BotStatus, mode)
	fmt.Fprintf(&b, "Strategy: %s\n", s.ActiveStrategy)
	fmt.Fprintf(&b, "Symbol: %s\n", s.TradeSymbol)
	fmt.Fprintf(&b, "Margin: %g BOKS x%g\n", s.Settings.MarginBoks, s.Settings.Leverage)
	fmt.Fprintf(&b, "SL/TP: %g / %g of capital\n", s.Settings.SLCapitalPct, s.Settings.TPCapitalPct)
	fmt.Fprintf(&b, "Guard: %d/%d", s.GuardUsed, s.GuardLimit)
	if s.Idle {
		b.WriteString("\nIdle: MTC_API_KEY missing")
	}
	return b.String()
}
