package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trading-bot/internal/events"
	"trading-bot/internal/risk"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
)

// Tick runs one iteration: fetch state, reconcile ownership, record equity,
// manage the strategy position, look for an entry and claim the daily
// allowance when due.
func (r *Runner) Tick(ctx context.Context) (err error) {
	start := r.clock.Now()
	tickID := uuid.NewString()
	r.lastTickID.Store(tickID)

	var (
		account   common.Account
		positions []common.Position
	)
	defer func() {
		equity := account.Balance + account.LockedMargin + unrealized(positions)
		r.metrics.ObserveTick(start, r.clock.Now().Sub(start), err != nil)
		r.metrics.SetAccount(equity, len(positions))
		ev := events.TickEvent{
			TickID:      tickID,
			TS:          start.Unix(),
			Positions:   len(positions),
			TotalEquity: equity,
			Paused:      r.Paused(),
		}
		if err != nil {
			ev.Err = err.Error()
		}
		r.bus.Publish(events.EventTick, ev)
	}()

	account, accountOK := r.fetchAccount(ctx)
	positions, positionsOK := r.fetchPositions(ctx)
	if positionsOK {
		if err := r.owners.Reconcile(ctx, positions); err != nil {
			return fmt.Errorf("reconcile ownership: %w", err)
		}
	}
	history := r.fetchHistory(ctx)
	if accountOK {
		r.recordEquity(ctx, start, account, positions)
	}

	// Without a position view neither exits nor entries can be judged.
	if positionsOK {
		r.manage(ctx, account, positions)
		if !r.Paused() {
			r.maybeOpenLong(ctx, account, positions)
		}
	}
	if start.Unix()%3600 < int64(r.opts.PollInterval/time.Second) {
		r.maybeDailyClaim(ctx)
	}
	r.setJSON(ctx, keyLastHistory, history)
	return nil
}

func (r *Runner) fetchAccount(ctx context.Context) (common.Account, bool) {
	defer r.observeVenue(r.clock.Now())
	acct, err := r.venue.Account(ctx)
	if err != nil {
		r.setKV(ctx, keyAccountOK, "false")
		r.journal.Error(ctx, fmt.Sprintf("Account fetch failed: %v", err), zap.String("code", common.ErrorCode(err)))
		return common.Account{}, false
	}
	if acct.Raw != nil {
		r.setJSON(ctx, keyAccount, acct.Raw)
	} else {
		r.setJSON(ctx, keyAccount, acct)
	}
	r.setKV(ctx, keyAccountOK, "true")
	if len(acct.Notices) > 0 {
		r.setJSON(ctx, keyNotices, acct.Notices)
	}
	return acct, true
}

// fetchPositions reports ok=false when the venue call failed, so callers
// can tell an empty book from missing data.
func (r *Runner) fetchPositions(ctx context.Context) ([]common.Position, bool) {
	defer r.observeVenue(r.clock.Now())
	positions, err := r.venue.Positions(ctx)
	if err != nil {
		r.journal.Error(ctx, fmt.Sprintf("Positions fetch failed: %v", err), zap.String("code", common.ErrorCode(err)))
		return nil, false
	}
	raw := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		if p.Raw != nil {
			raw = append(raw, p.Raw)
		}
	}
	if len(raw) == len(positions) {
		r.setJSON(ctx, keyPositions, map[string]any{"positions": raw})
	} else {
		r.setJSON(ctx, keyPositions, map[string]any{"positions": positions})
	}
	return positions, true
}

func (r *Runner) fetchHistory(ctx context.Context) []map[string]any {
	defer r.observeVenue(r.clock.Now())
	history, err := r.venue.History(ctx, historyLimit)
	if err != nil {
		r.journal.Error(ctx, fmt.Sprintf("History fetch failed: %v", err), zap.String("code", common.ErrorCode(err)))
		return []map[string]any{}
	}
	return history
}

func (r *Runner) recordEquity(ctx context.Context, at time.Time, acct common.Account, positions []common.Position) {
	u := unrealized(positions)
	snap := db.EquitySnapshot{
		TS:          at.Unix(),
		Balance:     acct.Balance,
		Available:   acct.AvailableBalance,
		Locked:      acct.LockedMargin,
		Unrealized:  u,
		TotalEquity: acct.Balance + acct.LockedMargin + u,
	}
	if err := r.store.RecordEquity(ctx, snap); err != nil {
		r.journal.Logger().Error("record equity", zap.Error(err))
	}
}

// maybeDailyClaim claims at most once per hour. The attempt time is stored
// before calling so a slow or failing venue is not hammered.
func (r *Runner) maybeDailyClaim(ctx context.Context) {
	if r.opts.DryRun {
		return
	}
	now := r.clock.Now().Unix()
	raw, err := r.store.Get(ctx, keyDailyClaimTry, "0")
	if err != nil {
		r.journal.Logger().Error("read daily claim marker", zap.Error(err))
		return
	}
	last, _ := strconv.ParseInt(raw, 10, 64)
	if now-last < int64(dailyClaimInterval/time.Second) {
		return
	}
	r.setKV(ctx, keyDailyClaimTry, strconv.FormatInt(now, 10))

	resp, err := r.venue.DailyClaim(ctx)
	switch {
	case err == nil:
		r.journal.Info(ctx, "Daily claim result: "+toJSON(resp))
	case common.HasCode(err, "COOLDOWN"):
	default:
		r.journal.Warn(ctx, fmt.Sprintf("Daily claim failed: %v", err))
	}
}

// Account fetches the live account view.
func (r *Runner) Account(ctx context.Context) (common.Account, error) {
	return r.venue.Account(ctx)
}

func (r *Runner) capital(acct common.Account) float64 {
	return risk.Capital(acct.Balance, acct.LockedMargin)
}

func (r *Runner) observeVenue(start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.VenueLatency.RecordDuration(r.clock.Now().Sub(start))
}

func unrealized(positions []common.Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.UnrealizedPnL
	}
	return sum
}
