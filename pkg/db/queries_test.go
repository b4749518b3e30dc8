package db

import (
	"context"
	"errors"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestKVRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	t.Run("missing key returns default", func(t *testing.T) {
		v, err := d.Get(ctx, "strategy_position_id", "none")
		if err != nil || v != "none" {
			t.Fatalf("got %q, %v", v, err)
		}
		if _, err := d.Value(ctx, "strategy_position_id"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		if err := d.Set(ctx, "bot_status", "running"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := d.Set(ctx, "bot_status", "paused"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, err := d.Get(ctx, "bot_status", "")
		if err != nil || v != "paused" {
			t.Fatalf("got %q, %v", v, err)
		}
		all, err := d.AllKV(ctx)
		if err != nil {
			t.Fatalf("AllKV: %v", err)
		}
		if len(all) != 1 || all["bot_status"] != "paused" {
			t.Fatalf("unexpected kv %v", all)
		}
	})
}

func TestAppendLogsNewestFirst(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for i, msg := range []string{"first", "second", "third"} {
		if err := d.Log(ctx, int64(100+i), "INFO", msg); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	logs, err := d.Logs(ctx, 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Message != "third" || logs[1].Message != "second" {
		t.Fatalf("unexpected logs %+v", logs)
	}

	if err := d.RecordTrade(ctx, TradeRecord{TS: 1, Action: ActionOpen, Coin: "ETH", Side: "LONG", Margin: 100, Leverage: 5, Status: StatusDryRun, Notes: "{}"}); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if err := d.RecordTrade(ctx, TradeRecord{TS: 2, Action: ActionClose, Coin: "ETH", Side: "LONG", Status: StatusOK, PositionID: "p1"}); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	trades, err := d.Trades(ctx, 10)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 2 || trades[0].Action != ActionClose || trades[0].PositionID != "p1" || trades[1].Margin != 100 {
		t.Fatalf("unexpected trades %+v", trades)
	}

	if err := d.RecordSignal(ctx, SignalRecord{TS: 3, Coin: "ETH", Timeframe: "15m", Signal: true, Details: `{"reason":"long_signal"}`}); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}
	signals, err := d.Signals(ctx, 0)
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	if len(signals) != 1 || !signals[0].Signal || signals[0].Timeframe != "15m" {
		t.Fatalf("unexpected signals %+v", signals)
	}

	if err := d.RecordEquity(ctx, EquitySnapshot{TS: 4, Balance: 900, Available: 880, Locked: 100, Unrealized: 5, TotalEquity: 1005}); err != nil {
		t.Fatalf("RecordEquity: %v", err)
	}
	curve, err := d.EquityCurve(ctx, 10)
	if err != nil {
		t.Fatalf("EquityCurve: %v", err)
	}
	if len(curve) != 1 || curve[0].TotalEquity != 1005 {
		t.Fatalf("unexpected curve %+v", curve)
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	d := newTestDB(t)
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
	ok, err := columnExists(d.DB, "trades", "position_id")
	if err != nil || !ok {
		t.Fatalf("position_id column missing: %v", err)
	}
}
