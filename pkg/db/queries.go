package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

const defaultLimit = 100

// ----------------------------------------
// Key-value state
// ----------------------------------------

// Get returns the value stored under key, or def when the key is absent.
func (d *Database) Get(ctx context.Context, key, def string) (string, error) {
	var value string
	err := d.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, nil
}

// Value is Get without a default; a missing key yields ErrNotFound.
func (d *Database) Value(ctx context.Context, key string) (string, error) {
	var value string
	err := d.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, nil
}

// Set upserts key. Last write wins.
func (d *Database) Set(ctx context.Context, key, value string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// AllKV returns every key-value pair.
func (d *Database) AllKV(ctx context.Context) (map[string]string, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ----------------------------------------
// Append-only logs
// ----------------------------------------

// Log appends a runtime log line.
func (d *Database) Log(ctx context.Context, ts int64, level, message string) error {
	_, err := d.DB.ExecContext(ctx, `INSERT INTO logs (ts, level, message) VALUES (?, ?, ?)`, ts, level, message)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// RecordTrade appends a trade attempt.
func (d *Database) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (ts, action, coin, side, margin, leverage, status, notes, position_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TS, t.Action, t.Coin, t.Side, t.Margin, t.Leverage, t.Status, t.Notes, t.PositionID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// RecordSignal appends an evaluated signal.
func (d *Database) RecordSignal(ctx context.Context, s SignalRecord) error {
	flag := 0
	if s.Signal {
		flag = 1
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (ts, coin, timeframe, signal, details) VALUES (?, ?, ?, ?, ?)
	`, s.TS, s.Coin, s.Timeframe, flag, s.Details)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// RecordEquity appends an equity curve point.
func (d *Database) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO equity_curve (ts, balance, available, locked, unrealized, total_equity)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TS, e.Balance, e.Available, e.Locked, e.Unrealized, e.TotalEquity)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

// ----------------------------------------
// Dashboard reads (newest first)
// ----------------------------------------

// Logs returns the newest log lines.
func (d *Database) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT ts, level, message FROM logs ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.TS, &l.Level, &l.Message); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Trades returns the newest trade records.
func (d *Database) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT ts, action, COALESCE(coin, ''), COALESCE(side, ''), COALESCE(margin, 0),
		       COALESCE(leverage, 0), COALESCE(status, ''), COALESCE(notes, ''), position_id
		FROM trades ORDER BY id DESC LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.TS, &t.Action, &t.Coin, &t.Side, &t.Margin, &t.Leverage, &t.Status, &t.Notes, &t.PositionID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Signals returns the newest signal records.
func (d *Database) Signals(ctx context.Context, limit int) ([]SignalRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT ts, coin, timeframe, signal, details FROM signals ORDER BY id DESC LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var (
			s    SignalRecord
			flag int
		)
		if err := rows.Scan(&s.TS, &s.Coin, &s.Timeframe, &flag, &s.Details); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Signal = flag != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// EquityCurve returns the newest equity points.
func (d *Database) EquityCurve(ctx context.Context, limit int) ([]EquitySnapshot, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT ts, balance, available, locked, unrealized, total_equity
		FROM equity_curve ORDER BY id DESC LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.TS, &e.Balance, &e.Available, &e.Locked, &e.Unrealized, &e.TotalEquity); err != nil {
			return nil, fmt.Errorf("scan equity snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 5000 {
		return 5000
	}
	return limit
}
