package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS logs (
    id BIGSERIAL PRIMARY KEY,
    ts BIGINT NOT NULL,
    level TEXT NOT NULL,
    message TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
    id BIGSERIAL PRIMARY KEY,
    ts BIGINT NOT NULL,
    action TEXT NOT NULL,
    coin TEXT NOT NULL DEFAULT '',
    side TEXT NOT NULL DEFAULT '',
    margin DOUBLE PRECISION NOT NULL DEFAULT 0,
    leverage DOUBLE PRECISION NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    position_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS equity_curve (
    id BIGSERIAL PRIMARY KEY,
    ts BIGINT NOT NULL,
    balance DOUBLE PRECISION NOT NULL,
    available DOUBLE PRECISION NOT NULL,
    locked DOUBLE PRECISION NOT NULL,
    unrealized DOUBLE PRECISION NOT NULL,
    total_equity DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS signals (
    id BIGSERIAL PRIMARY KEY,
    ts BIGINT NOT NULL,
    coin TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    signal BOOLEAN NOT NULL,
    details TEXT NOT NULL
);
`

// PgStore is the Postgres-backed store, selected with DB_DRIVER=postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore connects to dsn and applies the schema.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// Close releases the pool.
func (p *PgStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PgStore) Get(ctx context.Context, key, def string) (string, error) {
	v, err := p.Value(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return v, nil
}

func (p *PgStore) Value(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, nil
}

func (p *PgStore) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

func (p *PgStore) AllKV(ctx context.Context) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM kv`)
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

func (p *PgStore) Log(ctx context.Context, ts int64, level, message string) error {
	if _, err := p.pool.Exec(ctx, `INSERT INTO logs (ts, level, message) VALUES ($1, $2, $3)`, ts, level, message); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (p *PgStore) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trades (ts, action, coin, side, margin, leverage, status, notes, position_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.TS, t.Action, t.Coin, t.Side, t.Margin, t.Leverage, t.Status, t.Notes, t.PositionID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (p *PgStore) RecordSignal(ctx context.Context, s SignalRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO signals (ts, coin, timeframe, signal, details) VALUES ($1, $2, $3, $4, $5)
	`, s.TS, s.Coin, s.Timeframe, s.Signal, s.Details)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (p *PgStore) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO equity_curve (ts, balance, available, locked, unrealized, total_equity)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.TS, e.Balance, e.Available, e.Locked, e.Unrealized, e.TotalEquity)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

func (p *PgStore) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT ts, level, message FROM logs ORDER BY id DESC LIMIT $1`, clampLimit(limit))
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

func (p *PgStore) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT ts, action, coin, side, margin, leverage, status, notes, position_id
		FROM trades ORDER BY id DESC LIMIT $1
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

func (p *PgStore) Signals(ctx context.Context, limit int) ([]SignalRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT ts, coin, timeframe, signal, details FROM signals ORDER BY id DESC LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(&s.TS, &s.Coin, &s.Timeframe, &s.Signal, &s.Details); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PgStore) EquityCurve(ctx context.Context, limit int) ([]EquitySnapshot, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT ts, balance, available, locked, unrealized, total_equity
		FROM equity_curve ORDER BY id DESC LIMIT $1
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
