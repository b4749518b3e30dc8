package db

import "context"

// Store is the write side used by the runner: a durable key-value layer plus
// append-only logs. Each call is independently atomic.
type Store interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
	Log(ctx context.Context, ts int64, level, message string) error
	RecordTrade(ctx context.Context, t TradeRecord) error
	RecordSignal(ctx context.Context, s SignalRecord) error
	RecordEquity(ctx context.Context, e EquitySnapshot) error
}

// Reader is the read side used by the dashboard API.
type Reader interface {
	Value(ctx context.Context, key string) (string, error)
	AllKV(ctx context.Context) (map[string]string, error)
	Logs(ctx context.Context, limit int) ([]LogEntry, error)
	Trades(ctx context.Context, limit int) ([]TradeRecord, error)
	Signals(ctx context.Context, limit int) ([]SignalRecord, error)
	EquityCurve(ctx context.Context, limit int) ([]EquitySnapshot, error)
}

// Backend is a full store implementation.
type Backend interface {
	Store
	Reader
	Close() error
}

var (
	_ Backend = (*Database)(nil)
	_ Backend = (*PgStore)(nil)
)

// Open returns the backend selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, sqlitePath, dsn string) (Backend, error) {
	if driver == "postgres" {
		return NewPgStore(ctx, dsn)
	}
	d, err := New(sqlitePath)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}
