package journal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Durable log levels as stored for the dashboard.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogStore is the append-only log table.
type LogStore interface {
	Log(ctx context.Context, ts int64, level, message string) error
}

// Journal writes operator-facing messages to zap and to the durable log.
type Journal struct {
	logger *zap.Logger
	store  LogStore
	now    func() time.Time
}

// New creates a journal. store may be nil for zap-only output.
func New(logger *zap.Logger, store LogStore, now func() time.Time) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Journal{logger: logger, store: store, now: now}
}

// Logger exposes the underlying zap logger.
func (j *Journal) Logger() *zap.Logger { return j.logger }

func (j *Journal) Info(ctx context.Context, msg string, fields ...zap.Field) {
	j.logger.Info(msg, fields...)
	j.persist(ctx, LevelInfo, msg)
}

func (j *Journal) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	j.logger.Warn(msg, fields...)
	j.persist(ctx, LevelWarn, msg)
}

func (j *Journal) Error(ctx context.Context, msg string, fields ...zap.Field) {
	j.logger.Error(msg, fields...)
	j.persist(ctx, LevelError, msg)
}

func (j *Journal) persist(ctx context.Context, level, msg string) {
	if j.store == nil {
		return
	}
	if err := j.store.Log(ctx, j.now().Unix(), level, msg); err != nil {
		j.logger.Error("persist log entry", zap.String("level", level), zap.Error(err))
	}
}
