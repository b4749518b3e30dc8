package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeSync tracks the offset between a venue's server clock and ours, for
// signed request timestamps.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	now           func() time.Time
	logger        *zap.Logger
	offset        int64 // milliseconds offset (server - local)
	lastSync      time.Time
	syncInterval  time.Duration
	mu            sync.RWMutex
}

// NewTimeSync creates a new time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), logger *zap.Logger) *TimeSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSync{
		getServerTime: getServerTime,
		now:           time.Now,
		logger:        logger,
		syncInterval:  30 * time.Minute,
	}
}

// Start syncs once, then every sync interval until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		ts.logger.Warn("initial time sync failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					ts.logger.Warn("time sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sync synchronizes with server time, assuming symmetric latency.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := ts.now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := ts.now().UnixMilli()
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = ts.now()
	ts.mu.Unlock()

	ts.logger.Debug("time sync", zap.Int64("offset_ms", serverTime-localTime))
	return nil
}

// Now returns current epoch milliseconds adjusted for server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.now().UnixMilli() + ts.offset
}

// Offset returns the current time offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
