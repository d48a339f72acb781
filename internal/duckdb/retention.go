package duckdb

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pruner deletes records older than a cutoff. Both stores implement it.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration // defaults to 1h
}

// RetentionCleaner periodically deletes logs older than the configured retention period.
type RetentionCleaner struct {
	pruner        Pruner
	retentionDays int
	interval      time.Duration
	now           func() time.Time
	done          chan struct{}
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner that deletes expired logs.
// Returns nil when retention is 0 (disabled). Nothing is deleted until Run.
func NewRetentionCleaner(pruner Pruner, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}
	interval := conf.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	return &RetentionCleaner{
		pruner:        pruner,
		retentionDays: conf.RetentionDays,
		interval:      interval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// Run cleans up once to catch up after downtime, then every interval until
// ctx is cancelled or Stop is called. Cleanup failures are logged and the
// next tick retries.
func (rc *RetentionCleaner) Run(ctx context.Context) error {
	rc.cleanup()

	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-ctx.Done():
			return nil
		case <-rc.done:
			return nil
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	// A shutdown must not abort a delete halfway, so this uses its own context.
	rows, err := rc.pruner.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup deleted %d expired logs (older than %d days)", rows, rc.retentionDays)
	}
}

// Stop ends Run. It is safe to call more than once.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
	})
}
