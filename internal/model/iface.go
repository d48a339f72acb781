package model

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrStoreUnavailable wraps every failure of the backing store
	// (connectivity, timeouts, unreadable rows).
	ErrStoreUnavailable = errors.New("store: unavailable")
)

// RecordStore provides the read primitives the query engine runs on.
type RecordStore interface {
	// Scan returns the records matching pred, sorted by order (ties by ID
	// ascending), skipping offset and returning at most limit items. A
	// negative limit means no limit. total counts every match regardless
	// of offset and limit.
	Scan(ctx context.Context, pred Predicate, order Order, offset, limit int) (items []LogRecord, total int64, err error)

	// ScanGroupedCount counts the records matching pred per group key.
	ScanGroupedCount(ctx context.Context, pred Predicate, dim Dimension) (map[string]int64, error)
}

// RecordWriter provides single-record CRUD operations.
type RecordWriter interface {
	Insert(ctx context.Context, draft RecordDraft) (LogRecord, error)
	Get(ctx context.Context, id int64) (LogRecord, error)
	Update(ctx context.Context, id int64, patch RecordPatch) (LogRecord, error)
	Delete(ctx context.Context, id int64) error
}

// Store is the full contract a storage backend implements.
type Store interface {
	RecordStore
	RecordWriter
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
