// Package memstore keeps log records in process memory. It implements the
// same contracts as the DuckDB store and backs tests and throwaway runs.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

// Store is a mutex-guarded, ID-ordered slice of records.
type Store struct {
	mu      sync.RWMutex
	records []model.LogRecord
	nextID  int64
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{nextID: 1, now: time.Now}
}

// SetClock overrides the clock used for default timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Insert appends a record with the next ID.
func (s *Store) Insert(ctx context.Context, draft model.RecordDraft) (model.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.LogRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := draft.Record(s.nextID, s.now())
	s.nextID++
	s.records = append(s.records, r)
	return r, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id int64) (model.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.LogRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index(id)
	if !ok {
		return model.LogRecord{}, model.ErrNotFound
	}
	return s.records[i], nil
}

// Update applies patch to the record with the given ID.
func (s *Store) Update(ctx context.Context, id int64, patch model.RecordPatch) (model.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.LogRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return model.LogRecord{}, model.ErrNotFound
	}
	s.records[i] = patch.Apply(s.records[i])
	return s.records[i], nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return model.ErrNotFound
	}
	s.records = slices.Delete(s.records, i, i+1)
	return nil
}

// DeleteBefore removes every record older than cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r model.LogRecord) bool {
		return r.Timestamp.Before(cutoff)
	})
	return int64(before - len(s.records)), nil
}

// Scan filters, sorts and windows a snapshot of the records.
func (s *Store) Scan(ctx context.Context, pred model.Predicate, order model.Order, offset, limit int) ([]model.LogRecord, int64, error) {
	matched, err := s.snapshot(ctx, pred)
	if err != nil {
		return nil, 0, err
	}
	slices.SortFunc(matched, order.Compare)

	total := int64(len(matched))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []model.LogRecord{}, total, nil
	}
	matched = matched[offset:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// ScanGroupedCount counts a snapshot of the matching records per key.
func (s *Store) ScanGroupedCount(ctx context.Context, pred model.Predicate, dim model.Dimension) (map[string]int64, error) {
	matched, err := s.snapshot(ctx, pred)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range matched {
		counts[dim.Key(r)]++
	}
	return counts, nil
}

func (s *Store) snapshot(ctx context.Context, pred model.Predicate) ([]model.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.LogRecord
	for _, r := range s.records {
		if pred.Match(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// index finds id by binary search; records stay ordered by ID.
func (s *Store) index(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.records, id, func(r model.LogRecord, id int64) int {
		switch {
		case r.ID < id:
			return -1
		case r.ID > id:
			return 1
		}
		return 0
	})
}
