package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

const recordColumns = "id, timestamp, message, severity, source"

// DuckDB TIMESTAMP keeps microseconds; records are truncated up front so
// what Insert returns equals what Get reads back.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Insert stores a new record and returns it with its assigned ID.
func (s *Store) Insert(ctx context.Context, draft model.RecordDraft) (model.LogRecord, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	r := draft.Record(0, s.now())
	r.Timestamp = storedTime(r.Timestamp)

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO logs (timestamp, message, severity, severity_rank, source) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		r.Timestamp, r.Message, string(r.Severity), r.Severity.Rank(), r.Source,
	).Scan(&r.ID)
	if err != nil {
		return model.LogRecord{}, unavailable("insert", err)
	}
	return r, nil
}

// InsertBatch stores drafts in a single transaction. Either every draft is
// stored or none is.
func (s *Store) InsertBatch(ctx context.Context, drafts []model.RecordDraft) ([]model.LogRecord, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("insert batch", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO logs (timestamp, message, severity, severity_rank, source) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err != nil {
		return nil, unavailable("insert batch", err)
	}
	defer stmt.Close()

	now := s.now()
	out := make([]model.LogRecord, 0, len(drafts))
	for _, d := range drafts {
		r := d.Record(0, now)
		r.Timestamp = storedTime(r.Timestamp)
		if err := stmt.QueryRowContext(ctx, r.Timestamp, r.Message, string(r.Severity), r.Severity.Rank(), r.Source).Scan(&r.ID); err != nil {
			return nil, unavailable("insert batch", fmt.Errorf("record insert: %w", err))
		}
		out = append(out, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("insert batch", err)
	}
	committed = true
	return out, nil
}

// Get returns the record with the given ID or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (model.LogRecord, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id int64) (model.LogRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM logs WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LogRecord{}, model.ErrNotFound
	}
	if err != nil {
		return model.LogRecord{}, unavailable("get", err)
	}
	return r, nil
}

// Update applies patch to the record with the given ID.
func (s *Store) Update(ctx context.Context, id int64, patch model.RecordPatch) (model.LogRecord, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return model.LogRecord{}, err
	}
	r := patch.Apply(current)
	r.Timestamp = storedTime(r.Timestamp)

	_, err = s.db.ExecContext(ctx,
		`UPDATE logs SET timestamp = ?, message = ?, severity = ?, severity_rank = ?, source = ? WHERE id = ?`,
		r.Timestamp, r.Message, string(r.Severity), r.Severity.Rank(), r.Source, id,
	)
	if err != nil {
		return model.LogRecord{}, unavailable("update", err)
	}
	return r, nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM logs WHERE id = ?", id)
	if err != nil {
		return unavailable("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteBefore removes every record with a timestamp before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM logs WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, unavailable("delete before", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.LogRecord, error) {
	var r model.LogRecord
	var severity string
	if err := row.Scan(&r.ID, &r.Timestamp, &r.Message, &severity, &r.Source); err != nil {
		return model.LogRecord{}, err
	}
	r.Severity = model.Severity(severity)
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
