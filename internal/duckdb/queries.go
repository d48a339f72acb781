package duckdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinytelemetry/logboard/internal/model"
)

// buildWhere returns a WHERE clause and args for the non-empty predicate fields.
func buildWhere(p model.Predicate) (string, []any) {
	var conditions []string
	var args []any

	if p.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(p.Severity))
	}
	if p.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, p.Source)
	}
	if p.Start != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, p.Start.UTC())
	}
	if p.End != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, p.End.UTC())
	}
	if p.Search != "" {
		conditions = append(conditions, "contains(lower(message), lower(?))")
		args = append(args, p.Search)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// orderClause maps a sort key to SQL. Severity sorts by rank, and id
// ascending always breaks ties.
func orderClause(o model.Order) string {
	col := "timestamp"
	switch o.Field {
	case model.SortBySeverity:
		col = "severity_rank"
	case model.SortBySource:
		col = "source"
	}
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir)
}

// groupExpr returns the SQL expression producing the group key for dim.
func groupExpr(dim model.Dimension) (string, error) {
	switch dim {
	case model.DimSeverity:
		return "severity", nil
	case model.DimSource:
		return "source", nil
	case model.DimDay:
		return "strftime(timestamp, '%Y-%m-%d')", nil
	case model.DimHour:
		return "strftime(timestamp, '%Y-%m-%d %H:00:00')", nil
	}
	return "", fmt.Errorf("duckdb: unknown group dimension %q", dim)
}

// Scan returns one sorted window of matching records plus the match count.
// Count and window are read in one transaction so they agree.
func (s *Store) Scan(ctx context.Context, pred model.Predicate, order model.Order, offset, limit int) ([]model.LogRecord, int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	release, err := s.acquireRead(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(pred)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, unavailable("scan", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("count", err)
	}
	if total == 0 || (limit >= 0 && int64(offset) >= total) {
		return []model.LogRecord{}, total, nil
	}

	query := "SELECT " + recordColumns + " FROM logs" + where + orderClause(order)
	qargs := append([]any(nil), args...)
	if limit >= 0 {
		query += " LIMIT ?"
		qargs = append(qargs, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		qargs = append(qargs, offset)
	}

	rows, err := tx.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, 0, unavailable("scan", err)
	}
	defer rows.Close()

	items := make([]model.LogRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, unavailable("scan row", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("scan", err)
	}
	return items, total, nil
}

// ScanGroupedCount returns the number of matching records per group key.
func (s *Store) ScanGroupedCount(ctx context.Context, pred model.Predicate, dim model.Dimension) (map[string]int64, error) {
	expr, err := groupExpr(dim)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	release, err := s.acquireRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(pred)
	query := fmt.Sprintf(`SELECT %s AS bucket, COUNT(*) FROM logs%s GROUP BY bucket`, expr, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("grouped count", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, unavailable("grouped count row", err)
		}
		result[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("grouped count", err)
	}
	return result, nil
}
