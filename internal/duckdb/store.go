package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/logboard/internal/duckdb/migrate"
	"github.com/tinytelemetry/logboard/internal/model"
)

// Store manages the DuckDB database connection and implements model.Store.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	readSem      chan struct{}
	now          func() time.Time
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		// Ensure parent directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	qt := model.DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		now:          time.Now,
		QueryTimeout: qt,
	}, nil
}

// SetMaxConcurrentQueries bounds the number of read queries in flight.
// n <= 0 removes the bound. Call before the store is shared.
func (s *Store) SetMaxConcurrentQueries(n int) {
	if n <= 0 {
		s.readSem = nil
		return
	}
	s.readSem = make(chan struct{}, n)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DBPath returns the database file path ("" for in-memory).
func (s *Store) DBPath() string {
	return s.dbPath
}

// queryCtx derives a context bounded by the store's query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.QueryTimeout)
}

// acquireRead waits for a read slot. The returned func releases it.
func (s *Store) acquireRead(ctx context.Context) (func(), error) {
	if s.readSem == nil {
		return func() {}, nil
	}
	select {
	case s.readSem <- struct{}{}:
		return func() { <-s.readSem }, nil
	case <-ctx.Done():
		return nil, unavailable("acquire read slot", ctx.Err())
	}
}

// unavailable tags a database failure as model.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("duckdb: %s: %w: %w", op, model.ErrStoreUnavailable, err)
}
