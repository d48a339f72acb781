// Package migrate creates and upgrades the logboard tables from versioned
// SQL files named NNN_description.sql.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Runner applies the logboard schema to a DuckDB database.
type Runner struct {
	db     *sql.DB
	source fs.FS
}

// NewRunner returns a runner over the schema files compiled into the binary.
func NewRunner(db *sql.DB) *Runner {
	sub, _ := fs.Sub(embedded, "migrations")
	return &Runner{db: db, source: sub}
}

type step struct {
	version int
	file    string
	body    string
}

// steps reads every *.sql file in the source root, ordered by version.
// Two files claiming the same version are an error.
func (r *Runner) steps() ([]step, error) {
	files, err := fs.Glob(r.source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing schema files: %w", err)
	}

	seen := make(map[int]string, len(files))
	out := make([]step, 0, len(files))
	for _, file := range files {
		num, _, ok := strings.Cut(path.Base(file), "_")
		if !ok {
			return nil, fmt.Errorf("schema file %s: name must be NNN_description.sql", file)
		}
		version, err := strconv.Atoi(num)
		if err != nil || version < 1 {
			return nil, fmt.Errorf("schema file %s: bad version %q", file, num)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("schema files %s and %s share version %d", prev, file, version)
		}
		seen[version] = file

		body, err := fs.ReadFile(r.source, file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		out = append(out, step{version: version, file: file, body: string(body)})
	}

	slices.SortFunc(out, func(a, b step) int { return a.version - b.version })
	return out, nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// pending returns the steps above the highest recorded version and that version.
func (r *Runner) pending(ctx context.Context) ([]step, int, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, 0, err
	}

	var applied sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&applied); err != nil {
		return nil, 0, fmt.Errorf("reading schema version: %w", err)
	}
	current := int(applied.Int64)

	all, err := r.steps()
	if err != nil {
		return nil, 0, err
	}
	idx := slices.IndexFunc(all, func(s step) bool { return s.version > current })
	if idx < 0 {
		return nil, current, nil
	}
	return all[idx:], current, nil
}

// Run brings the schema up to date. Each file runs in its own transaction
// together with its schema_migrations row, so a failed file leaves the
// version at the last good one.
func (r *Runner) Run(ctx context.Context) error {
	todo, _, err := r.pending(ctx)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if err := r.apply(ctx, s); err != nil {
			return err
		}
		log.Printf("migrate: schema at version %d (%s)", s.version, s.file)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, s step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", s.file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.body); err != nil {
		return fmt.Errorf("executing %s: %w", s.file, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.file); err != nil {
		return fmt.Errorf("recording %s: %w", s.file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", s.file, err)
	}
	return nil
}

// Status reports the applied schema version and the files still to run.
func (r *Runner) Status(ctx context.Context) (version int, pending []string, err error) {
	todo, current, err := r.pending(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, s := range todo {
		pending = append(pending, s.file)
	}
	return current, pending, nil
}
