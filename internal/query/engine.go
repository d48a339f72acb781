// Package query turns filter criteria into sorted, paginated record
// listings and grouped counts over a model.RecordStore.
//
// The engine holds no mutable state. Every operation validates its input
// before touching the store, issues exactly one store request, and
// assembles the result synchronously.
package query

import (
	"github.com/tinytelemetry/logboard/internal/model"
)

// Config holds the engine limits. It is passed explicitly at construction.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	// SeverityOrder lists the levels in display order. Severity groupings
	// follow it and the histogram zero-fills every entry of it.
	SeverityOrder []model.Severity
	// MaxTimeBuckets bounds zero-filled day/hour enumeration.
	MaxTimeBuckets int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: model.DefaultPageSize,
		MaxPageSize:     model.MaxPageSize,
		SeverityOrder:   model.SeverityOrder(),
		MaxTimeBuckets:  model.DefaultMaxTimeBuckets,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = d.MaxPageSize
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = d.DefaultPageSize
	}
	if c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	if len(c.SeverityOrder) == 0 {
		c.SeverityOrder = d.SeverityOrder
	} else {
		c.SeverityOrder = append([]model.Severity(nil), c.SeverityOrder...)
	}
	if c.MaxTimeBuckets <= 0 {
		c.MaxTimeBuckets = d.MaxTimeBuckets
	}
	return c
}

// Engine runs list, aggregate and histogram queries.
type Engine struct {
	store model.RecordStore
	cfg   Config
}

// New creates an engine over store. Zero fields of cfg take defaults.
func New(store model.RecordStore, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg.withDefaults()}
}

// Config returns the effective engine limits.
func (e *Engine) Config() Config {
	c := e.cfg
	c.SeverityOrder = append([]model.Severity(nil), e.cfg.SeverityOrder...)
	return c
}

// checkPredicate validates the filter fields shared by every operation.
func (c Config) checkPredicate(spec model.FilterSpec, v *violations) {
	if spec.Severity != "" && !c.knownSeverity(spec.Severity) {
		v.add(ErrInvalidSeverity, "severity", "unknown severity %q", string(spec.Severity))
	}
	if spec.Source != "" && !model.ValidSource(spec.Source) {
		v.add(nil, "source", "must be %d-%d characters of letters, digits, '.', '-' or '_'", model.MinSourceLen, model.MaxSourceLen)
	}
	if spec.Start != nil && spec.End != nil && spec.Start.After(*spec.End) {
		v.add(ErrInvalidRange, "start_date", "must not be after end_date")
	}
}

// normalizeWindow fills sort and pagination defaults and validates them.
func (c Config) normalizeWindow(spec *model.FilterSpec, v *violations) {
	if spec.SortBy == "" {
		spec.SortBy = model.SortByTimestamp
	} else if !spec.SortBy.Valid() {
		v.add(ErrInvalidSortField, "sort_by", "must be one of timestamp, severity, source; got %q", string(spec.SortBy))
	}
	if spec.SortOrder == "" {
		spec.SortOrder = model.SortDesc
	} else if !spec.SortOrder.Valid() {
		v.add(ErrInvalidSortOrder, "sort_order", "must be asc or desc; got %q", string(spec.SortOrder))
	}

	switch {
	case spec.Page == 0:
		spec.Page = 1
	case spec.Page < 0:
		v.add(ErrInvalidPagination, "page", "must be >= 1")
	}
	switch {
	case spec.PageSize == 0:
		spec.PageSize = c.DefaultPageSize
	case spec.PageSize < 0:
		v.add(ErrInvalidPagination, "page_size", "must be >= 1")
	case spec.PageSize > c.MaxPageSize:
		spec.PageSize = c.MaxPageSize
	}
}

func (c Config) knownSeverity(s model.Severity) bool {
	for _, known := range c.SeverityOrder {
		if known == s {
			return true
		}
	}
	return false
}
