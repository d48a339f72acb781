package model

import (
	"cmp"
	"strings"
	"time"
)

// SortField names a sortable record column.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortBySeverity  SortField = "severity"
	SortBySource    SortField = "source"
)

// Valid reports whether f is a sortable field.
func (f SortField) Valid() bool {
	switch f {
	case SortByTimestamp, SortBySeverity, SortBySource:
		return true
	}
	return false
}

// SortOrder is the direction of the primary sort key.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether o is asc or desc.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// GroupBy names an aggregation dimension exposed to callers.
type GroupBy string

const (
	GroupBySeverity GroupBy = "severity"
	GroupBySource   GroupBy = "source"
	GroupByDate     GroupBy = "date"
	GroupByHour     GroupBy = "hour"
)

// Dimension maps a grouping to the store dimension that computes it.
// ok is false for unknown groupings.
func (g GroupBy) Dimension() (Dimension, bool) {
	switch g {
	case GroupBySeverity:
		return DimSeverity, true
	case GroupBySource:
		return DimSource, true
	case GroupByDate:
		return DimDay, true
	case GroupByHour:
		return DimHour, true
	}
	return "", false
}

// FilterSpec is a normalized set of query constraints. Empty strings and
// nil times mean "no constraint"; zero Page/PageSize take configured defaults.
type FilterSpec struct {
	Severity  Severity
	Source    string
	Start     *time.Time
	End       *time.Time
	Search    string
	SortBy    SortField
	SortOrder SortOrder
	Page      int
	PageSize  int
}

// Predicate returns the conjunctive filter part of the spec.
func (f FilterSpec) Predicate() Predicate {
	return Predicate{
		Severity: f.Severity,
		Source:   f.Source,
		Start:    f.Start,
		End:      f.End,
		Search:   f.Search,
	}
}

// Order returns the sort part of the spec.
func (f FilterSpec) Order() Order {
	return Order{Field: f.SortBy, Desc: f.SortOrder == SortDesc}
}

// Predicate is the filter handed to a RecordStore. Every non-empty field
// must hold for a record to match.
type Predicate struct {
	Severity Severity
	Source   string
	Start    *time.Time // inclusive
	End      *time.Time // inclusive
	Search   string     // case-insensitive substring of Message
}

// Match evaluates the predicate against one record.
func (p Predicate) Match(r LogRecord) bool {
	if p.Severity != "" && r.Severity != p.Severity {
		return false
	}
	if p.Source != "" && r.Source != p.Source {
		return false
	}
	if p.Start != nil && r.Timestamp.Before(*p.Start) {
		return false
	}
	if p.End != nil && r.Timestamp.After(*p.End) {
		return false
	}
	if p.Search != "" && !strings.Contains(strings.ToLower(r.Message), strings.ToLower(p.Search)) {
		return false
	}
	return true
}

// Order is a primary sort key. Ties are always broken by ID ascending.
type Order struct {
	Field SortField
	Desc  bool
}

// Compare orders a before b (negative), after b (positive), or reports
// equality only when the IDs are equal.
func (o Order) Compare(a, b LogRecord) int {
	var c int
	switch o.Field {
	case SortBySeverity:
		c = cmp.Compare(a.Severity.Rank(), b.Severity.Rank())
	case SortBySource:
		c = cmp.Compare(a.Source, b.Source)
	default:
		c = a.Timestamp.Compare(b.Timestamp)
	}
	if o.Desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Dimension is a grouping understood by RecordStore.ScanGroupedCount.
type Dimension string

const (
	DimSeverity Dimension = "severity"
	DimSource   Dimension = "source"
	DimDay      Dimension = "day"
	DimHour     Dimension = "hour"
)

// Group key layouts for the time dimensions (UTC).
const (
	DayKeyLayout  = "2006-01-02"
	HourKeyLayout = "2006-01-02 15:00:00"
)

// Key returns the group key of r under dimension d.
func (d Dimension) Key(r LogRecord) string {
	switch d {
	case DimSeverity:
		return string(r.Severity)
	case DimSource:
		return r.Source
	case DimDay:
		return r.Timestamp.UTC().Format(DayKeyLayout)
	case DimHour:
		return r.Timestamp.UTC().Format(HourKeyLayout)
	}
	return ""
}
