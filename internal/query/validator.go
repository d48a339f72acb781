package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

// RawFilter carries untyped request values. Empty strings mean "not given".
type RawFilter struct {
	Severity  string
	Source    string
	StartDate string
	EndDate   string
	Search    string
	SortBy    string
	SortOrder string
	Page      string
	PageSize  string
}

// Accepted timestamp layouts; values without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Validator turns raw request values into a normalized model.FilterSpec.
// It reports every violated field at once and never touches a store.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator enforcing the limits in cfg.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg.withDefaults()}
}

// Validate parses and checks raw. page_size above the configured maximum
// is clamped; page < 1 and page_size < 1 are rejected.
func (val *Validator) Validate(raw RawFilter) (model.FilterSpec, error) {
	var v violations
	spec := val.parse(raw, &v)
	val.cfg.checkPredicate(spec, &v)
	val.cfg.normalizeWindow(&spec, &v)
	if err := v.err(); err != nil {
		return model.FilterSpec{}, err
	}
	return spec, nil
}

// ValidateAggregate checks the filter part of raw plus the grouping.
// Sort and pagination values are ignored. An empty groupBy means severity.
func (val *Validator) ValidateAggregate(raw RawFilter, groupBy string) (model.FilterSpec, model.GroupBy, error) {
	raw.SortBy, raw.SortOrder, raw.Page, raw.PageSize = "", "", "", ""

	var v violations
	spec := val.parse(raw, &v)
	val.cfg.checkPredicate(spec, &v)

	g := model.GroupBy(strings.ToLower(strings.TrimSpace(groupBy)))
	if g == "" {
		g = model.GroupBySeverity
	}
	if _, ok := g.Dimension(); !ok {
		v.add(ErrInvalidGroupBy, "group_by", "must be one of severity, source, date, hour; got %q", groupBy)
	}
	if err := v.err(); err != nil {
		return model.FilterSpec{}, "", err
	}
	return spec, g, nil
}

// ValidateHistogram parses the histogram's scalar arguments.
func (val *Validator) ValidateHistogram(startDate, endDate, source string) (start, end *time.Time, src string, err error) {
	spec, _, err := val.ValidateAggregate(RawFilter{StartDate: startDate, EndDate: endDate, Source: source}, "")
	if err != nil {
		return nil, nil, "", err
	}
	return spec.Start, spec.End, spec.Source, nil
}

func (val *Validator) parse(raw RawFilter, v *violations) model.FilterSpec {
	var spec model.FilterSpec

	if s := strings.TrimSpace(raw.Severity); s != "" {
		sev, _ := model.ParseSeverity(s)
		spec.Severity = sev
	}
	spec.Source = strings.TrimSpace(raw.Source)
	spec.Search = raw.Search

	spec.Start = parseTimestamp(raw.StartDate, "start_date", v)
	spec.End = parseTimestamp(raw.EndDate, "end_date", v)

	if s := strings.TrimSpace(raw.SortBy); s != "" {
		spec.SortBy = model.SortField(strings.ToLower(s))
	}
	if s := strings.TrimSpace(raw.SortOrder); s != "" {
		spec.SortOrder = model.SortOrder(strings.ToLower(s))
	}

	if s := strings.TrimSpace(raw.Page); s != "" {
		if n, ok := parsePositive(s); ok {
			spec.Page = n
		} else {
			v.add(ErrInvalidPagination, "page", "must be an integer >= 1; got %q", s)
		}
	}
	if s := strings.TrimSpace(raw.PageSize); s != "" {
		if n, ok := parsePositive(s); ok {
			spec.PageSize = n
		} else {
			v.add(ErrInvalidPagination, "page_size", "must be an integer between 1 and %d; got %q", val.cfg.MaxPageSize, s)
		}
	}
	return spec
}

// parsePositive parses a base-10 integer >= 1. Values too large for an int
// saturate at math.MaxInt; later clamping or paging treats them as huge.
func parsePositive(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(s, "-") {
			return math.MaxInt, true
		}
		return 0, false
	}
	return n, n >= 1
}

// ParseTimestamp parses raw with the accepted layouts. Values without a
// zone are read as UTC; the result is always in UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidTimestamp, raw)
}

func parseTimestamp(raw, field string, v *violations) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		v.add(ErrInvalidTimestamp, field, "cannot parse %q as a timestamp", strings.TrimSpace(raw))
		return nil
	}
	return &t
}
