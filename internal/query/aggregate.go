package query

import (
	"context"
	"sort"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

// Aggregate counts the records matching spec per group. Sort and page
// fields of spec are ignored.
//
//   - severity: levels present in the data, in configured severity order
//   - source: every source, count descending, then name ascending
//   - date/hour: UTC buckets ascending; when both Start and End are set
//     every bucket they span is listed, empty ones with count 0
//
// TotalCount is the number of matching records with grouping ignored.
func (e *Engine) Aggregate(ctx context.Context, spec model.FilterSpec, groupBy model.GroupBy) (model.AggregationResult, error) {
	var v violations
	e.cfg.checkPredicate(spec, &v)

	dim, ok := groupBy.Dimension()
	if !ok {
		v.add(ErrInvalidGroupBy, "group_by", "must be one of severity, source, date, hour; got %q", string(groupBy))
	}

	var span *bucketSpan
	if ok && spec.Start != nil && spec.End != nil && !spec.Start.After(*spec.End) {
		span = newBucketSpan(dim, *spec.Start, *spec.End)
		if span != nil && span.len() > e.cfg.MaxTimeBuckets {
			v.add(ErrInvalidRange, "end_date", "range spans %d %s buckets, at most %d allowed", span.len(), dim, e.cfg.MaxTimeBuckets)
		}
	}
	if err := v.err(); err != nil {
		return model.AggregationResult{}, err
	}

	counts, err := e.store.ScanGroupedCount(ctx, spec.Predicate(), dim)
	if err != nil {
		return model.AggregationResult{}, storeError("aggregate", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	var groups []model.GroupCount
	switch dim {
	case model.DimSeverity:
		groups = e.severityGroups(counts, false)
	case model.DimSource:
		groups = sourceGroups(counts)
	default:
		groups = timeGroups(counts, span)
	}

	return model.AggregationResult{
		GroupBy:    groupBy,
		Groups:     groups,
		TotalCount: total,
	}, nil
}

// severityGroups orders counts by the configured severity order. Levels
// without records are dropped unless zeroFill is set. Keys outside the
// configured order are not listed.
func (e *Engine) severityGroups(counts map[string]int64, zeroFill bool) []model.GroupCount {
	groups := make([]model.GroupCount, 0, len(e.cfg.SeverityOrder))
	for _, s := range e.cfg.SeverityOrder {
		n := counts[string(s)]
		if n == 0 && !zeroFill {
			continue
		}
		groups = append(groups, model.GroupCount{Key: string(s), Count: n})
	}
	return groups
}

func sourceGroups(counts map[string]int64) []model.GroupCount {
	groups := make([]model.GroupCount, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, model.GroupCount{Key: k, Count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// timeGroups sorts day/hour buckets chronologically. Both key layouts
// sort lexically in time order. With a span, missing buckets are added
// with count 0.
func timeGroups(counts map[string]int64, span *bucketSpan) []model.GroupCount {
	merged := make(map[string]int64, len(counts))
	for k, n := range counts {
		merged[k] = n
	}
	if span != nil {
		for _, k := range span.keys() {
			if _, ok := merged[k]; !ok {
				merged[k] = 0
			}
		}
	}

	groups := make([]model.GroupCount, 0, len(merged))
	for k, n := range merged {
		groups = append(groups, model.GroupCount{Key: k, Count: n})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// bucketSpan is the inclusive run of UTC buckets intersecting [start, end].
type bucketSpan struct {
	first  time.Time
	last   time.Time
	step   time.Duration
	layout string
}

// newBucketSpan returns nil for dimensions that are not time buckets.
func newBucketSpan(dim model.Dimension, start, end time.Time) *bucketSpan {
	var step time.Duration
	var layout string
	switch dim {
	case model.DimDay:
		step, layout = 24*time.Hour, model.DayKeyLayout
	case model.DimHour:
		step, layout = time.Hour, model.HourKeyLayout
	default:
		return nil
	}
	return &bucketSpan{
		first:  start.UTC().Truncate(step),
		last:   end.UTC().Truncate(step),
		step:   step,
		layout: layout,
	}
}

func (s *bucketSpan) len() int {
	return int(s.last.Sub(s.first)/s.step) + 1
}

func (s *bucketSpan) keys() []string {
	keys := make([]string, 0, s.len())
	for t := s.first; !t.After(s.last); t = t.Add(s.step) {
		keys = append(keys, t.Format(s.layout))
	}
	return keys
}
