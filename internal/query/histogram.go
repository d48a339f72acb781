package query

import (
	"context"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

// Histogram counts records per severity within [start, end], optionally
// restricted to one source. Every configured severity is present, in
// order, including those with no records. Nil bounds are open.
func (e *Engine) Histogram(ctx context.Context, start, end *time.Time, source string) (model.HistogramResult, error) {
	spec := model.FilterSpec{Start: start, End: end, Source: source}

	var v violations
	e.cfg.checkPredicate(spec, &v)
	if err := v.err(); err != nil {
		return model.HistogramResult{}, err
	}

	counts, err := e.store.ScanGroupedCount(ctx, spec.Predicate(), model.DimSeverity)
	if err != nil {
		return model.HistogramResult{}, storeError("histogram", err)
	}

	groups := e.severityGroups(counts, true)
	buckets := make([]model.SeverityCount, len(groups))
	for i, g := range groups {
		buckets[i] = model.SeverityCount{Severity: model.Severity(g.Key), Count: g.Count}
	}

	return model.HistogramResult{
		Buckets: buckets,
		Start:   start,
		End:     end,
		Source:  source,
	}, nil
}
