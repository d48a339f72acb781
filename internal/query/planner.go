package query

import (
	"context"
	"math"

	"github.com/tinytelemetry/logboard/internal/model"
)

// List returns one page of the records matching spec, sorted by
// spec.SortBy/SortOrder with ties broken by ID ascending. A page past the
// end yields no items and the full match count.
func (e *Engine) List(ctx context.Context, spec model.FilterSpec) (model.ListResult, error) {
	var v violations
	e.cfg.checkPredicate(spec, &v)
	e.cfg.normalizeWindow(&spec, &v)
	if err := v.err(); err != nil {
		return model.ListResult{}, err
	}

	offset := windowOffset(spec.Page, spec.PageSize)
	items, total, err := e.store.Scan(ctx, spec.Predicate(), spec.Order(), offset, spec.PageSize)
	if err != nil {
		return model.ListResult{}, storeError("list", err)
	}
	if items == nil {
		items = []model.LogRecord{}
	}

	return model.ListResult{
		Items:      items,
		Total:      total,
		Page:       spec.Page,
		PageSize:   spec.PageSize,
		TotalPages: model.TotalPagesFor(total, spec.PageSize),
	}, nil
}

// windowOffset returns (page-1)*pageSize, saturating at math.MaxInt so a
// page far past the end stays past the end.
func windowOffset(page, pageSize int) int {
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// Export returns every record matching spec, newest first. Sort and
// pagination fields of spec are ignored.
func (e *Engine) Export(ctx context.Context, spec model.FilterSpec) ([]model.LogRecord, error) {
	var v violations
	e.cfg.checkPredicate(spec, &v)
	if err := v.err(); err != nil {
		return nil, err
	}

	order := model.Order{Field: model.SortByTimestamp, Desc: true}
	items, _, err := e.store.Scan(ctx, spec.Predicate(), order, 0, -1)
	if err != nil {
		return nil, storeError("export", err)
	}
	return items, nil
}
