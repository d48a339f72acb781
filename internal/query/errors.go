package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinytelemetry/logboard/internal/model"
)

// Error kinds. A *ValidationError matches ErrValidation and the kind of
// each of its field violations.
var (
	ErrValidation        = errors.New("query: invalid filter")
	ErrInvalidRange      = errors.New("query: start_date is after end_date")
	ErrInvalidPagination = errors.New("query: invalid pagination")
	ErrInvalidSortField  = errors.New("query: invalid sort field")
	ErrInvalidSortOrder  = errors.New("query: invalid sort order")
	ErrInvalidSeverity   = errors.New("query: invalid severity")
	ErrInvalidTimestamp  = errors.New("query: invalid timestamp")
	ErrInvalidGroupBy    = errors.New("query: invalid group_by")
)

// ValidationError enumerates every violated field of a filter.
type ValidationError struct {
	Fields []model.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "query: invalid filter: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	for _, f := range e.Fields {
		if f.Kind != nil && errors.Is(f.Kind, target) {
			return true
		}
	}
	return false
}

// violations accumulates field errors while a filter is checked.
type violations []model.FieldError

func (v *violations) add(kind error, field, format string, args ...any) {
	*v = append(*v, model.FieldError{Field: field, Message: fmt.Sprintf(format, args...), Kind: kind})
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

// storeError tags a store failure with the operation it broke. Errors
// that do not already match model.ErrStoreUnavailable are wrapped so
// callers see a single kind.
func storeError(op string, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return fmt.Errorf("query: %s: %w", op, err)
	}
	return fmt.Errorf("query: %s: %w: %w", op, model.ErrStoreUnavailable, err)
}
