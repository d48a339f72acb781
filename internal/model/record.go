package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Record field limits.
const (
	MinMessageLen = 3
	MaxMessageLen = 5000
	MinSourceLen  = 2
	MaxSourceLen  = 255
)

var sourcePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrInvalidRecord is matched by every RecordError.
var ErrInvalidRecord = errors.New("record: invalid")

// FieldError describes one rejected field. Kind, when set, is the
// sentinel the violation matches through errors.Is.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    error  `json:"-"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// RecordError lists every field of a draft or patch that failed validation.
type RecordError struct {
	Fields []FieldError
}

func (e *RecordError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "record: invalid: " + strings.Join(parts, "; ")
}

func (e *RecordError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// ValidSource reports whether s satisfies the source length and charset rules.
func ValidSource(s string) bool {
	n := len(s)
	return n >= MinSourceLen && n <= MaxSourceLen && sourcePattern.MatchString(s)
}

// RecordDraft is a record about to be created; the store assigns the ID.
type RecordDraft struct {
	Timestamp *time.Time // nil = creation time
	Message   string
	Severity  Severity
	Source    string
}

// Validate checks every field against now and returns a *RecordError
// naming all violations, or nil.
func (d RecordDraft) Validate(now time.Time) error {
	var fields []FieldError
	fields = checkMessage(fields, d.Message)
	fields = checkSeverity(fields, d.Severity)
	fields = checkSource(fields, d.Source)
	if d.Timestamp != nil {
		fields = checkTimestamp(fields, *d.Timestamp, now)
	}
	if len(fields) > 0 {
		return &RecordError{Fields: fields}
	}
	return nil
}

// Record materializes the draft with the given ID. A missing timestamp
// defaults to now. Timestamps are stored in UTC.
func (d RecordDraft) Record(id int64, now time.Time) LogRecord {
	ts := now
	if d.Timestamp != nil {
		ts = *d.Timestamp
	}
	return LogRecord{
		ID:        id,
		Timestamp: ts.UTC(),
		Message:   d.Message,
		Severity:  d.Severity,
		Source:    d.Source,
	}
}

// RecordPatch is a partial update; nil fields are left unchanged.
type RecordPatch struct {
	Timestamp *time.Time
	Message   *string
	Severity  *Severity
	Source    *string
}

// Validate checks every present field.
func (p RecordPatch) Validate(now time.Time) error {
	var fields []FieldError
	if p.Message != nil {
		fields = checkMessage(fields, *p.Message)
	}
	if p.Severity != nil {
		fields = checkSeverity(fields, *p.Severity)
	}
	if p.Source != nil {
		fields = checkSource(fields, *p.Source)
	}
	if p.Timestamp != nil {
		fields = checkTimestamp(fields, *p.Timestamp, now)
	}
	if len(fields) > 0 {
		return &RecordError{Fields: fields}
	}
	return nil
}

// Apply returns r with the patch applied.
func (p RecordPatch) Apply(r LogRecord) LogRecord {
	if p.Timestamp != nil {
		r.Timestamp = p.Timestamp.UTC()
	}
	if p.Message != nil {
		r.Message = *p.Message
	}
	if p.Severity != nil {
		r.Severity = *p.Severity
	}
	if p.Source != nil {
		r.Source = *p.Source
	}
	return r
}

func checkMessage(fields []FieldError, msg string) []FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(msg)) < MinMessageLen {
		return append(fields, FieldError{Field: "message", Message: fmt.Sprintf("must be at least %d characters", MinMessageLen)})
	}
	if utf8.RuneCountInString(msg) > MaxMessageLen {
		return append(fields, FieldError{Field: "message", Message: fmt.Sprintf("must not exceed %d characters", MaxMessageLen)})
	}
	return fields
}

func checkSeverity(fields []FieldError, s Severity) []FieldError {
	if !s.Valid() {
		return append(fields, FieldError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", string(s))})
	}
	return fields
}

func checkSource(fields []FieldError, src string) []FieldError {
	switch {
	case len(src) < MinSourceLen:
		return append(fields, FieldError{Field: "source", Message: fmt.Sprintf("must be at least %d characters", MinSourceLen)})
	case len(src) > MaxSourceLen:
		return append(fields, FieldError{Field: "source", Message: fmt.Sprintf("must not exceed %d characters", MaxSourceLen)})
	case !sourcePattern.MatchString(src):
		return append(fields, FieldError{Field: "source", Message: "may only contain letters, digits, '.', '-' and '_'"})
	}
	return fields
}

func checkTimestamp(fields []FieldError, ts, now time.Time) []FieldError {
	if ts.After(now) {
		return append(fields, FieldError{Field: "timestamp", Message: "cannot be in the future"})
	}
	return fields
}
