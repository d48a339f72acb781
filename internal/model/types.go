package model

import (
	"math"
	"time"
)

// LogRecord represents a single stored log entry.
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
}

// ListResult is one window of a sorted, filtered record listing.
type ListResult struct {
	Items      []LogRecord `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// TotalPagesFor returns ceil(total/pageSize).
func TotalPagesFor(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// GroupCount represents grouped counts by a single dimension value
// (a severity, a source, a day or an hour).
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AggregationResult is an ordered grouping plus the total number of
// matching records with grouping ignored.
type AggregationResult struct {
	GroupBy    GroupBy      `json:"group_by"`
	Groups     []GroupCount `json:"aggregations"`
	TotalCount int64        `json:"total_count"`
}

// Top returns at most n leading groups. The total is left untouched.
func (r AggregationResult) Top(n int) AggregationResult {
	if n < 0 || n >= len(r.Groups) {
		return r
	}
	r.Groups = r.Groups[:n]
	return r
}

// SeverityCount is one histogram bar.
type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    int64    `json:"count"`
}

// HistogramResult holds one entry per known severity plus the filters used.
type HistogramResult struct {
	Buckets []SeverityCount `json:"histogram"`
	Start   *time.Time      `json:"start_date"`
	End     *time.Time      `json:"end_date"`
	Source  string          `json:"source,omitempty"`
}

// Total sums every bucket.
func (h HistogramResult) Total() int64 {
	var n int64
	for _, b := range h.Buckets {
		n += b.Count
	}
	return n
}
