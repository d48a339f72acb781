package model

import "time"

// Shared defaults used by the server binary and the query engine.
const (
	DefaultPageSize     = 50
	MaxPageSize         = 1000
	DefaultQueryTimeout = 30 * time.Second
	// DefaultMaxTimeBuckets bounds how many zero-filled day or hour
	// buckets a single aggregation may enumerate.
	DefaultMaxTimeBuckets = 10000
)
