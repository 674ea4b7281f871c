// Package model defines the core memory data types.
package model

import (
	"math"
	"time"
)

// Record is one stored chat exchange. It is the persisted form and
// carries the embedding of Query.
type Record struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Embedding []float32 `json:"embedding"`
	Timestamp float64   `json:"timestamp"`
}

// Result is the caller-visible projection of a Record. The embedding
// never leaves the store.
type Result struct {
	Query     string  `json:"query"`
	Response  string  `json:"response"`
	Timestamp float64 `json:"timestamp"`
}

// Result strips the embedding.
func (r Record) Result() Result {
	return Result{Query: r.Query, Response: r.Response, Timestamp: r.Timestamp}
}

// Time returns the timestamp as a time.Time.
func (r Result) Time() time.Time {
	return FromUnixSeconds(r.Timestamp)
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}
