// Package events defines the structured error/event record the tile
// pipeline hands to an external aggregator, and the fire-and-forget sink
// interface that consumes it.
package events

import "time"

// Tags is a lightweight key/value bag attached to a reported event,
// mirroring the tagging the upstream ADM implementation attaches to every
// error report.
type Tags map[string]string

// Event is a single structured record describing a tile rejection or
// upstream failure. It is never allowed to fail or block the request path
// that produced it.
type Event struct {
	RequestID string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Tags      Tags      `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
