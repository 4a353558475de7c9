// Package idempotency replays the stored response of a request repeated with the same
// Idempotency-Key header.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTL is how long a completed response is kept for replay.
const DefaultTTL = 24 * time.Hour

// Record is a stored response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store reserves keys and keeps the responses of completed requests.
type Store interface {
	// Begin reserves key. It returns started=true when the caller now owns the key, a non-nil
	// record when the key already completed, and neither while another request holds it.
	Begin(ctx context.Context, key string, ttl time.Duration) (rec *Record, started bool, err error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Abort releases a reserved key so the request can be retried.
	Abort(ctx context.Context, key string) error
}
