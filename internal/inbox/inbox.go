package inbox

import (
	"context"

	"github.com/google/uuid"
)

// Classification is the outcome of Receive.
type Classification int

const (
	// Accepted means this (eventID, consumer) pair has not been seen
	// before, or its scheduled retry time has come; the caller should
	// process it and then call Complete.
	Accepted Classification = iota
	// Duplicate means this pair already COMPLETED; the caller must skip
	// processing (exactly-once delivery).
	Duplicate
	// InFlight means this pair is currently PROCESSING under another
	// worker (or the same worker's earlier attempt), or is ONERROR and not
	// yet due for a retry; the caller should skip it for now rather than
	// double-process concurrently.
	InFlight
)

// Inbox is the public contract of the inbound consumption lane.
type Inbox interface {
	// Receive classifies (eventID, consumer): Accepted on first sight
	// (row created as PROCESSING, attempt_count 1) or when an ONERROR
	// row's next_attempt_on has passed (row moved back to PROCESSING,
	// attempt_count incremented), Duplicate if already COMPLETED,
	// InFlight if PROCESSING or if ONERROR with no retry due.
	Receive(ctx context.Context, eventID uuid.UUID, consumer string) (Classification, error)

	// Complete marks (eventID, consumer) COMPLETED, making future
	// Receive calls for the same pair return Duplicate.
	Complete(ctx context.Context, eventID uuid.UUID, consumer string) error

	// Fail records a processing failure: the row becomes ONERROR with the
	// error text, and next_attempt_on is set from the backoff schedule for
	// the current attempt_count, after which Receive accepts the pair
	// again. Once attempt_count has reached maxAttempts, next_attempt_on
	// is cleared instead, so the pair is never accepted again.
	Fail(ctx context.Context, eventID uuid.UUID, consumer string, attemptErr error, maxAttempts int) error
}
