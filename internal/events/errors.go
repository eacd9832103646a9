package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by optional single-row reads (e.g. latest
// snapshot) when nothing matches.
var ErrNotFound = errors.New("eventcore: not found")

// ErrInvalidArgument marks a programming error: a malformed or empty
// request that should never be retried.
var ErrInvalidArgument = errors.New("eventcore: invalid argument")

// ErrStreamDeleted is returned by append_to_stream when the target stream
// has been soft-deleted. Resolving the open question flagged in the
// source design notes, this core rejects appends to a deleted stream
// rather than silently resuming versioning.
var ErrStreamDeleted = errors.New("eventcore: stream is soft-deleted")

// Cancelled wraps context cancellation/deadline errors so callers can use
// errors.Is(err, Cancelled) uniformly regardless of the underlying cause.
var Cancelled = errors.New("eventcore: cancelled")

// AsCancelled wraps ctx.Err() (or any context-derived error) into the
// canonical Cancelled sentinel when appropriate, otherwise returns err
// unchanged.
func AsCancelled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", Cancelled, err)
	}
	return err
}

// IsCancelled reports whether err is (or wraps) a context cancellation or
// deadline error, i.e. whether it should be swallowed rather than
// surfaced as a processing failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, Cancelled)
}

// ConcurrencyConflict is returned by append_to_stream when the expected
// version does not match the stream's current version, either because a
// racing append already advanced it or because the uniqueness constraint
// on (stream_id, stream_version) rejected the insert.
type ConcurrencyConflict struct {
	StreamID uuid.UUID
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("eventcore: concurrency conflict on stream %s: expected version %d, actual %d", e.StreamID, e.Expected, e.Actual)
}

// CodecError wraps any failure in the event<->record boundary. The
// wrapper type itself is the stable contract; Cause carries the
// underlying codec failure.
type CodecError struct {
	EventName string
	Cause     error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("eventcore: codec error for event %q: %v", e.EventName, e.Cause)
}

func (e *CodecError) Unwrap() error { return e.Cause }

// RepositoryError wraps a transient failure surfaced by the underlying
// repository (connection loss, deadlock, etc).
type RepositoryError struct {
	Op    string
	Cause error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("eventcore: repository error during %s: %v", e.Op, e.Cause)
}

func (e *RepositoryError) Unwrap() error { return e.Cause }
