// Package eventstore is the durable per-stream event log: append with
// optimistic concurrency, per-stream and global reads, snapshot sidecar,
// soft/hard delete, and truncation.
package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
)

// AppendRequest is the input to AppendToStream.
type AppendRequest struct {
	StreamID        uuid.UUID
	StreamName      string
	Events          []events.Event
	ExpectedVersion *int64 // nil means "no optimistic concurrency check"
}

// AppendResult reports the versions assigned to an append.
type AppendResult struct {
	AssignedIDs  []uuid.UUID
	NextVersion  int64
	PriorVersion int64
}

// ReadStreamRequest is the input to ReadStream.
type ReadStreamRequest struct {
	StreamID     uuid.UUID
	FromVersion  int64 // exclusive
	MaxCount     int
}

// ReadAllRequest is the input to ReadAll.
type ReadAllRequest struct {
	FromPosition int64 // exclusive
	MaxCount     int
}

// Store is the public contract of the event store.
type Store interface {
	AppendToStream(ctx context.Context, req AppendRequest) (AppendResult, error)
	ReadStream(ctx context.Context, req ReadStreamRequest) (EnvelopeCursor, error)
	ReadAll(ctx context.Context, req ReadAllRequest) (EnvelopeCursor, error)
	StreamExists(ctx context.Context, streamID uuid.UUID) (bool, error)
	StreamVersion(ctx context.Context, streamID uuid.UUID) (int64, error)

	AppendSnapshot(ctx context.Context, snapshot events.Event, ownerID uuid.UUID) error
	LatestSnapshot(ctx context.Context, ownerID uuid.UUID) (events.Envelope, error)

	DeleteStream(ctx context.Context, streamID uuid.UUID, hardDelete bool) error
	TruncateStream(ctx context.Context, streamID uuid.UUID, beforeVersion int64) error
}

// EnvelopeCursor is a lazy, finite, non-restartable sequence of
// envelopes produced by ReadStream/ReadAll.
type EnvelopeCursor interface {
	Next(ctx context.Context) bool
	Value() events.Envelope
	Err() error
	Close() error
}
