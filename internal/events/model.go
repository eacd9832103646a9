// Package events defines the value types shared across the event store,
// outbox, and inbox: the in-memory Event, the persisted Envelope, and the
// small family tag used to route a record through the right codec.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Family tags which persisted table/codec an event belongs to. The source
// material uses a deep inheritance hierarchy to carry this distinction;
// here it is a plain enum, matched against a registry at the codec
// boundary instead of relying on runtime type introspection.
type Family int

const (
	FamilyDomain Family = iota
	FamilySnapshot
	FamilyOutboxIntegration
	FamilyInboxIntegration
)

func (f Family) String() string {
	switch f {
	case FamilyDomain:
		return "domain"
	case FamilySnapshot:
		return "snapshot"
	case FamilyOutboxIntegration:
		return "outbox"
	case FamilyInboxIntegration:
		return "inbox"
	default:
		return "unknown"
	}
}

// Event is the in-memory representation a producer hands to the store.
// EventName is the stable string used for type resolution on read;
// Payload is the domain object the registered codec knows how to encode.
type Event struct {
	Family        Family
	EventName     string
	Payload       interface{}
	CausationID   string
	CorrelationID string
}

// Envelope is the transport record returned by reads: the decoded event
// plus the metadata assigned by the store at commit time.
type Envelope struct {
	Event         interface{}
	EventID       uuid.UUID
	EventName     string
	StreamID      uuid.UUID
	StreamName    string
	StreamVersion int64
	Sequence      int64
	OccurredOn    time.Time
	CausationID   string
	CorrelationID string
}

// RecordStatus is the lifecycle flag on a persisted domain/snapshot row.
type RecordStatus string

const (
	StatusActive  RecordStatus = "ACTIVE"
	StatusDeleted RecordStatus = "DELETED"
)

// OutboxStatus is the lifecycle flag on a persisted outbox row.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "PENDING"
	StatusProcessing OutboxStatus = "PROCESSING"
	StatusPublished  OutboxStatus = "PUBLISHED"
	StatusOnError    OutboxStatus = "ONERROR"
)
