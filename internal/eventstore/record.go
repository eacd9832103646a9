package eventstore

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// DomainEventRecord is the persisted row backing one committed domain
// event on a stream.
type DomainEventRecord struct {
	EventID       uuid.UUID
	StreamID      uuid.UUID
	StreamName    string
	StreamVersion int64
	Sequence      int64
	EventName     string
	Payload       []byte
	CausationID   sql.NullString
	CorrelationID sql.NullString
	Status        events.RecordStatus
	CreatedOn     time.Time
	UpdatedOn     sql.NullTime
	DeletedOn     sql.NullTime
}

const domainEventsTable = "domain_events"

var domainEventColumns = []string{
	"event_id", "stream_id", "stream_name", "stream_version", "sequence",
	"event_name", "payload", "causation_id", "correlation_id", "status",
	"created_on", "updated_on", "deleted_on",
}

// domainEventMapper implements repository.Mapper[DomainEventRecord] for
// read paths (Query/QueryFirst); the insert path is handled directly by
// PostgresStore.AppendToStream because it needs RETURNING sequence.
type domainEventMapper struct{}

func (domainEventMapper) Columns() []string { return domainEventColumns }

func (domainEventMapper) Values(r DomainEventRecord) []any {
	return []any{
		r.EventID, r.StreamID, r.StreamName, r.StreamVersion, r.Sequence,
		r.EventName, r.Payload, r.CausationID, r.CorrelationID, r.Status,
		r.CreatedOn, r.UpdatedOn, r.DeletedOn,
	}
}

func (domainEventMapper) Scan(scan func(dest ...any) error) (DomainEventRecord, error) {
	var r DomainEventRecord
	err := scan(
		&r.EventID, &r.StreamID, &r.StreamName, &r.StreamVersion, &r.Sequence,
		&r.EventName, &r.Payload, &r.CausationID, &r.CorrelationID, &r.Status,
		&r.CreatedOn, &r.UpdatedOn, &r.DeletedOn,
	)
	return r, err
}

func (r DomainEventRecord) toEnvelope(payload interface{}) events.Envelope {
	env := events.Envelope{
		Event:         payload,
		EventID:       r.EventID,
		EventName:     r.EventName,
		StreamID:      r.StreamID,
		StreamName:    r.StreamName,
		StreamVersion: r.StreamVersion,
		Sequence:      r.Sequence,
		OccurredOn:    r.CreatedOn,
	}
	if r.CausationID.Valid {
		env.CausationID = r.CausationID.String
	}
	if r.CorrelationID.Valid {
		env.CorrelationID = r.CorrelationID.String
	}
	return env
}

// SnapshotRecord is the persisted row backing one materialized snapshot
// of an owner; the owner's latest is the row with the highest sequence.
type SnapshotRecord struct {
	EventID   uuid.UUID
	OwnerID   uuid.UUID
	Sequence  int64
	EventName string
	Payload   []byte
	CreatedOn time.Time
	Status    events.RecordStatus
}

const snapshotEventsTable = "snapshot_events"

var snapshotColumns = []string{
	"event_id", "owner_id", "sequence", "event_name", "payload", "created_on", "status",
}

type snapshotMapper struct{}

func (snapshotMapper) Columns() []string { return snapshotColumns }

func (snapshotMapper) Values(r SnapshotRecord) []any {
	return []any{r.EventID, r.OwnerID, r.Sequence, r.EventName, r.Payload, r.CreatedOn, r.Status}
}

func (snapshotMapper) Scan(scan func(dest ...any) error) (SnapshotRecord, error) {
	var r SnapshotRecord
	err := scan(&r.EventID, &r.OwnerID, &r.Sequence, &r.EventName, &r.Payload, &r.CreatedOn, &r.Status)
	return r, err
}

func (r SnapshotRecord) toEnvelope(payload interface{}) events.Envelope {
	return events.Envelope{
		Event:      payload,
		EventID:    r.EventID,
		EventName:  r.EventName,
		StreamID:   r.OwnerID,
		Sequence:   r.Sequence,
		OccurredOn: r.CreatedOn,
	}
}

var (
	_ repository.Mapper[DomainEventRecord] = domainEventMapper{}
	_ repository.Mapper[SnapshotRecord]    = snapshotMapper{}
)
