// Package outbox is the at-least-once outbound publishing lane: enqueue
// inside the producer's own transaction, dequeue via lease claim, and
// complete/fail with exponential backoff.
package outbox

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// Record is the persisted row backing one queued outbound event.
type Record struct {
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	EventName     string
	Payload       []byte
	Status        events.OutboxStatus
	ClaimID       sql.NullString
	AttemptCount  int
	NextAttemptOn sql.NullTime
	LastError     sql.NullString
	CreatedOn     time.Time
	UpdatedOn     sql.NullTime
}

const tableName = "outbox_events"

var columns = []string{
	"event_id", "aggregate_id", "event_name", "payload", "status",
	"claim_id", "attempt_count", "next_attempt_on", "last_error",
	"created_on", "updated_on",
}

type mapper struct{}

func (mapper) Columns() []string { return columns }

func (mapper) Values(r Record) []any {
	return []any{
		r.EventID, r.AggregateID, r.EventName, r.Payload, r.Status,
		r.ClaimID, r.AttemptCount, r.NextAttemptOn, r.LastError,
		r.CreatedOn, r.UpdatedOn,
	}
}

func (mapper) Scan(scan func(dest ...any) error) (Record, error) {
	var r Record
	err := scan(
		&r.EventID, &r.AggregateID, &r.EventName, &r.Payload, &r.Status,
		&r.ClaimID, &r.AttemptCount, &r.NextAttemptOn, &r.LastError,
		&r.CreatedOn, &r.UpdatedOn,
	)
	return r, err
}

var _ repository.Mapper[Record] = mapper{}
