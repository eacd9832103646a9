// Package inbox is the exactly-once inbound consumption lane: Receive
// classifies an incoming event as accepted, a duplicate, or already in
// flight, keyed by (event_id, consumer).
package inbox

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// Record is the persisted row backing one (event_id, consumer) receipt.
type Record struct {
	EventID       uuid.UUID
	Consumer      string
	Status        Status
	AttemptCount  int
	NextAttemptOn sql.NullTime
	LastError     sql.NullString
	ReceivedOn    time.Time
	CompletedOn   sql.NullTime
}

// Status is the lifecycle flag on an inbox row.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusOnError    Status = "ONERROR"
)

const tableName = "inbox_events"

var columns = []string{
	"event_id", "consumer", "status", "attempt_count", "next_attempt_on",
	"last_error", "received_on", "completed_on",
}

type mapper struct{}

func (mapper) Columns() []string { return columns }

func (mapper) Values(r Record) []any {
	return []any{
		r.EventID, r.Consumer, r.Status, r.AttemptCount, r.NextAttemptOn,
		r.LastError, r.ReceivedOn, r.CompletedOn,
	}
}

func (mapper) Scan(scan func(dest ...any) error) (Record, error) {
	var r Record
	err := scan(
		&r.EventID, &r.Consumer, &r.Status, &r.AttemptCount, &r.NextAttemptOn,
		&r.LastError, &r.ReceivedOn, &r.CompletedOn,
	)
	return r, err
}

var _ repository.Mapper[Record] = mapper{}

// now is overridable in tests.
var now = func() time.Time { return time.Now().UTC() }
