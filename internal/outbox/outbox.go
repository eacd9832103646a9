package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
)

// Outbox is the public contract of the outbound publishing lane.
type Outbox interface {
	// Enqueue writes one outbox row per event, PENDING, with
	// attempt_count 0. Callers typically run this inside the same unit
	// of work as the domain append it accompanies.
	Enqueue(ctx context.Context, aggregateID uuid.UUID, evs []events.Event) error

	// Dequeue claims up to maxBatch rows eligible for publishing
	// (PENDING, or PROCESSING with an expired lease) and marks them
	// PROCESSING under a fresh claim ID.
	Dequeue(ctx context.Context, maxBatch int) ([]Record, error)

	// Complete marks a claimed row PUBLISHED. Returns events.ErrNotFound
	// if claimID no longer owns eventID (lease expired and reclaimed).
	Complete(ctx context.Context, eventID uuid.UUID, claimID string) error

	// Fail records a publish failure: increments attempt_count, stores
	// lastErr, and either reschedules next_attempt_on (status stays
	// PROCESSING, picked up again once the backoff elapses) or marks the
	// row ON_ERROR once the retry budget is exhausted.
	Fail(ctx context.Context, eventID uuid.UUID, claimID string, attemptErr error, maxAttempts int) error
}

// Envelope is what a publisher actually sends: the decoded domain event
// plus enough addressing metadata to route and key it.
type Envelope struct {
	EventID     uuid.UUID
	AggregateID uuid.UUID
	EventName   string
	Event       interface{}
	ClaimID     string
}

// now is overridable in tests.
var now = func() time.Time { return time.Now().UTC() }
