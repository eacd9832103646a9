package outbox_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/outbox"
)

func newJSONCodec() *codec.JSONCodec {
	reg := codec.NewRegistry(events.FamilyOutboxIntegration)
	reg.Register("order.placed", func() interface{} { return &struct {
		OrderID string `json:"order_id"`
	}{} })
	return codec.NewJSONCodec(reg)
}

func TestEnqueueInsertsPendingRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ob := outbox.NewPostgresOutbox(db, newJSONCodec())
	aggregateID := uuid.New()

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(
			sqlmock.AnyArg(), aggregateID, "order.placed", sqlmock.AnyArg(),
			events.StatusPending, sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ob.Enqueue(context.Background(), aggregateID, []events.Event{
		{Family: events.FamilyOutboxIntegration, EventName: "order.placed", Payload: map[string]any{"order_id": "o-1"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueClaimsEligibleRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ob := outbox.NewPostgresOutbox(db, newJSONCodec())
	eventID := uuid.New()
	aggregateID := uuid.New()

	mock.ExpectBegin()

	mock.ExpectQuery("SELECT event_id FROM outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(eventID))

	mock.ExpectExec("UPDATE outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "aggregate_id", "event_name", "payload", "status",
			"claim_id", "attempt_count", "next_attempt_on", "last_error",
			"created_on", "updated_on",
		}).AddRow(eventID, aggregateID, "order.placed", []byte(`{"order_id":"o-1"}`), events.StatusProcessing,
			"claim-1", 0, nil, nil, now, nil))

	rows, err := ob.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, eventID, rows[0].EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteReturnsNotFoundWhenClaimStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ob := outbox.NewPostgresOutbox(db, newJSONCodec())
	eventID := uuid.New()

	mock.ExpectExec("UPDATE outbox_events").WillReturnResult(sqlmock.NewResult(0, 0))

	err = ob.Complete(context.Background(), eventID, "stale-claim")
	assert.ErrorIs(t, err, events.ErrNotFound)
}
