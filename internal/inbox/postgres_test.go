package inbox_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/eventcore/internal/inbox"
)

func TestReceiveAcceptsFirstSight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ib := inbox.NewPostgresInbox(db)
	eventID := uuid.New()

	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs(eventID, "billing", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := ib.Receive(context.Background(), eventID, "billing")
	require.NoError(t, err)
	assert.Equal(t, inbox.Accepted, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiveDuplicateAfterCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ib := inbox.NewPostgresInbox(db)
	eventID := uuid.New()

	mock.ExpectExec("INSERT INTO inbox_events").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "consumer", "status", "attempt_count", "next_attempt_on",
			"last_error", "received_on", "completed_on",
		}).AddRow(eventID, "billing", inbox.StatusCompleted, 1, nil, nil, time.Now(), time.Now()))

	got, err := ib.Receive(context.Background(), eventID, "billing")
	require.NoError(t, err)
	assert.Equal(t, inbox.Duplicate, got)
}

func TestReceiveInFlightWhileProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ib := inbox.NewPostgresInbox(db)
	eventID := uuid.New()

	mock.ExpectExec("INSERT INTO inbox_events").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "consumer", "status", "attempt_count", "next_attempt_on",
			"last_error", "received_on", "completed_on",
		}).AddRow(eventID, "billing", inbox.StatusProcessing, 1, nil, nil, time.Now(), nil))

	got, err := ib.Receive(context.Background(), eventID, "billing")
	require.NoError(t, err)
	assert.Equal(t, inbox.InFlight, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiveReclaimsOnErrorRowPastLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ib := inbox.NewPostgresInbox(db)
	eventID := uuid.New()
	past := time.Now().Add(-time.Minute)

	mock.ExpectExec("INSERT INTO inbox_events").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "consumer", "status", "attempt_count", "next_attempt_on",
			"last_error", "received_on", "completed_on",
		}).AddRow(eventID, "billing", inbox.StatusOnError, 1, past, "boom", time.Now(), nil))

	mock.ExpectExec("UPDATE inbox_events").WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := ib.Receive(context.Background(), eventID, "billing")
	require.NoError(t, err)
	assert.Equal(t, inbox.Accepted, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiveInFlightOnErrorRowBeforeLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ib := inbox.NewPostgresInbox(db)
	eventID := uuid.New()
	future := time.Now().Add(time.Minute)

	mock.ExpectExec("INSERT INTO inbox_events").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "consumer", "status", "attempt_count", "next_attempt_on",
			"last_error", "received_on", "completed_on",
		}).AddRow(eventID, "billing", inbox.StatusOnError, 1, future, "boom", time.Now(), nil))

	got, err := ib.Receive(context.Background(), eventID, "billing")
	require.NoError(t, err)
	assert.Equal(t, inbox.InFlight, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
