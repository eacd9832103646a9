package eventstore_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/eventstore"
)

func sqlmockNow() time.Time { return time.Now().UTC() }

type orderPlaced struct {
	OrderID string `json:"order_id"`
}

func domainCodec() *codec.JSONCodec {
	reg := codec.NewRegistry(events.FamilyDomain)
	reg.Register("order.placed", func() interface{} { return &orderPlaced{} })
	return codec.NewJSONCodec(reg)
}

func snapshotCodec() *codec.JSONCodec {
	reg := codec.NewRegistry(events.FamilySnapshot)
	reg.Register("order.snapshot", func() interface{} { return &orderPlaced{} })
	return codec.NewJSONCodec(reg)
}

func TestAppendToStreamAssignsSequentialVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM domain_events WHERE stream_id = \\$1 AND status = 'DELETED'").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT MAX\\(stream_version\\) FROM domain_events").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectQuery("INSERT INTO domain_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(1)))
	mock.ExpectCommit()

	result, err := store.AppendToStream(context.Background(), eventstore.AppendRequest{
		StreamID:   streamID,
		StreamName: "orders",
		Events: []events.Event{
			{Family: events.FamilyDomain, EventName: "order.placed", Payload: &orderPlaced{OrderID: "o-1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), result.PriorVersion)
	assert.Equal(t, int64(0), result.NextVersion)
	assert.Len(t, result.AssignedIDs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendToStreamRejectsWrongExpectedVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()
	expected := int64(5)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM domain_events WHERE stream_id = \\$1 AND status = 'DELETED'").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT MAX\\(stream_version\\) FROM domain_events").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(2)))
	mock.ExpectRollback()

	_, err = store.AppendToStream(context.Background(), eventstore.AppendRequest{
		StreamID:        streamID,
		StreamName:      "orders",
		ExpectedVersion: &expected,
		Events: []events.Event{
			{Family: events.FamilyDomain, EventName: "order.placed", Payload: &orderPlaced{OrderID: "o-1"}},
		},
	})
	var conflict *events.ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(5), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)
}

func TestAppendToStreamRejectsSoftDeletedStream(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM domain_events WHERE stream_id = \\$1 AND status = 'DELETED'").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = store.AppendToStream(context.Background(), eventstore.AppendRequest{
		StreamID:   streamID,
		StreamName: "orders",
		Events: []events.Event{
			{Family: events.FamilyDomain, EventName: "order.placed", Payload: &orderPlaced{OrderID: "o-1"}},
		},
	})
	assert.ErrorIs(t, err, events.ErrStreamDeleted)
}

func TestAppendToStreamConcurrencyConflictOnUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM domain_events WHERE stream_id = \\$1 AND status = 'DELETED'").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT MAX\\(stream_version\\) FROM domain_events").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectQuery("INSERT INTO domain_events").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT MAX\\(stream_version\\) FROM domain_events").
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(0)))
	mock.ExpectRollback()

	_, err = store.AppendToStream(context.Background(), eventstore.AppendRequest{
		StreamID:   streamID,
		StreamName: "orders",
		Events: []events.Event{
			{Family: events.FamilyDomain, EventName: "order.placed", Payload: &orderPlaced{OrderID: "o-1"}},
		},
	})
	var conflict *events.ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)
}

func TestAppendToStreamEmptyDomainBatchSkipsStorage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()
	expected := int64(7)

	result, err := store.AppendToStream(context.Background(), eventstore.AppendRequest{
		StreamID:        streamID,
		StreamName:      "orders",
		ExpectedVersion: &expected,
		Events: []events.Event{
			{Family: events.FamilyOutboxIntegration, EventName: "order.placed.integration", Payload: &orderPlaced{OrderID: "o-1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.PriorVersion)
	assert.Equal(t, int64(8), result.NextVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStreamDecodesEnvelopes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventstore.NewPostgresStore(db, domainCodec(), snapshotCodec())
	streamID := uuid.New()
	eventID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM domain_events WHERE stream_id = \\$1").
		WithArgs(streamID, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "stream_id", "stream_name", "stream_version", "sequence",
			"event_name", "payload", "causation_id", "correlation_id", "status",
			"created_on", "updated_on", "deleted_on",
		}).AddRow(eventID, streamID, "orders", int64(1), int64(1), "order.placed",
			[]byte(`{"order_id":"o-1"}`), nil, nil, events.StatusActive, sqlmockNow(), nil, nil))

	cur, err := store.ReadStream(context.Background(), eventstore.ReadStreamRequest{StreamID: streamID, FromVersion: 0, MaxCount: 10})
	require.NoError(t, err)
	defer cur.Close()

	require.True(t, cur.Next(context.Background()))
	env := cur.Value()
	assert.Equal(t, "order.placed", env.EventName)
	payload, ok := env.Event.(*orderPlaced)
	require.True(t, ok)
	assert.Equal(t, "o-1", payload.OrderID)
}
