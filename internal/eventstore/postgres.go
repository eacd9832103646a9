package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// PostgresStore is the Postgres-backed Store implementation.
type PostgresStore struct {
	db            *sql.DB
	domainCodec   codec.Codec
	snapshotCodec codec.Codec
	domainRepo    *repository.PostgresRepository[DomainEventRecord]
	snapshotRepo  *repository.PostgresRepository[SnapshotRecord]
}

// NewPostgresStore wires a Store against db, using domainCodec to
// (de)serialize domain event payloads and snapshotCodec for snapshot
// payloads.
func NewPostgresStore(db *sql.DB, domainCodec, snapshotCodec codec.Codec) *PostgresStore {
	return &PostgresStore{
		db:            db,
		domainCodec:   domainCodec,
		snapshotCodec: snapshotCodec,
		domainRepo:    repository.NewPostgresRepository[DomainEventRecord](db, domainEventsTable, domainEventMapper{}),
		snapshotRepo:  repository.NewPostgresRepository[SnapshotRecord](db, snapshotEventsTable, snapshotMapper{}),
	}
}

// currentVersion returns the highest active stream_version for streamID,
// or -1 if the stream has no active rows.
func (s *PostgresStore) currentVersion(ctx context.Context, q repository.Querier, streamID uuid.UUID) (int64, error) {
	var version sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(stream_version) FROM domain_events
		WHERE stream_id = $1 AND status = 'ACTIVE'
	`, streamID).Scan(&version)
	if err != nil {
		return 0, &events.RepositoryError{Op: "currentVersion", Cause: err}
	}
	if !version.Valid {
		return -1, nil
	}
	return version.Int64, nil
}

// isSoftDeleted reports whether streamID has any DELETED row, meaning a
// soft delete previously ran against it. Resolves Open Question #2:
// appends to a soft-deleted stream are rejected.
func (s *PostgresStore) isSoftDeleted(ctx context.Context, q repository.Querier, streamID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM domain_events WHERE stream_id = $1 AND status = 'DELETED')
	`, streamID).Scan(&exists)
	if err != nil {
		return false, &events.RepositoryError{Op: "isSoftDeleted", Cause: err}
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// AppendToStream implements the store's central correctness obligation:
// filter to domain events, check the current version, assign versions in
// order, and insert the batch atomically, relying on the
// (stream_id, stream_version) unique constraint as the race fence.
func (s *PostgresStore) AppendToStream(ctx context.Context, req AppendRequest) (AppendResult, error) {
	domainOnly := make([]events.Event, 0, len(req.Events))
	for _, e := range req.Events {
		if e.Family == events.FamilyDomain {
			domainOnly = append(domainOnly, e)
		}
	}

	// An append that carries no domain events (e.g. integration-only
	// events) against a caller-asserted version is a no-op: it neither
	// needs nor performs a concurrency check, so it returns without
	// opening a transaction or touching the stream's rows at all. With
	// no asserted version there is nothing trivial to return, so that
	// case still falls through to the normal version lookup below.
	if len(domainOnly) == 0 && req.ExpectedVersion != nil {
		expected := *req.ExpectedVersion
		return AppendResult{NextVersion: expected + 1, PriorVersion: expected}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, &events.RepositoryError{Op: "AppendToStream.begin", Cause: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if deleted, err := s.isSoftDeleted(ctx, tx, req.StreamID); err != nil {
		return AppendResult{}, err
	} else if deleted {
		return AppendResult{}, fmt.Errorf("%w: stream %s", events.ErrStreamDeleted, req.StreamID)
	}

	current, err := s.currentVersion(ctx, tx, req.StreamID)
	if err != nil {
		return AppendResult{}, err
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != current {
		return AppendResult{}, &events.ConcurrencyConflict{StreamID: req.StreamID, Expected: *req.ExpectedVersion, Actual: current}
	}

	base := current
	if req.ExpectedVersion != nil {
		base = *req.ExpectedVersion
	}

	if len(domainOnly) == 0 {
		if err := tx.Commit(); err != nil {
			return AppendResult{}, &events.RepositoryError{Op: "AppendToStream.commit", Cause: err}
		}
		committed = true
		return AppendResult{NextVersion: base + 1, PriorVersion: base}, nil
	}

	assignedIDs := make([]uuid.UUID, 0, len(domainOnly))
	var lastVersion int64

	for i, e := range domainOnly {
		version := base + 1 + int64(i)
		payload, err := s.domainCodec.Encode(e.EventName, e.Payload)
		if err != nil {
			return AppendResult{}, err
		}

		eventID := uuid.New()
		now := time.Now().UTC()
		var sequence int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO domain_events
				(event_id, stream_id, stream_name, stream_version, event_name, payload,
				 causation_id, correlation_id, status, created_on)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'ACTIVE',$9)
			RETURNING sequence
		`, eventID, req.StreamID, req.StreamName, version, e.EventName, payload,
			nullableString(e.CausationID), nullableString(e.CorrelationID), now,
		).Scan(&sequence)
		if err != nil {
			if isUniqueViolation(err) {
				actual, verErr := s.currentVersion(ctx, tx, req.StreamID)
				if verErr != nil {
					return AppendResult{}, verErr
				}
				expected := base
				if req.ExpectedVersion != nil {
					expected = *req.ExpectedVersion
				}
				return AppendResult{}, &events.ConcurrencyConflict{StreamID: req.StreamID, Expected: expected, Actual: actual}
			}
			return AppendResult{}, &events.RepositoryError{Op: "AppendToStream.insert", Cause: err}
		}

		assignedIDs = append(assignedIDs, eventID)
		lastVersion = version
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, &events.RepositoryError{Op: "AppendToStream.commit", Cause: err}
	}
	committed = true

	return AppendResult{AssignedIDs: assignedIDs, NextVersion: lastVersion, PriorVersion: base}, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *PostgresStore) ReadStream(ctx context.Context, req ReadStreamRequest) (EnvelopeCursor, error) {
	spec := repository.Spec{
		Where:   "stream_id = $1 AND stream_version > $2 AND status = 'ACTIVE'",
		Args:    []any{req.StreamID, req.FromVersion},
		OrderBy: "stream_version ASC",
		Limit:   req.MaxCount,
	}
	cur, err := s.domainRepo.Query(ctx, spec)
	if err != nil {
		return nil, &events.RepositoryError{Op: "ReadStream", Cause: err}
	}
	return &domainEnvelopeCursor{cur: cur, codec: s.domainCodec}, nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, req ReadAllRequest) (EnvelopeCursor, error) {
	spec := repository.Spec{
		Where:   "sequence > $1 AND status = 'ACTIVE'",
		Args:    []any{req.FromPosition},
		OrderBy: "sequence ASC",
		Limit:   req.MaxCount,
	}
	cur, err := s.domainRepo.Query(ctx, spec)
	if err != nil {
		return nil, &events.RepositoryError{Op: "ReadAll", Cause: err}
	}
	return &domainEnvelopeCursor{cur: cur, codec: s.domainCodec}, nil
}

func (s *PostgresStore) StreamExists(ctx context.Context, streamID uuid.UUID) (bool, error) {
	ok, err := s.domainRepo.Exists(ctx, repository.Spec{
		Where: "stream_id = $1 AND status = 'ACTIVE'",
		Args:  []any{streamID},
	})
	if err != nil {
		return false, &events.RepositoryError{Op: "StreamExists", Cause: err}
	}
	return ok, nil
}

func (s *PostgresStore) StreamVersion(ctx context.Context, streamID uuid.UUID) (int64, error) {
	return s.currentVersion(ctx, repository.QuerierFor(ctx, s.db), streamID)
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snapshot events.Event, ownerID uuid.UUID) error {
	payload, err := s.snapshotCodec.Encode(snapshot.EventName, snapshot.Payload)
	if err != nil {
		return err
	}
	q := repository.QuerierFor(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO snapshot_events (event_id, owner_id, event_name, payload, created_on, status)
		VALUES ($1,$2,$3,$4,$5,'ACTIVE')
	`, uuid.New(), ownerID, snapshot.EventName, payload, time.Now().UTC())
	if err != nil {
		return &events.RepositoryError{Op: "AppendSnapshot", Cause: err}
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, ownerID uuid.UUID) (events.Envelope, error) {
	row, ok, err := s.snapshotRepo.QueryFirst(ctx, repository.Spec{
		Where:   "owner_id = $1 AND status = 'ACTIVE'",
		Args:    []any{ownerID},
		OrderBy: "sequence DESC",
	})
	if err != nil {
		return events.Envelope{}, &events.RepositoryError{Op: "LatestSnapshot", Cause: err}
	}
	if !ok {
		return events.Envelope{}, events.ErrNotFound
	}
	payload, err := s.snapshotCodec.Decode(row.EventName, row.Payload)
	if err != nil {
		return events.Envelope{}, err
	}
	return row.toEnvelope(payload), nil
}

func (s *PostgresStore) DeleteStream(ctx context.Context, streamID uuid.UUID, hardDelete bool) error {
	if hardDelete {
		_, err := s.domainRepo.Delete(ctx, repository.Spec{Where: "stream_id = $1", Args: []any{streamID}})
		if err != nil {
			return &events.RepositoryError{Op: "DeleteStream.hard", Cause: err}
		}
		return nil
	}
	_, err := s.domainRepo.BulkUpdate(ctx, repository.Spec{
		Where: "stream_id = $1 AND status = 'ACTIVE'",
		Args:  []any{streamID},
	}, map[string]any{
		"status":     events.StatusDeleted,
		"deleted_on": time.Now().UTC(),
	})
	if err != nil {
		return &events.RepositoryError{Op: "DeleteStream.soft", Cause: err}
	}
	return nil
}

func (s *PostgresStore) TruncateStream(ctx context.Context, streamID uuid.UUID, beforeVersion int64) error {
	_, err := s.domainRepo.Delete(ctx, repository.Spec{
		Where: "stream_id = $1 AND stream_version < $2",
		Args:  []any{streamID, beforeVersion},
	})
	if err != nil {
		return &events.RepositoryError{Op: "TruncateStream", Cause: err}
	}
	return nil
}

// domainEnvelopeCursor adapts a Cursor[DomainEventRecord] into an
// EnvelopeCursor, decoding each record's payload through the bound codec
// lazily as the caller advances.
type domainEnvelopeCursor struct {
	cur   repository.Cursor[DomainEventRecord]
	codec codec.Codec
	cur2  events.Envelope
	err   error
}

func (c *domainEnvelopeCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.cur.Next(ctx) {
		c.err = c.cur.Err()
		return false
	}
	r := c.cur.Value()
	payload, err := c.codec.Decode(r.EventName, r.Payload)
	if err != nil {
		c.err = err
		return false
	}
	c.cur2 = r.toEnvelope(payload)
	return true
}

func (c *domainEnvelopeCursor) Value() events.Envelope { return c.cur2 }
func (c *domainEnvelopeCursor) Err() error             { return c.err }
func (c *domainEnvelopeCursor) Close() error           { return c.cur.Close() }

var _ Store = (*PostgresStore)(nil)
