package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ILLUVRSE/eventcore/internal/backoff"
	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// PostgresOutbox is the Postgres-backed Outbox implementation. Dequeue
// grounds its claim step on the (stream_id, stream_version) race-fence
// idea used in the event store, here applied via SELECT ... FOR UPDATE
// SKIP LOCKED so concurrent publish workers never claim the same row
// twice.
type PostgresOutbox struct {
	db    *sql.DB
	codec codec.Codec
	repo  *repository.PostgresRepository[Record]
}

// NewPostgresOutbox wires an Outbox against db using codec to encode
// event payloads.
func NewPostgresOutbox(db *sql.DB, c codec.Codec) *PostgresOutbox {
	return &PostgresOutbox{db: db, codec: c, repo: repository.NewPostgresRepository[Record](db, tableName, mapper{})}
}

func (o *PostgresOutbox) Enqueue(ctx context.Context, aggregateID uuid.UUID, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	rows := make([]Record, 0, len(evs))
	for _, e := range evs {
		payload, err := o.codec.Encode(e.EventName, e.Payload)
		if err != nil {
			return err
		}
		rows = append(rows, Record{
			EventID:     uuid.New(),
			AggregateID: aggregateID,
			EventName:   e.EventName,
			Payload:     payload,
			Status:      events.StatusPending,
			CreatedOn:   now(),
		})
	}
	if err := o.repo.Insert(ctx, rows); err != nil {
		return &events.RepositoryError{Op: "outbox.Enqueue", Cause: err}
	}
	return nil
}

// Dequeue claims up to maxBatch eligible rows for this worker. The
// SELECT ... FOR UPDATE SKIP LOCKED and the claiming UPDATE run inside
// one transaction this call opens itself, so the row locks taken by the
// SELECT are still held when the UPDATE runs; the UPDATE additionally
// restricts to rows that are unclaimed (claim_id IS NULL) or whose
// next_attempt_on has passed, so a row another transaction claimed
// between this SELECT and this UPDATE (and so holds a fresh lease) is
// never overwritten. This is the race fence: two concurrent Dequeue calls
// can select overlapping rows (SKIP LOCKED only hides rows locked by a
// still-open transaction), but only one of them can win the UPDATE for
// any given row. Each claim sets next_attempt_on to five minutes ahead:
// a claimed row that is neither completed nor failed by then becomes
// eligible again.
func (o *PostgresOutbox) Dequeue(ctx context.Context, maxBatch int) ([]Record, error) {
	if maxBatch <= 0 {
		maxBatch = 10
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.begin", Cause: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT event_id FROM outbox_events
		WHERE status = 'PENDING'
		   OR (status = 'PROCESSING' AND next_attempt_on IS NOT NULL AND next_attempt_on <= $1)
		ORDER BY created_on ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now(), maxBatch)
	if err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.select", Cause: err}
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &events.RepositoryError{Op: "outbox.Dequeue.scan", Cause: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.rows", Cause: err}
	}
	rows.Close()

	if len(ids) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, &events.RepositoryError{Op: "outbox.Dequeue.commit", Cause: err}
		}
		committed = true
		return nil, nil
	}

	const leaseDuration = 5 * time.Minute
	claimedAt := now()
	claimID := uuid.New().String()
	res, err := tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'PROCESSING', claim_id = $1, updated_on = $2, next_attempt_on = $4
		WHERE event_id = ANY($3)
		  AND (claim_id IS NULL OR (status = 'PROCESSING' AND next_attempt_on <= $2))
	`, claimID, claimedAt, pq.Array(ids), claimedAt.Add(leaseDuration))
	if err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.claim", Cause: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if err := tx.Commit(); err != nil {
			return nil, &events.RepositoryError{Op: "outbox.Dequeue.commit", Cause: err}
		}
		committed = true
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.commit", Cause: err}
	}
	committed = true

	claimed, err := o.repo.Query(ctx, repository.Spec{
		Where: "claim_id = $1",
		Args:  []any{claimID},
	})
	if err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.fetch", Cause: err}
	}
	defer claimed.Close()

	var out []Record
	for claimed.Next(ctx) {
		out = append(out, claimed.Value())
	}
	if err := claimed.Err(); err != nil {
		return nil, &events.RepositoryError{Op: "outbox.Dequeue.fetch", Cause: err}
	}
	return out, nil
}

func (o *PostgresOutbox) Complete(ctx context.Context, eventID uuid.UUID, claimID string) error {
	affected, err := o.repo.BulkUpdate(ctx, repository.Spec{
		Where: "event_id = $1 AND claim_id = $2",
		Args:  []any{eventID, claimID},
	}, map[string]any{
		"status":     events.StatusPublished,
		"updated_on": now(),
	})
	if err != nil {
		return &events.RepositoryError{Op: "outbox.Complete", Cause: err}
	}
	if affected == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (o *PostgresOutbox) Fail(ctx context.Context, eventID uuid.UUID, claimID string, attemptErr error, maxAttempts int) error {
	row, ok, err := o.repo.QueryFirst(ctx, repository.Spec{
		Where: "event_id = $1 AND claim_id = $2",
		Args:  []any{eventID, claimID},
	})
	if err != nil {
		return &events.RepositoryError{Op: "outbox.Fail.lookup", Cause: err}
	}
	if !ok {
		return events.ErrNotFound
	}

	attempt := row.AttemptCount + 1
	set := map[string]any{
		"attempt_count": attempt,
		"updated_on":    now(),
		"last_error":    fmt.Sprintf("%v", attemptErr),
	}
	if maxAttempts > 0 && attempt >= maxAttempts {
		set["status"] = events.StatusOnError
	} else {
		set["status"] = events.StatusProcessing
		set["next_attempt_on"] = backoff.NextAttemptOn(now(), attempt)
	}

	affected, err := o.repo.BulkUpdate(ctx, repository.Spec{
		Where: "event_id = $1 AND claim_id = $2",
		Args:  []any{eventID, claimID},
	}, set)
	if err != nil {
		return &events.RepositoryError{Op: "outbox.Fail.update", Cause: err}
	}
	if affected == 0 {
		return events.ErrNotFound
	}
	return nil
}

var _ Outbox = (*PostgresOutbox)(nil)
