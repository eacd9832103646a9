package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ILLUVRSE/eventcore/internal/backoff"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/repository"
)

// PostgresInbox is the Postgres-backed Inbox implementation. Exactly-once
// semantics rest on a unique constraint over (event_id, consumer): the
// first Receive for a pair inserts a PROCESSING row; every later Receive
// for the same pair hits the constraint and is classified from the
// existing row's status instead.
type PostgresInbox struct {
	db   *sql.DB
	repo *repository.PostgresRepository[Record]
}

// NewPostgresInbox wires an Inbox against db.
func NewPostgresInbox(db *sql.DB) *PostgresInbox {
	return &PostgresInbox{db: db, repo: repository.NewPostgresRepository[Record](db, tableName, mapper{})}
}

func (i *PostgresInbox) Receive(ctx context.Context, eventID uuid.UUID, consumer string) (Classification, error) {
	q := repository.QuerierFor(ctx, i.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO inbox_events (event_id, consumer, status, attempt_count, received_on)
		VALUES ($1, $2, $3, 1, $4)
	`, eventID, consumer, StatusProcessing, now())
	if err == nil {
		return Accepted, nil
	}

	if !isUniqueViolation(err) {
		return 0, &events.RepositoryError{Op: "inbox.Receive.insert", Cause: err}
	}

	row, ok, err := i.repo.QueryFirst(ctx, repository.Spec{
		Where: "event_id = $1 AND consumer = $2",
		Args:  []any{eventID, consumer},
	})
	if err != nil {
		return 0, &events.RepositoryError{Op: "inbox.Receive.lookup", Cause: err}
	}
	if !ok {
		return 0, events.ErrNotFound
	}

	switch row.Status {
	case StatusCompleted:
		return Duplicate, nil
	case StatusOnError:
		if row.NextAttemptOn.Valid && !row.NextAttemptOn.Time.After(now()) {
			affected, err := i.repo.BulkUpdate(ctx, repository.Spec{
				Where: "event_id = $1 AND consumer = $2",
				Args:  []any{eventID, consumer},
			}, map[string]any{
				"status":        StatusProcessing,
				"attempt_count": row.AttemptCount + 1,
			})
			if err != nil {
				return 0, &events.RepositoryError{Op: "inbox.Receive.reclaim", Cause: err}
			}
			if affected == 0 {
				return InFlight, nil
			}
			return Accepted, nil
		}
		return InFlight, nil
	case StatusProcessing:
		return InFlight, nil
	default:
		return InFlight, nil
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (i *PostgresInbox) Complete(ctx context.Context, eventID uuid.UUID, consumer string) error {
	affected, err := i.repo.BulkUpdate(ctx, repository.Spec{
		Where: "event_id = $1 AND consumer = $2",
		Args:  []any{eventID, consumer},
	}, map[string]any{
		"status":       StatusCompleted,
		"completed_on": now(),
	})
	if err != nil {
		return &events.RepositoryError{Op: "inbox.Complete", Cause: err}
	}
	if affected == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (i *PostgresInbox) Fail(ctx context.Context, eventID uuid.UUID, consumer string, attemptErr error, maxAttempts int) error {
	row, ok, err := i.repo.QueryFirst(ctx, repository.Spec{
		Where: "event_id = $1 AND consumer = $2",
		Args:  []any{eventID, consumer},
	})
	if err != nil {
		return &events.RepositoryError{Op: "inbox.Fail.lookup", Cause: err}
	}
	if !ok {
		return events.ErrNotFound
	}

	set := map[string]any{
		"status":     StatusOnError,
		"last_error": fmt.Sprintf("%v", attemptErr),
	}
	if maxAttempts > 0 && row.AttemptCount >= maxAttempts {
		// No retry time: Receive reports the pair as InFlight from now on.
		set["next_attempt_on"] = nil
	} else {
		set["next_attempt_on"] = backoff.NextAttemptOn(now(), row.AttemptCount)
	}

	affected, err := i.repo.BulkUpdate(ctx, repository.Spec{
		Where: "event_id = $1 AND consumer = $2",
		Args:  []any{eventID, consumer},
	}, set)
	if err != nil {
		return &events.RepositoryError{Op: "inbox.Fail.update", Cause: err}
	}
	if affected == 0 {
		return events.ErrNotFound
	}
	return nil
}

var _ Inbox = (*PostgresInbox)(nil)
