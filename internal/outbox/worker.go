package outbox

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/ILLUVRSE/eventcore/internal/archive"
	"github.com/ILLUVRSE/eventcore/internal/events"
)

// WorkerConfig configures a PublishWorker.
type WorkerConfig struct {
	// BatchSize is how many rows to claim per poll.
	BatchSize int
	// PollInterval is how long to sleep after an empty poll.
	PollInterval time.Duration
	// MaxConcurrency bounds concurrent publish attempts within one batch.
	MaxConcurrency int
	// MaxAttempts is the retry budget handed to Fail; once exhausted a
	// row moves to ON_ERROR instead of being rescheduled.
	MaxAttempts int
	// Archiver, if set, receives a best-effort copy of every successfully
	// published row for cold storage. A failed archive upload is logged
	// and does not block completion of the outbox row.
	Archiver archive.Archiver
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	return c
}

// PublishWorker is the durable DB-first publish loop: claim a batch via
// Dequeue's lease, publish each row with bounded concurrency, and mark
// Complete/Fail so the outbox table stays the source of truth for
// retries.
type PublishWorker struct {
	outbox    Outbox
	publisher Publisher
	cfg       WorkerConfig
	wg        sync.WaitGroup
}

// NewPublishWorker constructs a PublishWorker over ob and publisher.
func NewPublishWorker(ob Outbox, publisher Publisher, cfg WorkerConfig) *PublishWorker {
	return &PublishWorker{outbox: ob, publisher: publisher, cfg: cfg.withDefaults()}
}

// Run polls until ctx is cancelled, claiming and publishing batches. It
// blocks until in-flight work drains, then closes the publisher.
func (w *PublishWorker) Run(ctx context.Context) error {
	log.Printf("[outbox.worker] starting (batch=%d, concurrency=%d)", w.cfg.BatchSize, w.cfg.MaxConcurrency)
	defer log.Printf("[outbox.worker] stopped")

	sem := make(chan struct{}, w.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			if w.publisher != nil {
				_ = w.publisher.Close()
			}
			return ctx.Err()
		default:
		}

		claimed, err := w.outbox.Dequeue(ctx, w.cfg.BatchSize)
		if err != nil {
			log.Printf("[outbox.worker] dequeue: %v", err)
			time.Sleep(w.cfg.PollInterval)
			continue
		}

		if len(claimed) == 0 {
			time.Sleep(w.cfg.PollInterval)
			continue
		}

		for _, rec := range claimed {
			sem <- struct{}{}
			w.wg.Add(1)
			go func(rec Record) {
				defer func() {
					<-sem
					w.wg.Done()
				}()
				if err := w.publishOne(ctx, rec); err != nil {
					log.Printf("[outbox.worker] publish %s: %v", rec.EventID, err)
				}
			}(rec)
		}

		w.wg.Wait()
	}
}

func (w *PublishWorker) publishOne(parentCtx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	claimID := ""
	if rec.ClaimID.Valid {
		claimID = rec.ClaimID.String
	}

	env := Envelope{EventID: rec.EventID, AggregateID: rec.AggregateID, EventName: rec.EventName, ClaimID: claimID}

	if err := w.publisher.Publish(ctx, env, rec.Payload); err != nil {
		if failErr := w.outbox.Fail(parentCtx, rec.EventID, claimID, err, w.cfg.MaxAttempts); failErr != nil {
			return failErr
		}
		return err
	}

	if w.cfg.Archiver != nil {
		archiveEnv := events.Envelope{
			EventID:    rec.EventID,
			EventName:  rec.EventName,
			StreamID:   rec.AggregateID,
			OccurredOn: rec.CreatedOn,
			Event:      json.RawMessage(rec.Payload),
		}
		if err := w.cfg.Archiver.ArchiveEnvelope(ctx, archiveEnv); err != nil {
			log.Printf("[outbox.worker] archive %s: %v", rec.EventID, err)
		}
	}

	return w.outbox.Complete(parentCtx, rec.EventID, claimID)
}
