package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/outbox"
)

type fakeOutbox struct {
	mu        sync.Mutex
	claimed   bool
	completed []uuid.UUID
	failed    []uuid.UUID
	rows      []outbox.Record
}

func (f *fakeOutbox) Enqueue(ctx context.Context, aggregateID uuid.UUID, evs []events.Event) error {
	return nil
}

func (f *fakeOutbox) Dequeue(ctx context.Context, maxBatch int) ([]outbox.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed {
		return nil, nil
	}
	f.claimed = true
	return f.rows, nil
}

func (f *fakeOutbox) Complete(ctx context.Context, eventID uuid.UUID, claimID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, eventID)
	return nil
}

func (f *fakeOutbox) Fail(ctx context.Context, eventID uuid.UUID, claimID string, attemptErr error, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, eventID)
	return nil
}

type fakePublisher struct {
	fail   bool
	closed bool
}

func (p *fakePublisher) Publish(ctx context.Context, env outbox.Envelope, payload []byte) error {
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestPublishWorkerCompletesSuccessfulPublish(t *testing.T) {
	ob := &fakeOutbox{rows: []outbox.Record{{EventID: uuid.New()}}}
	pub := &fakePublisher{}
	worker := outbox.NewPublishWorker(ob, pub, outbox.WorkerConfig{PollInterval: 5 * time.Millisecond, MaxConcurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	ob.mu.Lock()
	defer ob.mu.Unlock()
	assert.Len(t, ob.completed, 1)
	assert.Empty(t, ob.failed)
	assert.True(t, pub.closed)
}

func TestPublishWorkerFailsOnPublishError(t *testing.T) {
	ob := &fakeOutbox{rows: []outbox.Record{{EventID: uuid.New()}}}
	pub := &fakePublisher{fail: true}
	worker := outbox.NewPublishWorker(ob, pub, outbox.WorkerConfig{PollInterval: 5 * time.Millisecond, MaxConcurrency: 1, MaxAttempts: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	ob.mu.Lock()
	defer ob.mu.Unlock()
	assert.Len(t, ob.failed, 1)
	assert.Empty(t, ob.completed)
}
