// Package subscription implements live polling subscriptions over a
// cursor source: SubscribeStream and SubscribeAll are both thin wrappers
// around the same poll loop, parameterized by how the next batch is
// fetched.
package subscription

import (
	"context"
	"time"

	"github.com/ILLUVRSE/eventcore/internal/events"
)

// DefaultBatchSize is the number of envelopes requested per poll when the
// caller does not specify one.
const DefaultBatchSize = 100

// DefaultPollInterval is how often the loop checks for new envelopes when
// a batch comes back empty.
const DefaultPollInterval = 500 * time.Millisecond

// Fetcher pulls the next batch of envelopes strictly after position,
// returning fewer than maxCount when the source is exhausted for now.
type Fetcher func(ctx context.Context, position int64, maxCount int) ([]events.Envelope, error)

// Handler processes one delivered envelope. Returning an error stops the
// subscription (the caller observes it as the return value of Loop.Wait).
type Handler func(ctx context.Context, env events.Envelope) error

// Options configures a Loop.
type Options struct {
	BatchSize    int
	PollInterval time.Duration
	FromPosition int64

	// Position extracts the cursor value to advance past from a delivered
	// envelope. SubscribeAll and SubscribeStream each supply the field
	// that is meaningful for their mode (global sequence vs. per-stream
	// version); a nil Position defaults to the global sequence.
	Position func(events.Envelope) int64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Position == nil {
		o.Position = func(env events.Envelope) int64 { return env.Sequence }
	}
	return o
}

// Loop is a cancellable live subscription: it polls fetch for new
// envelopes strictly after the last delivered position, in order, and
// invokes handle for each. Position only ever advances (non-decreasing
// delivery); cancellation is swallowed rather than surfaced as a
// processing error.
type Loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Run starts a Loop against parent; it stops when the returned Loop is
// Cancelled, when parent is done, or when handle returns a non-nil error.
func Run(parent context.Context, fetch Fetcher, handle Handler, opts Options) *Loop {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	l := &Loop{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		position := opts.FromPosition
		ticker := time.NewTicker(opts.PollInterval)
		defer ticker.Stop()

		for {
			batch, err := fetch(ctx, position, opts.BatchSize)
			if err != nil {
				if !events.IsCancelled(err) {
					l.err = err
				}
				return
			}

			for _, env := range batch {
				if err := handle(ctx, env); err != nil {
					if !events.IsCancelled(err) {
						l.err = err
					}
					return
				}
				if p := opts.Position(env); p > position {
					position = p
				}
			}

			if len(batch) < opts.BatchSize {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}
	}()

	return l
}

// Cancel stops the loop. It does not block until the loop has exited;
// use Wait for that.
func (l *Loop) Cancel() { l.cancel() }

// Wait blocks until the loop has fully stopped and returns any
// non-cancellation error that ended it.
func (l *Loop) Wait() error {
	<-l.done
	return l.err
}
