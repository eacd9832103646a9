package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/subscription"
)

// drain pulls every envelope off cur into a slice and closes it. Batches
// are bounded by the caller's maxCount, so this never buffers more than
// one poll's worth of envelopes in memory.
func drain(ctx context.Context, cur EnvelopeCursor) ([]events.Envelope, error) {
	defer cur.Close()
	var out []events.Envelope
	for cur.Next(ctx) {
		out = append(out, cur.Value())
	}
	return out, cur.Err()
}

// SubscribeStream starts a live polling subscription over one stream,
// delivering envelopes strictly after fromVersion in version order. The
// returned Loop must be Cancelled by the caller.
func SubscribeStream(ctx context.Context, store Store, streamID uuid.UUID, fromVersion int64, handle subscription.Handler, opts subscription.Options) *subscription.Loop {
	opts.FromPosition = fromVersion
	opts.Position = func(env events.Envelope) int64 { return env.StreamVersion }
	fetch := func(ctx context.Context, position int64, maxCount int) ([]events.Envelope, error) {
		cur, err := store.ReadStream(ctx, ReadStreamRequest{StreamID: streamID, FromVersion: position, MaxCount: maxCount})
		if err != nil {
			return nil, err
		}
		return drain(ctx, cur)
	}
	return subscription.Run(ctx, fetch, handle, opts)
}

// SubscribeAll starts a live polling subscription over the global
// sequence, delivering envelopes strictly after fromPosition in sequence
// order.
func SubscribeAll(ctx context.Context, store Store, fromPosition int64, handle subscription.Handler, opts subscription.Options) *subscription.Loop {
	opts.FromPosition = fromPosition
	opts.Position = func(env events.Envelope) int64 { return env.Sequence }
	fetch := func(ctx context.Context, position int64, maxCount int) ([]events.Envelope, error) {
		cur, err := store.ReadAll(ctx, ReadAllRequest{FromPosition: position, MaxCount: maxCount})
		if err != nil {
			return nil, err
		}
		return drain(ctx, cur)
	}
	return subscription.Run(ctx, fetch, handle, opts)
}
