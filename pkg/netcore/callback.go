package netcore

import (
	"context"

	"github.com/rs/zerolog"
)

// Callback wraps a user ack/timeout callback as a tagged variant rather
// than a bare func, per the design note on mixed sync/async callbacks
// (spec.md §9): a synchronous callback runs inline, an asynchronous one
// receives a context and is expected to block until its async work is
// done — the connection always "awaits" it the same way before moving on.
type Callback struct {
	sync  func()
	async func(context.Context)
}

// SyncCallback wraps a plain function.
func SyncCallback(fn func()) Callback {
	return Callback{sync: fn}
}

// AsyncCallback wraps a function that is handed a context and may do
// awaited async work before returning.
func AsyncCallback(fn func(context.Context)) Callback {
	return Callback{async: fn}
}

func (c Callback) isZero() bool {
	return c.sync == nil && c.async == nil
}

// invoke runs the callback, recovering from any panic so a misbehaving
// user on_ack/on_timeout callback logs and is absorbed rather than
// terminating the connection's tasks (spec.md §7).
func (c Callback) invoke(ctx context.Context, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event callback panicked, continuing")
		}
	}()
	switch {
	case c.sync != nil:
		c.sync()
	case c.async != nil:
		c.async(ctx)
	}
}

// eventCallbacks holds the {on_ack, on_timeout} pair registered for one
// dispatched event (spec.md §3 "Event callback registry").
type eventCallbacks struct {
	onAck     Callback
	onTimeout Callback
}
