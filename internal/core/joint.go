package core

import (
	"context"
	"sync/atomic"

	"github.com/fenwick-labs/convene/internal/types"
)

// Joint is the top-level façade (component C7): for each accepted
// transport connection it allocates a ClientID, wires the stream and
// sink into the Broadcaster, and guarantees teardown on disconnect.
type Joint[A any, S any] struct {
	broadcaster *Broadcaster[A, S]
	nextID      atomic.Uint64
}

// NewJoint builds a Joint around a template reducer, cloned into every
// room the Broadcaster creates.
func NewJoint[A any, S any](template Reducer[A, S], hooks Hooks) *Joint[A, S] {
	return &Joint[A, S]{broadcaster: NewBroadcaster(template, hooks)}
}

// Accept allocates a fresh ClientID and registers client+sink (spec
// §4.6 steps 1-2). It does not block; call Run afterward to drive the
// connection's read loop.
func (j *Joint[A, S]) Accept(label types.Label, token types.Token, sink Sink) types.ClientID {
	id := types.ClientID(j.nextID.Add(1) - 1)
	j.broadcaster.RegisterClient(&types.Client{ID: id, Label: label, Token: token}, sink)
	return id
}

// Run drives the read loop for clientID until the stream terminates
// (io.EOF or any other error), then performs the mandatory teardown
// (spec §4.6 step 4) via defer so it runs on every return path,
// including ctx cancellation.
func (j *Joint[A, S]) Run(ctx context.Context, clientID types.ClientID, stream Stream) error {
	defer j.broadcaster.RemoveClient(context.Background(), clientID)

	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		j.broadcaster.Handle(ctx, clientID, msg)
	}
}

// Serve is the common case: accept, run to completion, and return the
// terminal stream error (if any). A caller that needs the ClientID
// before the read loop starts (as the ws adapter does) calls Accept and
// Run separately instead.
func (j *Joint[A, S]) Serve(ctx context.Context, label types.Label, token types.Token, stream Stream, sink Sink) error {
	clientID := j.Accept(label, token, sink)
	return j.Run(ctx, clientID, stream)
}

// ExternalDispatch applies a raw action on behalf of clientID outside
// any inbound message (spec §4.6), for host-triggered state changes.
func (j *Joint[A, S]) ExternalDispatch(ctx context.Context, clientID types.ClientID, raw string) (ActionResult[S], error) {
	return j.broadcaster.ExternalDispatch(ctx, clientID, raw)
}
