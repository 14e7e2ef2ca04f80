package core

import "github.com/fenwick-labs/convene/internal/types"

// Reducer is the developer-supplied, per-room state owner (spec §4.2).
// One instance exists per room, produced by cloning a template reducer
// supplied to NewJoint.
//
// Dispatch and DispatchRaw are called only while the owning room's
// reducer lock is held (see Broadcaster); implementations do not need
// their own internal locking for State.
type Reducer[A any, S any] interface {
	// Dispatch applies action on behalf of clientID and returns the
	// resulting ActionResult, or an error if the action is rejected.
	// A rejection error should be a plain, human-readable message;
	// the core classifies it as a ClientError to the caller.
	Dispatch(clientID types.ClientID, action A) (ActionResult[S], error)

	// DispatchRaw parses raw (the wire-format action payload) into A
	// and behaves as Dispatch. A parse failure must be returned as a
	// types.ServerError-classified error so the core reports it as
	// ServerError rather than ClientError (spec §4.5.4, §9 Q3).
	DispatchRaw(clientID types.ClientID, raw string) (ActionResult[S], error)

	// Snapshot returns an owned, serializable copy of the current state.
	Snapshot() S

	// Clone produces a new Reducer instance with equivalent initial
	// state, for a freshly created room.
	Clone() Reducer[A, S]
}
