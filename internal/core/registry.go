package core

import (
	"sync"
	"sync/atomic"

	"github.com/fenwick-labs/convene/internal/types"
)

// clientRegistry maps ClientID to Client (C4, client half).
type clientRegistry struct {
	mu      sync.RWMutex
	clients map[types.ClientID]*types.Client
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: make(map[types.ClientID]*types.Client)}
}

// sinkRegistry maps ClientID to Sink (C4, sink half).
type sinkRegistry struct {
	mu    sync.RWMutex
	sinks map[types.ClientID]Sink
}

func newSinkRegistry() *sinkRegistry {
	return &sinkRegistry{sinks: make(map[types.ClientID]Sink)}
}

// roomRegistry maps RoomID to room and allocates RoomIDs monotonically,
// starting at 0 (C3). Rooms are never removed once created (spec §9 Q1).
type roomRegistry[A any, S any] struct {
	mu     sync.RWMutex
	rooms  map[types.RoomID]*room[A, S]
	nextID atomic.Uint64
}

func newRoomRegistry[A any, S any]() *roomRegistry[A, S] {
	return &roomRegistry[A, S]{rooms: make(map[types.RoomID]*room[A, S])}
}

func (r *roomRegistry[A, S]) allocateID() types.RoomID {
	return types.RoomID(r.nextID.Add(1) - 1)
}
