package core

import (
	"sync"

	"github.com/fenwick-labs/convene/internal/types"
)

// room is one room's registry record plus its reducer lock. Members is
// guarded by the owning roomRegistry's lock, not by reducerMu — only the
// reducer field's state is guarded by reducerMu (spec §5, invariant 4).
type room[A any, S any] struct {
	id      types.RoomID
	ownerID types.ClientID
	status  types.RoomStatus
	members map[types.ClientID]struct{}

	reducerMu sync.Mutex
	reducer   Reducer[A, S]
}

func snapshotMembers(members map[types.ClientID]struct{}) []types.ClientID {
	out := make([]types.ClientID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}
