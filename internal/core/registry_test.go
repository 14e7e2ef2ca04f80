package core

import (
	"testing"

	"github.com/fenwick-labs/convene/internal/examples/counter"
	"github.com/fenwick-labs/convene/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestRoomRegistry_AllocateIDStartsAtZeroAndIsMonotonic(t *testing.T) {
	reg := newRoomRegistry[counter.Action, counter.State]()

	first := reg.allocateID()
	second := reg.allocateID()
	third := reg.allocateID()

	assert.EqualValues(t, 0, first)
	assert.EqualValues(t, 1, second)
	assert.EqualValues(t, 2, third)
}

func TestSnapshotMembers_ReturnsAllKeys(t *testing.T) {
	members := map[types.ClientID]struct{}{1: {}, 2: {}, 3: {}}
	out := snapshotMembers(members)
	assert.ElementsMatch(t, []types.ClientID{1, 2, 3}, out)
}
