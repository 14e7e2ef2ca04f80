// Package counter is the reference reducer from the worked example in
// spec §8: a single integer counter with one action, Add.
package counter

import (
	"encoding/json"
	"fmt"

	"github.com/fenwick-labs/convene/internal/core"
	"github.com/fenwick-labs/convene/internal/types"
)

// ActionType tags the counter reducer's one action variant.
type ActionType string

// ActionAdd is the counter reducer's sole action.
const ActionAdd ActionType = "Add"

// Action is the tagged union of counter actions.
type Action interface {
	actionType() ActionType
}

// AddAction increments the counter by Amount (which may be negative).
type AddAction struct {
	Amount int64
}

func (AddAction) actionType() ActionType { return ActionAdd }

// State is the counter reducer's state, `{"counter": <n>}` on the wire.
type State struct {
	Counter int64 `json:"counter"`
}

// Reducer implements core.Reducer[Action, State].
type Reducer struct {
	state State
}

// New returns a counter reducer starting at zero.
func New() *Reducer {
	return &Reducer{}
}

// Dispatch implements core.Reducer.
func (r *Reducer) Dispatch(clientID types.ClientID, action Action) (core.ActionResult[State], error) {
	switch a := action.(type) {
	case AddAction:
		r.state.Counter += a.Amount
		return core.ActionResult[State]{
			Status: string(ActionAdd),
			State:  r.state,
			Author: clientID,
			Data:   fmt.Sprintf("%d", a.Amount),
		}, nil
	default:
		return core.ActionResult[State]{}, fmt.Errorf("unknown action")
	}
}

type wireAction struct {
	Type ActionType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DispatchRaw implements core.Reducer.
func (r *Reducer) DispatchRaw(clientID types.ClientID, raw string) (core.ActionResult[State], error) {
	var w wireAction
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return core.ActionResult[State]{}, types.ServerError("invalid action")
	}

	switch w.Type {
	case ActionAdd:
		var amount int64
		if err := json.Unmarshal(w.Data, &amount); err != nil {
			return core.ActionResult[State]{}, types.ServerError("invalid action")
		}
		return r.Dispatch(clientID, AddAction{Amount: amount})
	default:
		return core.ActionResult[State]{}, types.ServerError("invalid action")
	}
}

// Snapshot implements core.Reducer.
func (r *Reducer) Snapshot() State {
	return r.state
}

// Clone implements core.Reducer.
func (r *Reducer) Clone() core.Reducer[Action, State] {
	return New()
}
