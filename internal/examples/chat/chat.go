// Package chat is a richer worked reducer supplementing the counter
// example, grounded on the chat demo in original_source/src/lib.rs and
// original_source/src/joint/ws/mod.rs. It demonstrates a reducer with
// several action variants and a rejection path the counter cannot
// exercise (deleting a message authored by another client).
package chat

import (
	"encoding/json"
	"fmt"

	"github.com/fenwick-labs/convene/internal/core"
	"github.com/fenwick-labs/convene/internal/types"
)

// ActionType tags the chat reducer's action variants.
type ActionType string

const (
	ActionIdentifyUser  ActionType = "IdentifyUser"
	ActionSendMessage   ActionType = "SendMessage"
	ActionDeleteMessage ActionType = "DeleteMessage"
	ActionPinMessage    ActionType = "PinMessage"
)

// Action is the tagged union of chat actions.
type Action interface {
	actionType() ActionType
}

// IdentifyUserAction sets the sender's display name.
type IdentifyUserAction struct{ Name string }

// SendMessageAction appends a new message authored by the sender.
type SendMessageAction struct{ Text string }

// DeleteMessageAction removes a message the sender authored.
type DeleteMessageAction struct{ ID MessageID }

// PinMessageAction marks a message as pinned.
type PinMessageAction struct{ ID MessageID }

func (IdentifyUserAction) actionType() ActionType  { return ActionIdentifyUser }
func (SendMessageAction) actionType() ActionType   { return ActionSendMessage }
func (DeleteMessageAction) actionType() ActionType { return ActionDeleteMessage }
func (PinMessageAction) actionType() ActionType    { return ActionPinMessage }

// MessageID identifies one message within a room's history.
type MessageID uint64

// TextMessage is one entry in the room's message history.
type TextMessage struct {
	ID     MessageID      `json:"id"`
	Author types.ClientID `json:"author"`
	Text   string         `json:"text"`
	Pinned bool           `json:"pinned"`
}

// State is the chat reducer's state.
type State struct {
	Messages  []TextMessage             `json:"messages"`
	UserNames map[types.ClientID]string `json:"user_names"`
}

func (s State) clone() State {
	out := State{
		Messages:  make([]TextMessage, len(s.Messages)),
		UserNames: make(map[types.ClientID]string, len(s.UserNames)),
	}
	copy(out.Messages, s.Messages)
	for k, v := range s.UserNames {
		out.UserNames[k] = v
	}
	return out
}

// Reducer implements core.Reducer[Action, State].
type Reducer struct {
	state         State
	nextMessageID MessageID
}

// New returns an empty chat reducer.
func New() *Reducer {
	return &Reducer{state: State{UserNames: make(map[types.ClientID]string)}}
}

func (r *Reducer) findMessage(id MessageID) int {
	for i, m := range r.state.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (r *Reducer) result(status ActionType, clientID types.ClientID, data string) core.ActionResult[State] {
	return core.ActionResult[State]{
		Status: string(status),
		State:  r.state.clone(),
		Author: clientID,
		Data:   data,
	}
}

// Dispatch implements core.Reducer.
func (r *Reducer) Dispatch(clientID types.ClientID, action Action) (core.ActionResult[State], error) {
	switch a := action.(type) {
	case IdentifyUserAction:
		r.state.UserNames[clientID] = a.Name
		return r.result(ActionIdentifyUser, clientID, a.Name), nil

	case SendMessageAction:
		id := r.nextMessageID
		r.nextMessageID++
		r.state.Messages = append(r.state.Messages, TextMessage{ID: id, Author: clientID, Text: a.Text})
		return r.result(ActionSendMessage, clientID, a.Text), nil

	case DeleteMessageAction:
		idx := r.findMessage(a.ID)
		if idx < 0 {
			return core.ActionResult[State]{}, fmt.Errorf("message not found")
		}
		if r.state.Messages[idx].Author != clientID {
			return core.ActionResult[State]{}, fmt.Errorf("only the author may delete a message")
		}
		r.state.Messages = append(r.state.Messages[:idx], r.state.Messages[idx+1:]...)
		return r.result(ActionDeleteMessage, clientID, fmt.Sprintf("%d", a.ID)), nil

	case PinMessageAction:
		idx := r.findMessage(a.ID)
		if idx < 0 {
			return core.ActionResult[State]{}, fmt.Errorf("message not found")
		}
		r.state.Messages[idx].Pinned = true
		return r.result(ActionPinMessage, clientID, fmt.Sprintf("%d", a.ID)), nil

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
	case ActionIdentifyUser:
		var name string
		if err := json.Unmarshal(w.Data, &name); err != nil {
			return core.ActionResult[State]{}, types.ServerError("invalid action")
		}
		return r.Dispatch(clientID, IdentifyUserAction{Name: name})

	case ActionSendMessage:
		var text string
		if err := json.Unmarshal(w.Data, &text); err != nil {
			return core.ActionResult[State]{}, types.ServerError("invalid action")
		}
		return r.Dispatch(clientID, SendMessageAction{Text: text})

	case ActionDeleteMessage:
		var id MessageID
		if err := json.Unmarshal(w.Data, &id); err != nil {
			return core.ActionResult[State]{}, types.ServerError("invalid action")
		}
		return r.Dispatch(clientID, DeleteMessageAction{ID: id})

	case ActionPinMessage:
		var id MessageID
		if err := json.Unmarshal(w.Data, &id); err != nil {
			return core.ActionResult[State]{}, types.ServerError("invalid action")
		}
		return r.Dispatch(clientID, PinMessageAction{ID: id})

	default:
		return core.ActionResult[State]{}, types.ServerError("invalid action")
	}
}

// Snapshot implements core.Reducer.
func (r *Reducer) Snapshot() State {
	return r.state.clone()
}

// Clone implements core.Reducer.
func (r *Reducer) Clone() core.Reducer[Action, State] {
	return New()
}
