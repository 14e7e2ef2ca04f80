package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fenwick-labs/convene/internal/examples/chat"
	"github.com/fenwick-labs/convene/internal/examples/counter"
	"github.com/fenwick-labs/convene/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectorSink is a Sink that records every Response sent to it, for
// assertions in tests that don't need a real transport.
type collectorSink struct {
	mu        sync.Mutex
	responses []Response
}

func (c *collectorSink) Send(ctx context.Context, resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
	return nil
}

func (c *collectorSink) all() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Response, len(c.responses))
	copy(out, c.responses)
	return out
}

func (c *collectorSink) last() Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		panic("collectorSink.last called with no responses recorded")
	}
	return c.responses[len(c.responses)-1]
}

var errSendFailed = errors.New("send failed")

// failingSink always returns an error from Send, for testing OnSendError.
type failingSink struct{ err error }

func (f *failingSink) Send(ctx context.Context, resp Response) error { return f.err }

func newCounterBroadcaster(hooks Hooks) *Broadcaster[counter.Action, counter.State] {
	return NewBroadcaster[counter.Action, counter.State](counter.New(), hooks)
}

func addAction(amount int64) string {
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		Data int64  `json:"data"`
	}{Type: string(counter.ActionAdd), Data: amount})
	return string(b)
}

func TestHandleCreate_SendsStateThenBroadcastsRoomCreated(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	responses := sink.all()
	require.Len(t, responses, 2)
	assert.Equal(t, StatusStateSent, responses[0].Status)
	assert.Equal(t, StatusRoomCreated, responses[1].Status)
}

func TestHandleCreate_RejectsWhenAlreadyInRoom(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	responses := sink.all()
	require.Len(t, responses, 3)
	assert.Equal(t, StatusClientError, responses[2].Status)
}

func TestHandleJoin_SendsStateThenBroadcastsRoomJoined(t *testing.T) {
	var created types.RoomID
	b := newCounterBroadcaster(Hooks{OnRoomCreated: func(id types.RoomID) { created = id }})

	ownerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, ownerSink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	joinerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 2}, joinerSink)
	b.Handle(context.Background(), 2, ClientMessage{Type: MessageJoin, RoomID: created})

	joinerResponses := joinerSink.all()
	require.Len(t, joinerResponses, 2)
	assert.Equal(t, StatusStateSent, joinerResponses[0].Status)
	assert.Equal(t, StatusRoomJoined, joinerResponses[1].Status)

	ownerResponses := ownerSink.all()
	require.Len(t, ownerResponses, 3)
	assert.Equal(t, StatusRoomJoined, ownerResponses[2].Status)
}

func TestHandleJoin_UnknownRoomReturnsNotFound(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageJoin, RoomID: 999})

	resp := sink.all()[0]
	assert.Equal(t, StatusNotFound, resp.Status)
}

func TestHandleJoin_RejectsWhenAlreadyInRoom(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageJoin, RoomID: 0})

	responses := sink.all()
	assert.Equal(t, StatusClientError, responses[len(responses)-1].Status)
}

func TestHandleAction_AppliesAndBroadcasts(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	ownerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, ownerSink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageAction, Action: addAction(5)})

	resp := ownerSink.last()
	require.Equal(t, StatusAction, resp.Status)

	var result ActionResult[counter.State]
	require.NoError(t, json.Unmarshal(resp.Message, &result))
	assert.EqualValues(t, 5, result.State.Counter)
	assert.EqualValues(t, 1, result.Author)
}

func TestHandleAction_NotInRoomReturnsNotFound(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageAction, Action: addAction(1)})

	assert.Equal(t, StatusNotFound, sink.last().Status)
}

func TestHandleAction_MalformedActionReportsServerError(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageAction, Action: "not-json"})

	assert.Equal(t, StatusServerError, sink.last().Status)
}

func TestHandleLeave_BroadcastsRoomLeftToRemainingMembers(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	ownerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, ownerSink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	joinerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 2}, joinerSink)
	b.Handle(context.Background(), 2, ClientMessage{Type: MessageJoin, RoomID: 0})

	b.Handle(context.Background(), 2, ClientMessage{Type: MessageLeave})

	assert.Equal(t, StatusRoomLeft, ownerSink.last().Status)
}

func TestHandleLeave_NotInRoomReturnsNotFound(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageLeave})

	assert.Equal(t, StatusNotFound, sink.last().Status)
}

func TestRemoveClient_TearsDownRoomMembershipAndBroadcasts(t *testing.T) {
	var left types.ClientID
	b := newCounterBroadcaster(Hooks{OnRoomLeft: func(roomID types.RoomID, clientID types.ClientID) { left = clientID }})

	ownerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, ownerSink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	joinerSink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 2}, joinerSink)
	b.Handle(context.Background(), 2, ClientMessage{Type: MessageJoin, RoomID: 0})

	countBeforeRemoval := len(joinerSink.all())

	b.RemoveClient(context.Background(), 2)

	assert.EqualValues(t, 2, left)
	assert.Equal(t, StatusRoomLeft, ownerSink.last().Status)
	assert.Len(t, joinerSink.all(), countBeforeRemoval, "disconnecting client must not receive its own RoomLeft")

	b.clients.mu.RLock()
	_, stillPresent := b.clients.clients[2]
	b.clients.mu.RUnlock()
	assert.False(t, stillPresent)
}

func TestRemoveClient_NoRoomIsANoop(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	assert.NotPanics(t, func() { b.RemoveClient(context.Background(), 1) })
}

func TestExternalDispatch_AppliesActionAndBroadcasts(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	result, err := b.ExternalDispatch(context.Background(), 1, addAction(7))
	require.NoError(t, err)
	assert.EqualValues(t, 7, result.State.Counter)
	assert.Equal(t, StatusAction, sink.last().Status)
}

func TestExternalDispatch_ClientNotInRoomIsNotFound(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	_, err := b.ExternalDispatch(context.Background(), 1, addAction(1))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestHandleAction_UnknownActionTypeIsServerError(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageAction, Action: `{"type":"Unknown","data":1}`})
	assert.Equal(t, StatusServerError, sink.last().Status)
}

func TestHandleAction_ReducerRejectionIsClassifiedAsClientError(t *testing.T) {
	// chat's DeleteMessage rejects a missing message via a plain error
	// returned from DispatchRaw (not wrapped in types.ErrServer); dispatch()
	// must classify this as ClientError, not ServerError.
	b := NewBroadcaster[chat.Action, chat.State](chat.New(), Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)
	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	deleteMissing, _ := json.Marshal(struct {
		Type string `json:"type"`
		Data uint64 `json:"data"`
	}{Type: string(chat.ActionDeleteMessage), Data: 999})

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageAction, Action: string(deleteMissing)})
	assert.Equal(t, StatusClientError, sink.last().Status)
}

func TestSendToMany_ReportsSendErrorViaHook(t *testing.T) {
	var gotErr error
	var gotID types.ClientID
	b := newCounterBroadcaster(Hooks{OnSendError: func(ctx context.Context, clientID types.ClientID, err error) {
		gotID = clientID
		gotErr = err
	}})

	failing := &failingSink{err: errSendFailed}
	b.RegisterClient(&types.Client{ID: 1}, failing)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageCreate})

	assert.EqualValues(t, 1, gotID)
	assert.ErrorIs(t, gotErr, errSendFailed)
}

func TestHandle_UnknownMessageTypeReportsServerError(t *testing.T) {
	b := newCounterBroadcaster(Hooks{})
	sink := &collectorSink{}
	b.RegisterClient(&types.Client{ID: 1}, sink)

	b.Handle(context.Background(), 1, ClientMessage{Type: MessageType("Bogus")})

	assert.Equal(t, StatusServerError, sink.last().Status)
}
