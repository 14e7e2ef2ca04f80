package core

import (
	"context"
	"errors"
	"time"

	"github.com/fenwick-labs/convene/internal/types"
)

// Hooks lets a host application observe Broadcaster activity (for metrics
// and logging) without the core importing any logging/metrics package
// itself. Every field is optional.
type Hooks struct {
	OnSendError        func(ctx context.Context, clientID types.ClientID, err error)
	OnRoomCreated      func(roomID types.RoomID)
	OnRoomJoined       func(roomID types.RoomID, clientID types.ClientID)
	OnRoomLeft         func(roomID types.RoomID, clientID types.ClientID)
	OnActionDispatched func(roomID types.RoomID, status string, d time.Duration, ok bool)
}

// Broadcaster is the component that interprets inbound ClientMessages,
// mutates the registries, invokes the per-room dispatcher, and fans
// Responses out to the correct audience (spec §4.5, component C6).
type Broadcaster[A any, S any] struct {
	clients  *clientRegistry
	sinks    *sinkRegistry
	rooms    *roomRegistry[A, S]
	template Reducer[A, S]
	hooks    Hooks
}

// NewBroadcaster builds a Broadcaster around a template reducer that is
// cloned for every newly created room.
func NewBroadcaster[A any, S any](template Reducer[A, S], hooks Hooks) *Broadcaster[A, S] {
	return &Broadcaster[A, S]{
		clients:  newClientRegistry(),
		sinks:    newSinkRegistry(),
		rooms:    newRoomRegistry[A, S](),
		template: template,
		hooks:    hooks,
	}
}

// RegisterClient adds a freshly accepted client and its sink to the
// registries with no room membership (Joint step 2).
func (b *Broadcaster[A, S]) RegisterClient(client *types.Client, sink Sink) {
	b.clients.mu.Lock()
	b.clients.clients[client.ID] = client
	b.clients.mu.Unlock()

	b.sinks.mu.Lock()
	b.sinks.sinks[client.ID] = sink
	b.sinks.mu.Unlock()
}

// RemoveClient performs the Joint's mandatory teardown (spec §4.6 step 4):
// if the client is in a room, it leaves (remaining members observe
// RoomLeft), then it is deleted from both registries.
func (b *Broadcaster[A, S]) RemoveClient(ctx context.Context, clientID types.ClientID) {
	b.clients.mu.Lock()
	client, ok := b.clients.clients[clientID]
	if ok {
		delete(b.clients.clients, clientID)
	}
	b.clients.mu.Unlock()

	if ok && client.InRoom() {
		roomID := *client.RoomID
		var audience []types.ClientID
		b.rooms.mu.Lock()
		if rm, rok := b.rooms.rooms[roomID]; rok {
			delete(rm.members, clientID)
			audience = snapshotMembers(rm.members)
		}
		b.rooms.mu.Unlock()
		if b.hooks.OnRoomLeft != nil {
			b.hooks.OnRoomLeft(roomID, clientID)
		}
		b.sendToMany(ctx, audience, roomLeftResponse(clientID))
	}

	b.sinks.mu.Lock()
	delete(b.sinks.sinks, clientID)
	b.sinks.mu.Unlock()
}

// Handle dispatches one inbound ClientMessage through the state machine
// of spec §4.5.1.
func (b *Broadcaster[A, S]) Handle(ctx context.Context, clientID types.ClientID, msg ClientMessage) {
	switch msg.Type {
	case MessageCreate:
		b.handleCreate(ctx, clientID)
	case MessageJoin:
		b.handleJoin(ctx, clientID, msg.RoomID)
	case MessageAction:
		b.handleAction(ctx, clientID, msg.Action)
	case MessageLeave:
		b.handleLeave(ctx, clientID)
	default:
		b.sendTo(ctx, clientID, serverErrorResponse("unknown message type"))
	}
}

func (b *Broadcaster[A, S]) handleCreate(ctx context.Context, clientID types.ClientID) {
	b.clients.mu.Lock()
	client, ok := b.clients.clients[clientID]
	if !ok {
		b.clients.mu.Unlock()
		return
	}
	if client.InRoom() {
		b.clients.mu.Unlock()
		b.sendTo(ctx, clientID, clientErrorResponse("leave current room before creating new"))
		return
	}
	b.clients.mu.Unlock()

	rm := &room[A, S]{
		ownerID: clientID,
		status:  types.Public(),
		members: map[types.ClientID]struct{}{clientID: {}},
		reducer: b.template.Clone(),
	}

	b.rooms.mu.Lock()
	roomID := b.rooms.allocateID()
	rm.id = roomID
	b.rooms.rooms[roomID] = rm
	b.rooms.mu.Unlock()

	b.clients.mu.Lock()
	if c, ok := b.clients.clients[clientID]; ok {
		rid := roomID
		c.RoomID = &rid
	}
	b.clients.mu.Unlock()

	rm.reducerMu.Lock()
	snapshot := rm.reducer.Snapshot()
	rm.reducerMu.Unlock()

	b.sendTo(ctx, clientID, stateSentResponse(snapshot))
	b.broadcastToRoom(ctx, roomID, roomCreatedResponse(roomID))
	if b.hooks.OnRoomCreated != nil {
		b.hooks.OnRoomCreated(roomID)
	}
}

func (b *Broadcaster[A, S]) handleJoin(ctx context.Context, clientID types.ClientID, roomID types.RoomID) {
	b.clients.mu.Lock()
	client, ok := b.clients.clients[clientID]
	if !ok {
		b.clients.mu.Unlock()
		return
	}
	if client.InRoom() {
		b.clients.mu.Unlock()
		b.sendTo(ctx, clientID, clientErrorResponse("leave current room before joining new"))
		return
	}
	b.clients.mu.Unlock()

	b.rooms.mu.Lock()
	rm, ok := b.rooms.rooms[roomID]
	if !ok {
		b.rooms.mu.Unlock()
		b.sendTo(ctx, clientID, notFoundResponse("room not found"))
		return
	}
	rm.members[clientID] = struct{}{}
	b.rooms.mu.Unlock()

	b.clients.mu.Lock()
	if c, ok := b.clients.clients[clientID]; ok {
		rid := roomID
		c.RoomID = &rid
	}
	b.clients.mu.Unlock()

	rm.reducerMu.Lock()
	snapshot := rm.reducer.Snapshot()
	rm.reducerMu.Unlock()

	b.sendTo(ctx, clientID, stateSentResponse(snapshot))
	b.broadcastToRoom(ctx, roomID, roomJoinedResponse(clientID))
	if b.hooks.OnRoomJoined != nil {
		b.hooks.OnRoomJoined(roomID, clientID)
	}
}

func (b *Broadcaster[A, S]) handleAction(ctx context.Context, clientID types.ClientID, raw string) {
	b.clients.mu.RLock()
	client, ok := b.clients.clients[clientID]
	b.clients.mu.RUnlock()
	if !ok || !client.InRoom() {
		b.sendTo(ctx, clientID, notFoundResponse("client not in room"))
		return
	}
	roomID := *client.RoomID

	b.rooms.mu.RLock()
	rm, ok := b.rooms.rooms[roomID]
	b.rooms.mu.RUnlock()
	if !ok {
		b.sendTo(ctx, clientID, notFoundResponse("room not found"))
		return
	}

	start := time.Now()
	result, err := b.dispatch(rm, clientID, raw)
	if err != nil {
		if b.hooks.OnActionDispatched != nil {
			b.hooks.OnActionDispatched(roomID, "rejected", time.Since(start), false)
		}
		if errors.Is(err, types.ErrServer) {
			b.sendTo(ctx, clientID, serverErrorResponse(types.Reason(err)))
		} else {
			b.sendTo(ctx, clientID, clientErrorResponse(types.Reason(err)))
		}
		return
	}
	if b.hooks.OnActionDispatched != nil {
		b.hooks.OnActionDispatched(roomID, result.Status, time.Since(start), true)
	}
	b.broadcastToRoom(ctx, roomID, actionResponse(result))
}

func (b *Broadcaster[A, S]) handleLeave(ctx context.Context, clientID types.ClientID) {
	b.clients.mu.Lock()
	client, ok := b.clients.clients[clientID]
	if !ok {
		b.clients.mu.Unlock()
		return
	}
	if !client.InRoom() {
		b.clients.mu.Unlock()
		b.sendTo(ctx, clientID, notFoundResponse("client not in room"))
		return
	}
	roomID := *client.RoomID
	client.RoomID = nil
	b.clients.mu.Unlock()

	var audience []types.ClientID
	b.rooms.mu.Lock()
	if rm, ok := b.rooms.rooms[roomID]; ok {
		audience = snapshotMembers(rm.members)
		delete(rm.members, clientID)
	}
	b.rooms.mu.Unlock()

	b.sendToMany(ctx, audience, roomLeftResponse(clientID))
	if b.hooks.OnRoomLeft != nil {
		b.hooks.OnRoomLeft(roomID, clientID)
	}
}

// ExternalDispatch applies raw on behalf of clientID outside any inbound
// message, for host code acting on a client's behalf (spec §4.6). It
// shares the per-room serialization and fan-out with handleAction.
func (b *Broadcaster[A, S]) ExternalDispatch(ctx context.Context, clientID types.ClientID, raw string) (ActionResult[S], error) {
	b.clients.mu.RLock()
	client, ok := b.clients.clients[clientID]
	b.clients.mu.RUnlock()
	if !ok || !client.InRoom() {
		return ActionResult[S]{}, types.NotFound("client not in room")
	}
	roomID := *client.RoomID

	b.rooms.mu.RLock()
	rm, ok := b.rooms.rooms[roomID]
	b.rooms.mu.RUnlock()
	if !ok {
		return ActionResult[S]{}, types.NotFound("room not found")
	}

	result, err := b.dispatch(rm, clientID, raw)
	if err != nil {
		return ActionResult[S]{}, err
	}
	b.broadcastToRoom(ctx, roomID, actionResponse(result))
	return result, nil
}

// dispatch is the Dispatcher (C5): acquire the room's exclusive lock,
// invoke the reducer, and classify any error per §4.4/§4.5.4. A panicking
// reducer is recovered and reported as a crashed-reducer ServerError
// (spec §7's recommended behavior), leaving the room's state undefined.
func (b *Broadcaster[A, S]) dispatch(rm *room[A, S], clientID types.ClientID, raw string) (result ActionResult[S], err error) {
	rm.reducerMu.Lock()
	defer rm.reducerMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			result = ActionResult[S]{}
			err = types.ServerError("reducer crashed")
		}
	}()

	res, derr := rm.reducer.DispatchRaw(clientID, raw)
	if derr != nil {
		if errors.Is(derr, types.ErrServer) {
			return ActionResult[S]{}, derr
		}
		return ActionResult[S]{}, types.ClientError(derr.Error())
	}
	return res, nil
}

func (b *Broadcaster[A, S]) broadcastToRoom(ctx context.Context, roomID types.RoomID, resp Response) {
	b.rooms.mu.RLock()
	rm, ok := b.rooms.rooms[roomID]
	var audience []types.ClientID
	if ok {
		audience = snapshotMembers(rm.members)
	}
	b.rooms.mu.RUnlock()
	if !ok {
		return
	}
	b.sendToMany(ctx, audience, resp)
}

func (b *Broadcaster[A, S]) sendToMany(ctx context.Context, ids []types.ClientID, resp Response) {
	b.sinks.mu.RLock()
	targets := make(map[types.ClientID]Sink, len(ids))
	for _, id := range ids {
		if s, ok := b.sinks.sinks[id]; ok {
			targets[id] = s
		}
	}
	b.sinks.mu.RUnlock()

	for id, s := range targets {
		if err := s.Send(ctx, resp); err != nil && b.hooks.OnSendError != nil {
			b.hooks.OnSendError(ctx, id, err)
		}
	}
}

func (b *Broadcaster[A, S]) sendTo(ctx context.Context, id types.ClientID, resp Response) {
	b.sinks.mu.RLock()
	s, ok := b.sinks.sinks[id]
	b.sinks.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.Send(ctx, resp); err != nil && b.hooks.OnSendError != nil {
		b.hooks.OnSendError(ctx, id, err)
	}
}
