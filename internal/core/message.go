package core

import (
	"encoding/json"

	"github.com/fenwick-labs/convene/internal/types"
)

// MessageType tags the inbound ClientMessage variants (spec §6).
type MessageType string

const (
	MessageCreate MessageType = "Create"
	MessageJoin   MessageType = "Join"
	MessageAction MessageType = "Action"
	MessageLeave  MessageType = "Leave"
)

// ClientMessage is the decoded form of one inbound wire frame.
type ClientMessage struct {
	Type        MessageType
	RoomID      types.RoomID // set iff Type == MessageJoin
	Action      string       // raw json-encoded action, set iff Type == MessageAction
	ClientToken types.Token
}

type inboundEnvelope struct {
	Message     json.RawMessage `json:"message"`
	ClientToken string          `json:"client_token"`
}

type messageBody struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeClientMessage parses one inbound wire frame per spec §6. Any
// structural failure is reported as a ServerError-classified error —
// the caller (the ws adapter's Stream.Next) sends ServerError to the
// sender itself and keeps reading, rather than terminating the
// connection, since only transport-level failures are terminal.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, types.ServerError("malformed client message")
	}

	var body messageBody
	if err := json.Unmarshal(env.Message, &body); err != nil {
		return ClientMessage{}, types.ServerError("malformed client message")
	}

	msg := ClientMessage{Type: body.Type, ClientToken: types.Token(env.ClientToken)}

	switch body.Type {
	case MessageJoin:
		var roomID uint64
		if len(body.Data) == 0 {
			return ClientMessage{}, types.ServerError("join missing room id")
		}
		if err := json.Unmarshal(body.Data, &roomID); err != nil {
			return ClientMessage{}, types.ServerError("join room id must be a number")
		}
		msg.RoomID = types.RoomID(roomID)
	case MessageAction:
		var raw string
		if err := json.Unmarshal(body.Data, &raw); err != nil {
			return ClientMessage{}, types.ServerError("action data must be a json-encoded string")
		}
		msg.Action = raw
	case MessageCreate, MessageLeave:
		// no payload
	default:
		return ClientMessage{}, types.ServerError("unknown message type")
	}

	return msg, nil
}

// ResponseStatus tags the outbound Response variants (spec §6).
type ResponseStatus string

const (
	StatusRoomCreated ResponseStatus = "RoomCreated"
	StatusRoomJoined  ResponseStatus = "RoomJoined"
	StatusStateSent   ResponseStatus = "StateSent"
	StatusAction      ResponseStatus = "Action"
	StatusRoomLeft    ResponseStatus = "RoomLeft"
	StatusNotFound    ResponseStatus = "NotFound"
	StatusClientError ResponseStatus = "ClientError"
	StatusServerError ResponseStatus = "ServerError"
)

// Response is the two-field outbound envelope `{status, message}` from
// spec §6. Message carries whichever payload the status implies, threaded
// through as raw JSON rather than the original's double-encoded string.
type Response struct {
	Status  ResponseStatus  `json:"status"`
	Message json.RawMessage `json:"message"`
}

func newResponse(status ResponseStatus, payload any) Response {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte("null")
	}
	return Response{Status: status, Message: b}
}

func roomCreatedResponse(id types.RoomID) Response     { return newResponse(StatusRoomCreated, id) }
func roomJoinedResponse(id types.ClientID) Response    { return newResponse(StatusRoomJoined, id) }
func stateSentResponse(state any) Response             { return newResponse(StatusStateSent, state) }
func roomLeftResponse(id types.ClientID) Response      { return newResponse(StatusRoomLeft, id) }
func notFoundResponse(reason string) Response          { return newResponse(StatusNotFound, reason) }
func clientErrorResponse(reason string) Response       { return newResponse(StatusClientError, reason) }
func serverErrorResponse(reason string) Response       { return newResponse(StatusServerError, reason) }

// ActionResult is the payload of an Action Response (spec §3, §6).
type ActionResult[S any] struct {
	Status string         `json:"status"`
	State  S              `json:"state"`
	Author types.ClientID `json:"author"`
	Data   string         `json:"data"`
}

func actionResponse[S any](result ActionResult[S]) Response {
	return newResponse(StatusAction, result)
}
