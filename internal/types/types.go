// Package types defines the domain value types and error taxonomy shared
// across the broadcaster/dispatcher core and its transport adapters.
package types

import (
	"errors"
	"fmt"
)

// ClientID uniquely identifies a connected client among currently-connected
// clients. Allocated monotonically by the Joint at connection acceptance.
type ClientID uint64

// RoomID uniquely identifies a room for the lifetime of the process.
// Allocated monotonically at room creation; never reused.
type RoomID uint64

// Token is a developer-opaque credential echoed back unmodified by the core.
// It is never inspected for authentication or authorization purposes.
type Token string

// Label is a human-readable display name supplied by the client.
type Label string

// Client is the registry record for one connected client.
type Client struct {
	ID     ClientID
	RoomID *RoomID // nil iff the client is not currently a member of any room
	Label  Label
	Token  Token
}

// InRoom reports whether the client currently belongs to a room.
func (c *Client) InRoom() bool {
	return c.RoomID != nil
}

// RoomStatus is Public or Private(secret). The core never inspects this
// value when deciding whether to admit a Join; enforcement, if any, is a
// host application's responsibility.
type RoomStatus struct {
	Private bool
	Secret  string
}

// Public constructs a public room status.
func Public() RoomStatus { return RoomStatus{} }

// PrivateWithSecret constructs a private room status carrying an
// unenforced secret value.
func PrivateWithSecret(secret string) RoomStatus {
	return RoomStatus{Private: true, Secret: secret}
}

// Error taxonomy (spec §7). Each category is a distinct sentinel so callers
// can classify an error with errors.Is while still carrying a human-readable
// reason through %w wrapping.

// ErrNotFound classifies a referenced entity (room/client) as absent, or
// the sender as not being in a room when the operation requires one.
var ErrNotFound = errors.New("not found")

// ErrClient classifies a precondition violated by the sender.
var ErrClient = errors.New("client error")

// ErrServer classifies a malformed payload the core could not parse.
var ErrServer = errors.New("server error")

// ErrTransport classifies an inbound stream failure or outbound sink
// failure. Never surfaced to a client as a Response.
var ErrTransport = errors.New("transport error")

// NotFound builds a NotFound-classified error with the given reason.
func NotFound(reason string) error { return fmt.Errorf("%s: %w", reason, ErrNotFound) }

// ClientError builds a ClientError-classified error with the given reason.
func ClientError(reason string) error { return fmt.Errorf("%s: %w", reason, ErrClient) }

// ServerError builds a ServerError-classified error with the given reason.
func ServerError(reason string) error { return fmt.Errorf("%s: %w", reason, ErrServer) }

// TransportErrorf builds a TransportError-classified error with the given reason.
func TransportErrorf(reason string) error { return fmt.Errorf("%s: %w", reason, ErrTransport) }

// Reason strips the sentinel suffix a NotFound/ClientError/ServerError
// constructor appended, returning the original human-readable message.
// Used when encoding the error back onto the wire as a Response payload.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return trimSuffix(err.Error(), ": "+ErrNotFound.Error())
	case errors.Is(err, ErrClient):
		return trimSuffix(err.Error(), ": "+ErrClient.Error())
	case errors.Is(err, ErrServer):
		return trimSuffix(err.Error(), ": "+ErrServer.Error())
	case errors.Is(err, ErrTransport):
		return trimSuffix(err.Error(), ": "+ErrTransport.Error())
	default:
		return err.Error()
	}
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
