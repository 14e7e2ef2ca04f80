// Package ws upgrades HTTP connections to WebSockets and wires each
// one into a core.Joint, using a reader goroutine (driven by
// core.Joint.Run) and a writer goroutine (writePump) per connection,
// per the conventional gorilla/websocket pump pattern.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fenwick-labs/convene/internal/auth"
	"github.com/fenwick-labs/convene/internal/core"
	"github.com/fenwick-labs/convene/internal/logging"
	"github.com/fenwick-labs/convene/internal/metrics"
	"github.com/fenwick-labs/convene/internal/ratelimit"
	"github.com/fenwick-labs/convene/internal/tracing"
	"github.com/fenwick-labs/convene/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	sendBufferSize = 32
)

// Handler upgrades HTTP requests to WebSocket connections and drives
// each one through a core.Joint.
type Handler[A any, S any] struct {
	joint       *core.Joint[A, S]
	upgrader    websocket.Upgrader
	rateLimiter *ratelimit.RateLimiter
}

// NewHandler builds a Handler. allowedOrigins empty means accept
// connections from any origin (suitable for local development only).
// rateLimiter may be nil to disable connection/action throttling.
func NewHandler[A any, S any](joint *core.Joint[A, S], allowedOrigins []string, rateLimiter *ratelimit.RateLimiter) *Handler[A, S] {
	return &Handler[A, S]{
		joint:       joint,
		rateLimiter: rateLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(a), origin) {
				return true
			}
		}
		return false
	}
}

// extractToken reads the client token from the Sec-WebSocket-Protocol
// subprotocol (the conventional place for a bearer credential on a
// connection that cannot set an Authorization header), falling back to
// a "token" query parameter for simpler clients.
func extractToken(r *http.Request) types.Token {
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		return types.Token(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return types.Token(r.URL.Query().Get("token"))
}

// ServeHTTP upgrades the request and runs the connection to
// completion. It blocks until the client disconnects.
func (h *Handler[A, S]) ServeHTTP(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	if h.rateLimiter != nil && !h.rateLimiter.CheckConnect(ctx, ip) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	token := extractToken(c.Request)
	label := types.Label(auth.DecodeTokenLabel(string(token)))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sink := newSink(conn)
	go sink.writePump()

	clientID := h.joint.Accept(label, token, sink)
	stream := &stream{conn: conn, sink: sink, rateLimiter: h.rateLimiter, clientID: clientID}
	metrics.IncConnection()
	defer metrics.DecConnection()

	if err := h.joint.Run(ctx, clientID, stream); err != nil && !isExpectedClose(err) {
		logging.Warn(ctx, "websocket connection ended", zap.Error(err), zap.Uint64("client_id", uint64(clientID)))
	}

	sink.close()
	_ = conn.Close()
}

func isExpectedClose(err error) bool {
	return errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// stream implements core.Stream over a gorilla/websocket connection.
// Decode failures and rate-limit rejections are reported inline to the
// sender and do not terminate the connection; only a transport-level
// read failure (closed socket, protocol error) does.
type stream struct {
	conn        *websocket.Conn
	sink        *sink
	rateLimiter *ratelimit.RateLimiter
	clientID    types.ClientID
}

func (s *stream) Next(ctx context.Context) (core.ClientMessage, error) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return core.ClientMessage{}, err
		}

		_, span := tracing.StartSpan(ctx, "ws.decode_message", tracing.ClientAttribute(uint64(s.clientID)))

		msg, err := core.DecodeClientMessage(raw)
		if err != nil {
			span.End()
			_ = s.sink.Send(ctx, errorResponse(core.StatusServerError, types.Reason(err)))
			continue
		}

		if msg.Type == core.MessageAction && s.rateLimiter != nil {
			if rlErr := s.rateLimiter.CheckAction(ctx, string(msg.ClientToken)); rlErr != nil {
				span.End()
				_ = s.sink.Send(ctx, errorResponse(core.StatusClientError, rlErr.Error()))
				continue
			}
		}

		span.End()
		return msg, nil
	}
}

func errorResponse(status core.ResponseStatus, reason string) core.Response {
	payload, err := json.Marshal(reason)
	if err != nil {
		payload = []byte(`""`)
	}
	return core.Response{Status: status, Message: payload}
}

// sink implements core.Sink over a gorilla/websocket connection. Writes
// go through a buffered channel drained by writePump, the standard
// gorilla/websocket single-writer-goroutine pattern; a sink whose
// buffer fills because its client stalls is closed rather than let the
// fan-out to other clients block on it.
type sink struct {
	conn   *websocket.Conn
	send   chan core.Response
	mu     sync.Mutex
	closed bool
}

func newSink(conn *websocket.Conn) *sink {
	return &sink{conn: conn, send: make(chan core.Response, sendBufferSize)}
}

func (s *sink) Send(ctx context.Context, resp core.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("connection closed")
	}
	select {
	case s.send <- resp:
		return nil
	default:
		s.closed = true
		close(s.send)
		return errors.New("send buffer full, closing slow connection")
	}
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *sink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case resp, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
