// Package inproc provides a channel-backed Stream/Sink pair for
// driving a core.Joint without a network transport: useful for tests
// and for embedding the broadcaster directly in a host process.
package inproc

import (
	"context"
	"errors"

	"github.com/fenwick-labs/convene/internal/core"
)

// ErrClosed is returned by Next/Send once the pipe has been closed.
var ErrClosed = errors.New("inproc: pipe closed")

// Pipe is a paired Stream/Sink connected to one another by buffered
// channels: messages written via Send arrive via Stream.Next, and
// responses sent via Sink.Send arrive via Receive.
type Pipe struct {
	inbox  chan core.ClientMessage
	outbox chan core.Response
	closed chan struct{}
}

// NewPipe creates a Pipe with the given channel buffer size.
func NewPipe(bufferSize int) *Pipe {
	return &Pipe{
		inbox:  make(chan core.ClientMessage, bufferSize),
		outbox: make(chan core.Response, bufferSize),
		closed: make(chan struct{}),
	}
}

// Send enqueues msg for delivery to the Joint's read loop via Stream.Next.
// It blocks if the buffer is full and returns ErrClosed if the pipe has
// been closed.
func (p *Pipe) Send(ctx context.Context, msg core.ClientMessage) error {
	select {
	case p.inbox <- msg:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a Response is available, the pipe is closed, or
// ctx is cancelled.
func (p *Pipe) Receive(ctx context.Context) (core.Response, error) {
	select {
	case resp, ok := <-p.outbox:
		if !ok {
			return core.Response{}, ErrClosed
		}
		return resp, nil
	case <-p.closed:
		return core.Response{}, ErrClosed
	case <-ctx.Done():
		return core.Response{}, ctx.Err()
	}
}

// Close stops future sends and causes the next Stream.Next call to
// return ErrClosed, driving the Joint's read loop to terminate.
func (p *Pipe) Close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
}

// Stream returns the core.Stream half of the pipe, to be handed to
// core.Joint.Run.
func (p *Pipe) Stream() core.Stream { return (*pipeStream)(p) }

// Sink returns the core.Sink half of the pipe, to be handed to
// core.Joint.Accept.
func (p *Pipe) Sink() core.Sink { return (*pipeSink)(p) }

type pipeStream Pipe

func (s *pipeStream) Next(ctx context.Context) (core.ClientMessage, error) {
	p := (*Pipe)(s)
	select {
	case msg, ok := <-p.inbox:
		if !ok {
			return core.ClientMessage{}, ErrClosed
		}
		return msg, nil
	case <-p.closed:
		return core.ClientMessage{}, ErrClosed
	case <-ctx.Done():
		return core.ClientMessage{}, ctx.Err()
	}
}

type pipeSink Pipe

func (s *pipeSink) Send(ctx context.Context, resp core.Response) error {
	p := (*Pipe)(s)
	select {
	case p.outbox <- resp:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
