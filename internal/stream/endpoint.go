// Package stream implements the request/response handshake atop
// internal/wire: the paired Send/Recv exchange with a confirmation
// message and an optional second response (spec.md §4.3).
package stream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/munterfi/bgo/internal/protocol"
	"github.com/munterfi/bgo/internal/wire"
)

// postSendDelay is slept after every frame write to give a slow peer time
// to finish reading before the next send — a wire-level behavior carried
// over verbatim from the source implementation for bit compatibility
// (spec.md §4.1).
const postSendDelay = 100 * time.Millisecond

// ErrClosed is returned by Send and SendResponse once the endpoint has been
// closed.
var ErrClosed = errors.New("stream: endpoint closed")

// Endpoint wraps a single net.Conn with the bgo message handshake. One Endpoint is used per
// accepted connection on the server, and per operation on the client —
// there is no multiplexing: at most one message is ever in flight at a
// time on a given Endpoint (spec.md §5).
type Endpoint struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// New wraps an already-established net.Conn as an Endpoint.
func New(conn net.Conn) *Endpoint {
	return &Endpoint{conn: conn}
}

// Close shuts down the write half and closes the underlying connection.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if tc, ok := e.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return e.conn.Close()
}

// RemoteAddr reports the address of the peer, for logging.
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.conn.RemoteAddr()
}

// Send frames and writes msg, augmented with an await_response flag, then
// waits for the responder's confirmation. If awaitSecond is true, it then
// blocks for a second response emitted explicitly by the responder's
// dispatched task — forever, if none ever arrives (spec.md §4.3, §5; this
// is documented behavior, not a bug).
func (e *Endpoint) Send(msg protocol.Message, awaitSecond bool) (*protocol.Message, error) {
	out := msg.WithArg("await_response", awaitSecond)

	if err := e.write(out); err != nil {
		return nil, err
	}

	conf, err := e.readOne()
	if err != nil {
		if errors.Is(err, wire.ErrNoMessage) {
			return nil, nil
		}
		return nil, err
	}

	if !awaitSecond {
		return conf, nil
	}

	second, err := e.readOne()
	if err != nil {
		if errors.Is(err, wire.ErrNoMessage) {
			return nil, nil
		}
		return nil, err
	}
	return second, nil
}

// Recv reads one message, replies with the automatic OK confirmation
// ("Received '<TYPE>'"), and returns the message for dispatch. It returns
// (nil, nil) if the peer closed the connection (spec.md §4.3 step 1).
func (e *Endpoint) Recv() (*protocol.Message, error) {
	msg, err := e.readOne()
	if err != nil {
		if errors.Is(err, wire.ErrNoMessage) {
			return nil, nil
		}
		return nil, err
	}

	confirmation := protocol.New(protocol.OK, map[string]any{
		"message": fmt.Sprintf("Received '%s'", msg.Type),
	})
	if err := e.write(confirmation); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendResponse sends an explicit second response from a dispatched task —
// the "second response" spec.md §4.3 allows EXEC/EXIT tasks to emit when
// the initiator set await_response=true.
func (e *Endpoint) SendResponse(msg protocol.Message) error {
	return e.write(msg)
}

func (e *Endpoint) write(msg protocol.Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("stream: send: %w", err)
	}
	if err := wire.WriteFrame(e.conn, payload); err != nil {
		return fmt.Errorf("stream: send: %w", err)
	}
	time.Sleep(postSendDelay)
	return nil
}

func (e *Endpoint) readOne() (*protocol.Message, error) {
	payload, err := wire.ReadFrame(e.conn)
	if err != nil {
		return nil, err
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("stream: recv: %w", err)
	}
	return &msg, nil
}
