// Package netutil provides the bgo server's TCP listener: bind, listen,
// and accept connections strictly one at a time (spec.md §4.4).
package netutil

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// DefaultBacklog is the documented backlog size of the bgo server socket
// (spec.md §6). Go's net package does not expose a way to set the listen
// backlog, so the value is never applied to the socket; it exists only to
// document the original contract's intent. Bind leaves the backlog at the
// OS default.
const DefaultBacklog = 3

// Listener binds to one (host, port) and accepts connections sequentially;
// there is never more than one accepted connection live at a time, by
// design (spec.md §1, §5).
type Listener struct {
	ln net.Listener
}

// Bind listens on host:port with SO_REUSEADDR set, mirroring the source
// server socket's setsockopt call.
func Bind(ctx context.Context, host string, port int) (*Listener, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctlErr error
			err := c.Control(func(fd uintptr) {
				ctlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctlErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netutil: bind %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next incoming connection.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("netutil: accept: %w", err)
	}
	return conn, nil
}

// Addr reports the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close releases the listening socket.
func (l *Listener) Close() error {
	return l.ln.Close()
}
