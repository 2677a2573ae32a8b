// Package client implements the Initialize/Execute/Terminate façade a
// caller uses to drive a bgo server: each call opens a fresh connection,
// performs one request/response exchange, and closes it (spec.md §4.6).
package client

import (
	"context"
	"fmt"
	"net"

	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/protocol"
	"github.com/munterfi/bgo/internal/stream"
)

// Client addresses a running bgo server. It holds no connection state
// between calls — every method dials, exchanges one message, and closes.
type Client struct {
	addr  string
	token string
	log   *logger.Logger
}

// New returns a Client that dials host:port for every call. token is sent
// with an AUTH message before the real request whenever it is non-empty.
// log receives lines describing each call's dial target and outcome
// (dial and send failures at ERROR, dials and executes at DEBUG, initialize
// and terminate at INFO).
func New(host string, port int, token string, log *logger.Logger) *Client {
	return &Client{addr: fmt.Sprintf("%s:%d", host, port), token: token, log: log}
}

// Initialize binds the three named tasks on the server, awaiting the
// explicit INIT confirmation ("Initialization successful.",
// "Already initialized.", or an unknown-task ERROR).
func (c *Client) Initialize(ctx context.Context, initTask, execTask, exitTask string) (map[string]any, error) {
	ep, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ep.Close() }()

	if err := c.authenticate(ep); err != nil {
		return nil, err
	}

	msg := protocol.New(protocol.INIT, map[string]any{
		"init_task": initTask,
		"exec_task": execTask,
		"exit_task": exitTask,
	})
	res, err := ep.Send(msg, true)
	if err != nil {
		c.log.Error(fmt.Sprintf("initialize %s: %v", c.addr, err))
		return nil, fmt.Errorf("client: initialize: %w", err)
	}
	c.log.Info(fmt.Sprintf("initialized %s with tasks %s/%s/%s", c.addr, initTask, execTask, exitTask))
	return responseArgs(res)
}

// Execute sends args to the bound exec task. When awaitResponse is false,
// the only result is the automatic "Received 'EXEC'" confirmation; when
// true, the call blocks for whatever second response the exec task chooses
// to send (forever, if it sends none — spec.md §5).
func (c *Client) Execute(ctx context.Context, args map[string]any, awaitResponse bool) (map[string]any, error) {
	ep, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ep.Close() }()

	if err := c.authenticate(ep); err != nil {
		return nil, err
	}

	res, err := ep.Send(protocol.New(protocol.EXEC, args), awaitResponse)
	if err != nil {
		c.log.Error(fmt.Sprintf("execute %s: %v", c.addr, err))
		return nil, fmt.Errorf("client: execute: %w", err)
	}
	c.log.Debug(fmt.Sprintf("executed on %s", c.addr))
	return responseArgs(res)
}

// Terminate sends EXIT. When awaitResponse is true, the call blocks for the
// exit task's explicit response (e.g. final accumulated state); otherwise
// it returns as soon as the automatic confirmation arrives.
func (c *Client) Terminate(ctx context.Context, args map[string]any, awaitResponse bool) (map[string]any, error) {
	ep, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ep.Close() }()

	if err := c.authenticate(ep); err != nil {
		return nil, err
	}

	res, err := ep.Send(protocol.New(protocol.EXIT, args), awaitResponse)
	if err != nil {
		c.log.Error(fmt.Sprintf("terminate %s: %v", c.addr, err))
		return nil, fmt.Errorf("client: terminate: %w", err)
	}
	c.log.Info(fmt.Sprintf("terminated %s", c.addr))
	return responseArgs(res)
}

func (c *Client) dial(ctx context.Context) (*stream.Endpoint, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.log.Error(fmt.Sprintf("dial %s: %v", c.addr, err))
		return nil, fmt.Errorf("client: dial %s: %w", c.addr, err)
	}
	c.log.Debug(fmt.Sprintf("dialed %s", c.addr))
	return stream.New(conn), nil
}

// authenticate sends AUTH first whenever a token is configured, per
// spec.md §3's "AUTH must precede all others when a token is configured".
func (c *Client) authenticate(ep *stream.Endpoint) error {
	if c.token == "" {
		return nil
	}
	res, err := ep.Send(protocol.New(protocol.AUTH, map[string]any{"token": c.token}), true)
	if err != nil {
		return fmt.Errorf("client: authenticate: %w", err)
	}
	if res != nil && res.Type == protocol.ERROR {
		message, _ := res.Args["message"].(string)
		return fmt.Errorf("client: authenticate: %s", message)
	}
	return nil
}

func responseArgs(res *protocol.Message) (map[string]any, error) {
	if res == nil {
		return nil, nil
	}
	if res.Type == protocol.ERROR {
		message, _ := res.Args["message"].(string)
		return nil, fmt.Errorf("client: server error: %s", message)
	}
	return res.Args, nil
}
