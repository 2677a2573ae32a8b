package session_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/protocol"
	"github.com/munterfi/bgo/internal/session"
	"github.com/munterfi/bgo/internal/stream"
	"github.com/munterfi/bgo/internal/tasks"
)

func tcpPipe(t *testing.T) (client, server *stream.Endpoint) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverConn := <-serverConnCh

	client = stream.New(clientConn)
	server = stream.New(serverConn)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func newRegistry() *tasks.Registry {
	r := tasks.NewRegistry()
	r.RegisterInit("init", func() (map[string]any, error) {
		return map[string]any{"count": 0}, nil
	})
	r.RegisterExec("exec", func(ep *stream.Endpoint, state, args map[string]any) (map[string]any, error) {
		count, _ := state["count"].(int)
		return map[string]any{"count": count + 1}, nil
	})
	r.RegisterExit("exit", func(ep *stream.Endpoint, state, args map[string]any) error {
		return ep.SendResponse(protocol.New(protocol.OK, state))
	})
	return r
}

func mustLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New()
	require.NoError(t, err)
	return log
}

func TestSessionInitExecExit(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "", mustLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, sess.Run(server))
	}()

	res, err := client.Send(protocol.New(protocol.INIT, map[string]any{
		"init_task": "init", "exec_task": "exec", "exit_task": "exit",
	}), true)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, protocol.OK, res.Type)
	assert.Equal(t, "Initialization successful.", res.Args["message"])

	res, err = client.Send(protocol.New(protocol.EXEC, nil), false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Received 'EXEC'", res.Args["message"])

	res, err = client.Send(protocol.New(protocol.EXIT, nil), true)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, float64(1), res.Args["count"])

	<-done
	assert.True(t, state.ExitRequested)
}

func TestSessionDoubleInit(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "", mustLogger(t))

	go func() { _ = sess.Run(server) }()

	initMsg := protocol.New(protocol.INIT, map[string]any{
		"init_task": "init", "exec_task": "exec", "exit_task": "exit",
	})
	res, err := client.Send(initMsg, true)
	require.NoError(t, err)
	assert.Equal(t, "Initialization successful.", res.Args["message"])

	res, err = client.Send(initMsg, true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ERROR, res.Type)
	assert.Equal(t, "Already initialized.", res.Args["message"])

	_, _ = client.Send(protocol.New(protocol.EXIT, nil), false)
}

func TestSessionUnknownTaskOnInit(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "", mustLogger(t))
	go func() { _ = sess.Run(server) }()

	res, err := client.Send(protocol.New(protocol.INIT, map[string]any{
		"init_task": "nope", "exec_task": "exec", "exit_task": "exit",
	}), true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ERROR, res.Type)
	assert.Equal(t, "unknown task", res.Args["message"])
}

func TestSessionAuthRequiredBeforeInit(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "secret", mustLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(server)
	}()

	res, err := client.Send(protocol.New(protocol.INIT, map[string]any{
		"init_task": "init", "exec_task": "exec", "exit_task": "exit",
	}), false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Received 'INIT'", res.Args["message"])
	assert.False(t, state.Initialized)

	res, err = client.Send(protocol.New(protocol.AUTH, map[string]any{"token": "wrong"}), true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ERROR, res.Type)
	assert.Equal(t, "Invalid client authentication.", res.Args["message"])

	res, err = client.Send(protocol.New(protocol.AUTH, map[string]any{"token": "secret"}), true)
	require.NoError(t, err)
	assert.Equal(t, protocol.OK, res.Type)
	assert.Equal(t, "Authentication successful.", res.Args["message"])

	res, err = client.Send(protocol.New(protocol.INIT, map[string]any{
		"init_task": "init", "exec_task": "exec", "exit_task": "exit",
	}), true)
	require.NoError(t, err)
	assert.Equal(t, "Initialization successful.", res.Args["message"])

	_, _ = client.Send(protocol.New(protocol.EXIT, nil), false)
	<-done
}

func TestSessionIgnoresMessagesAfterFailedAuth(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "secret", mustLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(server)
	}()

	res, err := client.Send(protocol.New(protocol.AUTH, map[string]any{"token": "wrong"}), true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ERROR, res.Type)

	res, err = client.Send(protocol.New(protocol.INIT, map[string]any{
		"init_task": "init", "exec_task": "exec", "exit_task": "exit",
	}), false)
	require.NoError(t, err)
	assert.Equal(t, "Received 'INIT'", res.Args["message"])
	assert.False(t, state.Initialized)

	require.NoError(t, client.Close())
	<-done
}

func TestSessionExitWithoutInit(t *testing.T) {
	client, server := tcpPipe(t)
	state := &session.State{}
	sess := session.New(newRegistry(), state, "", mustLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, sess.Run(server))
	}()

	_, err := client.Send(protocol.New(protocol.EXIT, nil), false)
	require.NoError(t, err)

	<-done
	assert.True(t, state.ExitRequested)
}
