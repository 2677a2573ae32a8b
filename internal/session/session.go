// Package session implements the per-connection dispatch table described
// in spec.md §4.5: AUTH/INIT/EXEC/EXIT messages gated by authentication and
// initialization state, driving the registered task procedures.
package session

import (
	"errors"
	"fmt"

	"github.com/munterfi/bgo/internal/auth"
	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/protocol"
	"github.com/munterfi/bgo/internal/stream"
	"github.com/munterfi/bgo/internal/tasks"
)

// errSessionTerminated is returned internally by dispatch to unwind the
// per-connection loop once EXIT has been processed; it is never returned
// to a caller of Run.
var errSessionTerminated = errors.New("session: terminated")

// State is the part of a bgo server's state that survives across
// successive client connections on the same process (spec.md §3's "Server
// lifetime state"): whether INIT has run, the three bound task names, the
// accumulated user state, and whether EXIT has been requested. It is
// touched only by the single accept-loop goroutine, so it carries no lock
// (spec.md §5).
type State struct {
	Initialized  bool
	Names        tasks.Names
	UserState    map[string]any
	ExitRequested bool
}

// Session dispatches one accepted connection's messages against a shared
// State and task Registry. A fresh authenticated flag is created per
// connection (spec.md §3: "AUTH message must precede all others when a
// token is configured").
type Session struct {
	registry      *tasks.Registry
	token         string
	state         *State
	log           *logger.Logger
	authenticated bool
}

// New creates a Session bound to the given registry, shared state, and
// optional shared-secret token ("" disables AUTH entirely).
func New(registry *tasks.Registry, state *State, token string, log *logger.Logger) *Session {
	return &Session{registry: registry, token: token, state: state, log: log}
}

// Run drives ep until the peer closes the connection or an EXIT message is
// fully processed, in which case State.ExitRequested is left set so the
// caller's accept loop can stop after this connection ends.
func (s *Session) Run(ep *stream.Endpoint) error {
	for {
		msg, err := ep.Recv()
		if err != nil {
			return fmt.Errorf("session: recv: %w", err)
		}
		if msg == nil {
			return nil
		}

		if err := s.dispatch(ep, *msg); err != nil {
			if errors.Is(err, errSessionTerminated) {
				return nil
			}
			return err
		}
	}
}

func (s *Session) dispatch(ep *stream.Endpoint, msg protocol.Message) error {
	if msg.Type == protocol.AUTH {
		return s.handleAuth(ep, msg)
	}

	tokenConfigured := s.token != ""
	if tokenConfigured && !s.authenticated {
		s.log.Warn(fmt.Sprintf("%s received before authentication, ignoring", msg.Type))
		return nil
	}

	switch msg.Type {
	case protocol.INIT:
		return s.handleInit(ep, msg)
	case protocol.EXEC:
		return s.handleExec(ep, msg)
	case protocol.EXIT:
		return s.handleExit(ep, msg)
	default:
		s.log.Warn(fmt.Sprintf("unexpected message type %s, ignoring", msg.Type))
		return nil
	}
}

func (s *Session) handleAuth(ep *stream.Endpoint, msg protocol.Message) error {
	if s.authenticated {
		return s.respond(ep, protocol.OK, "Authentication successful.")
	}
	if s.token == "" {
		s.authenticated = true
		return s.respond(ep, protocol.OK, "Authentication successful.")
	}

	candidate, _ := msg.Args["token"].(string)
	if !auth.Equal(s.token, candidate) {
		return s.respond(ep, protocol.ERROR, "Invalid client authentication.")
	}
	s.authenticated = true
	return s.respond(ep, protocol.OK, "Authentication successful.")
}

func (s *Session) handleInit(ep *stream.Endpoint, msg protocol.Message) error {
	if s.state.Initialized {
		return s.respond(ep, protocol.ERROR, "Already initialized.")
	}

	names := tasks.Names{
		Init: stringArg(msg.Args, "init_task"),
		Exec: stringArg(msg.Args, "exec_task"),
		Exit: stringArg(msg.Args, "exit_task"),
	}
	if err := s.registry.Resolve(names); err != nil {
		return s.respond(ep, protocol.ERROR, "unknown task")
	}

	initFn, err := s.registry.Init(names.Init)
	if err != nil {
		return s.respond(ep, protocol.ERROR, "unknown task")
	}
	userState, err := initFn()
	if err != nil {
		return fmt.Errorf("session: init task: %w", err)
	}
	if userState == nil {
		userState = map[string]any{}
	}

	s.state.Names = names
	s.state.UserState = userState
	s.state.Initialized = true
	return s.respond(ep, protocol.OK, "Initialization successful.")
}

func (s *Session) handleExec(ep *stream.Endpoint, msg protocol.Message) error {
	if !s.state.Initialized {
		s.log.Warn("EXEC received before initialization, ignoring")
		return nil
	}

	execFn, err := s.registry.Exec(s.state.Names.Exec)
	if err != nil {
		return fmt.Errorf("session: exec task: %w", err)
	}
	newState, err := execFn(ep, s.state.UserState, msg.Args)
	if err != nil {
		return fmt.Errorf("session: exec task: %w", err)
	}
	s.state.UserState = newState
	return nil
}

func (s *Session) handleExit(ep *stream.Endpoint, msg protocol.Message) error {
	s.state.ExitRequested = true
	if !s.state.Initialized {
		return errSessionTerminated
	}

	exitFn, err := s.registry.Exit(s.state.Names.Exit)
	if err != nil {
		return fmt.Errorf("session: exit task: %w", err)
	}
	if err := exitFn(ep, s.state.UserState, msg.Args); err != nil {
		return fmt.Errorf("session: exit task: %w", err)
	}
	return errSessionTerminated
}

func (s *Session) respond(ep *stream.Endpoint, t protocol.MessageType, message string) error {
	err := ep.SendResponse(protocol.New(t, map[string]any{"message": message}))
	if err != nil {
		return fmt.Errorf("session: respond: %w", err)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
