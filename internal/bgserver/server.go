// Package bgserver is the bgo server façade: the accept loop, the
// subprocess-based RunBackground helper used by tests and the CLI's
// `bgo server` command, and file-based pre-initialization (spec.md §4.7).
package bgserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/netutil"
	"github.com/munterfi/bgo/internal/session"
	"github.com/munterfi/bgo/internal/stream"
	"github.com/munterfi/bgo/internal/tasks"
)

// Defaults mirror spec.md §6.
const (
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 54321
	StartupTime   = time.Second
	DefaultLogLvl = "INFO"
)

// Server accepts connections one at a time and dispatches each through a
// session.Session against state shared across the server's lifetime.
type Server struct {
	Host  string
	Port  int
	Token string

	registry *tasks.Registry
	log      *logger.Logger
	state    *session.State
}

// New returns a Server bound to host:port, dispatching against registry.
// An empty token disables the AUTH handshake.
func New(host string, port int, token string, registry *tasks.Registry, log *logger.Logger) *Server {
	return &Server{
		Host:     host,
		Port:     port,
		Token:    token,
		registry: registry,
		log:      log,
		state:    &session.State{},
	}
}

// LoadInitFile resolves a registry file's three task names against the
// server's registry, runs the init task immediately, and marks the server
// initialized before Run ever accepts a connection (spec.md §4.7).
func (s *Server) LoadInitFile(path string) error {
	cfg, err := tasks.LoadFile(path)
	if err != nil {
		return fmt.Errorf("bgserver: load init file: %w", err)
	}
	names := cfg.Names()
	if err := s.registry.Resolve(names); err != nil {
		return fmt.Errorf("bgserver: load init file: %w", err)
	}
	initFn, err := s.registry.Init(names.Init)
	if err != nil {
		return fmt.Errorf("bgserver: load init file: %w", err)
	}
	userState, err := initFn()
	if err != nil {
		return fmt.Errorf("bgserver: init file task: %w", err)
	}
	if userState == nil {
		userState = map[string]any{}
	}

	s.state.Names = names
	s.state.UserState = userState
	s.state.Initialized = true
	return nil
}

// Run binds the server's address and accepts connections one at a time,
// each driven by its own session.Session against the shared state, until
// an EXIT message is processed or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := netutil.Bind(ctx, s.Host, s.Port)
	if err != nil {
		return fmt.Errorf("bgserver: run: %w", err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info(fmt.Sprintf("listening on %s:%d", s.Host, s.Port))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bgserver: run: %w", err)
		}

		ep := stream.New(conn)
		sess := session.New(s.registry, s.state, s.Token, s.log)
		if err := sess.Run(ep); err != nil {
			s.log.Error(fmt.Sprintf("session error: %v", err))
		}
		_ = ep.Close()

		if s.state.ExitRequested {
			return nil
		}
	}
}

// RunBackground spawns the current executable as `<argv0> server <host>
// <port>` and waits StartupTime before returning, mirroring the source's
// subprocess-based test harness (spec.md §4.7). The caller is responsible
// for stopping the returned process (e.g. via Client.Terminate).
func (s *Server) RunBackground(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, os.Args[0], "server", s.Host, fmt.Sprintf("%d", s.Port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if s.Token != "" {
		cmd.Env = append(cmd.Env, "BGO_TOKEN="+s.Token)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bgserver: run background: %w", err)
	}
	time.Sleep(StartupTime)
	return cmd, nil
}
