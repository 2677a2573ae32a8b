// Package tasks implements bgo's symbolic task dispatch: the embedding
// program registers Go functions under string names, and the wire protocol
// carries only those names (spec.md §4.2/§9 — Go has no equivalent to
// shipping a pickled callable, so INIT/EXEC/EXIT reference a
// pre-registered table instead).
package tasks

import (
	"fmt"
	"sync"

	"github.com/munterfi/bgo/internal/stream"
)

// InitFunc runs once at session initialization and returns the initial
// user state threaded through subsequent exec calls.
type InitFunc func() (map[string]any, error)

// ExecFunc runs against the current user state and an EXEC message's
// arguments, returning the replacement user state. It may emit an
// additional response on ep before returning (spec.md §4.3's "second
// response").
type ExecFunc func(ep *stream.Endpoint, state map[string]any, args map[string]any) (map[string]any, error)

// ExitFunc runs once at session termination, with the same arguments as
// ExecFunc. It returns only an error, not a new user state; any final
// response must be sent explicitly via ep.
type ExitFunc func(ep *stream.Endpoint, state map[string]any, args map[string]any) error

// ErrUnknownTask is returned when an INIT message names a task that was
// never registered.
var ErrUnknownTask = fmt.Errorf("tasks: unknown task")

// Registry is the in-process table of named task procedures. A Registry is
// safe for concurrent use, though in practice registration happens once at
// startup before the server's single accept goroutine begins dispatching.
type Registry struct {
	mu    sync.RWMutex
	init  map[string]InitFunc
	exec  map[string]ExecFunc
	exit  map[string]ExitFunc
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		init: make(map[string]InitFunc),
		exec: make(map[string]ExecFunc),
		exit: make(map[string]ExitFunc),
	}
}

// RegisterInit binds name to an init task.
func (r *Registry) RegisterInit(name string, fn InitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init[name] = fn
}

// RegisterExec binds name to an exec task.
func (r *Registry) RegisterExec(name string, fn ExecFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec[name] = fn
}

// RegisterExit binds name to an exit task.
func (r *Registry) RegisterExit(name string, fn ExitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exit[name] = fn
}

// Init resolves name to a registered InitFunc.
func (r *Registry) Init(name string) (InitFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.init[name]
	if !ok {
		return nil, fmt.Errorf("%w: init task %q", ErrUnknownTask, name)
	}
	return fn, nil
}

// Exec resolves name to a registered ExecFunc.
func (r *Registry) Exec(name string) (ExecFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.exec[name]
	if !ok {
		return nil, fmt.Errorf("%w: exec task %q", ErrUnknownTask, name)
	}
	return fn, nil
}

// Exit resolves name to a registered ExitFunc.
func (r *Registry) Exit(name string) (ExitFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.exit[name]
	if !ok {
		return nil, fmt.Errorf("%w: exit task %q", ErrUnknownTask, name)
	}
	return fn, nil
}

// Names is the resolved triple of task names bound to a session at INIT.
type Names struct {
	Init string
	Exec string
	Exit string
}

// Resolve validates that all three names in n are present in r, returning
// ErrUnknownTask (wrapping the first missing name) if not.
func (r *Registry) Resolve(n Names) error {
	if _, err := r.Init(n.Init); err != nil {
		return err
	}
	if _, err := r.Exec(n.Exec); err != nil {
		return err
	}
	if _, err := r.Exit(n.Exit); err != nil {
		return err
	}
	return nil
}
