package bgserver_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/munterfi/bgo/internal/bgserver"
	"github.com/munterfi/bgo/internal/client"
	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/netutil"
	"github.com/munterfi/bgo/internal/stream"
	"github.com/munterfi/bgo/internal/tasks"
)

type registryFixture struct {
	InitTask string `yaml:"init_task"`
	ExecTask string `yaml:"exec_task"`
	ExitTask string `yaml:"exit_task"`
}

func writeRegistryFixture(t *testing.T, path string, f registryFixture) {
	t.Helper()
	content, err := yaml.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

func freePort(t *testing.T) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ln, err := netutil.Bind(ctx, "127.0.0.1", 0)
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func registerCountingTasks(r *tasks.Registry) {
	r.RegisterInit("init", func() (map[string]any, error) {
		return map[string]any{"n": 0}, nil
	})
	r.RegisterExec("exec", func(_ *stream.Endpoint, state, _ map[string]any) (map[string]any, error) {
		n, _ := state["n"].(int)
		return map[string]any{"n": n + 1}, nil
	})
	r.RegisterExit("exit", func(_ *stream.Endpoint, _, _ map[string]any) error { return nil })
}

func TestServerRunStopsOnContextCancel(t *testing.T) {
	log, err := logger.New()
	require.NoError(t, err)

	registry := tasks.NewRegistry()
	srv := bgserver.New("127.0.0.1", freePort(t), "", registry, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestServerLoadInitFileMarksInitialized(t *testing.T) {
	log, err := logger.New()
	require.NoError(t, err)

	registry := tasks.NewRegistry()
	registerCountingTasks(registry)

	path := filepath.Join(t.TempDir(), "registry.yaml")
	writeRegistryFixture(t, path, registryFixture{InitTask: "init", ExecTask: "exec", ExitTask: "exit"})

	port := freePort(t)
	srv := bgserver.New("127.0.0.1", port, "", registry, log)
	require.NoError(t, srv.LoadInitFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	c := client.New("127.0.0.1", port, "", log)
	_, err = c.Initialize(context.Background(), "init", "exec", "exit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Already initialized.")

	_, _ = c.Terminate(context.Background(), map[string]any{}, false)
	<-done
}

func TestServerInitFileThenClientExecute(t *testing.T) {
	log, err := logger.New()
	require.NoError(t, err)

	registry := tasks.NewRegistry()
	registerCountingTasks(registry)

	path := filepath.Join(t.TempDir(), "registry.yaml")
	writeRegistryFixture(t, path, registryFixture{InitTask: "init", ExecTask: "exec", ExitTask: "exit"})

	port := freePort(t)
	srv := bgserver.New("127.0.0.1", port, "", registry, log)
	require.NoError(t, srv.LoadInitFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	c := client.New("127.0.0.1", port, "", log)
	_, err = c.Execute(context.Background(), map[string]any{}, false)
	require.NoError(t, err)

	_, _ = c.Terminate(context.Background(), map[string]any{}, false)
	<-done
}
