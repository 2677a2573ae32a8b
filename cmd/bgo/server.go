package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/munterfi/bgo/examples/counter"
	"github.com/munterfi/bgo/internal/auth"
	"github.com/munterfi/bgo/internal/bgserver"
	"github.com/munterfi/bgo/internal/logger"
	"github.com/munterfi/bgo/internal/tasks"
)

type serverConfig struct {
	logLevel string
	logFile  string
	initFile string
	prompt   bool
}

func newServerCmd() *cobra.Command {
	cfg := &serverConfig{}
	cmd := &cobra.Command{
		Use:   "server HOST PORT",
		Short: "Run a bgo server",
		Long: "Run a bgo server on the given host and port. Before a client calls " +
			"Initialize, EXEC requests are confirmed but ignored, and an EXIT " +
			"request stops the server without running an exit task.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, args, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.logLevel, "log-level", bgserver.DefaultLogLvl, "log level: DEBUG, INFO, WARNING, ERROR")
	f.StringVar(&cfg.logFile, "log-file", "", "also write logs to this file")
	f.StringVar(&cfg.initFile, "init-file", "", "registry file naming init/exec/exit tasks to bind before accepting connections")
	f.BoolVarP(&cfg.prompt, "token", "t", false, "prompt for a shared-secret token (no local echo)")
	return cmd
}

func runServer(cmd *cobra.Command, args []string, cfg *serverConfig) error {
	host, port, err := parseHostPort(args[0], args[1])
	if err != nil {
		return err
	}

	token := auth.GetEnv()
	if cfg.prompt {
		token, err = promptToken(cmd)
		if err != nil {
			return err
		}
	}

	log, err := logger.New(logger.Level(cfg.logLevel), logger.File(cfg.logFile), logger.Tag("Server"))
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	defer func() { _ = log.Close() }()

	registry := tasks.NewRegistry()
	counter.Register(registry)

	srv := bgserver.New(host, port, token, registry, log)

	if cfg.initFile != "" {
		if err := srv.LoadInitFile(cfg.initFile); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	if err := srv.Run(cmd.Context()); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// promptToken reads a token from the terminal with no local echo, the same
// golang.org/x/term dependency the teacher uses for TTY/terminal handling.
func promptToken(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Token: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(data), nil
}
