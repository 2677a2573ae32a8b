package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/munterfi/bgo/internal/auth"
	"github.com/munterfi/bgo/internal/client"
	"github.com/munterfi/bgo/internal/logger"
)

type terminateConfig struct {
	logLevel string
	logFile  string
	prompt   bool
}

func newTerminateCmd() *cobra.Command {
	cfg := &terminateConfig{}
	cmd := &cobra.Command{
		Use:   "terminate HOST PORT",
		Short: "Terminate a bgo server",
		Long:  "Terminate a bgo server listening on the given host and port.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminate(cmd, args, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.logLevel, "log-level", "INFO", "log level: DEBUG, INFO, WARNING, ERROR")
	f.StringVar(&cfg.logFile, "log-file", "", "also write logs to this file")
	f.BoolVarP(&cfg.prompt, "token", "t", false, "prompt for a shared-secret token (no local echo)")
	return cmd
}

func runTerminate(cmd *cobra.Command, args []string, cfg *terminateConfig) error {
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

	log, err := logger.New(logger.Level(cfg.logLevel), logger.File(cfg.logFile), logger.Tag("Client"))
	if err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	defer func() { _ = log.Close() }()

	c := client.New(host, port, token, log)
	if _, err := c.Terminate(cmd.Context(), map[string]any{}, false); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Server terminated.")
	return nil
}
