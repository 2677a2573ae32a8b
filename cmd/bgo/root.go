package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// exit codes
const (
	exitOK         = 0
	exitConnection = 1
	exitINT        = 130
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bgo",
		Short:         "Backgrounded, symbolically-dispatched task server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newTerminateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// parseHostPort validates the positional HOST and PORT arguments shared by
// the server and terminate subcommands.
func parseHostPort(hostArg, portArg string) (string, int, error) {
	port, err := strconv.Atoi(portArg)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portArg, err)
	}
	return hostArg, port, nil
}
