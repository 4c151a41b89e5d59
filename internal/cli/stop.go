// Package cli — stop.go implements the "devserve stop" command.
//
// The stop command sends SIGTERM to the PID recorded in .server-pid. The
// server removes its discovery files itself as part of shutdown.
//
// A record whose port nobody listens on is stale: the server died without
// cleaning up and its PID may since have been reused by an unrelated
// process. Stale records are never signalled.
package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devserve/internal/model"
	"github.com/shinji-kodama/devserve/internal/port"
)

// signalProcess delivers sig to pid. Tests replace it to avoid signalling
// real processes.
var signalProcess = func(pid int, sig os.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

// NewStopCommand creates the "stop" cobra command.
func NewStopCommand() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the devserve instance recorded in the state directory",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := collectStatus(stateDir, port.NewScanner())
			if err != nil {
				return err
			}
			if !result.Listening {
				return model.NewCLIError(model.ExitNotRunning,
					fmt.Sprintf("stale record in %s: nothing is listening on port %d, not signalling pid %d",
						stateDir, result.Port, result.PID))
			}

			if err := signalProcess(result.PID, syscall.SIGTERM); err != nil {
				return model.WrapCLIError(model.ExitNotRunning,
					fmt.Sprintf("failed to stop devserve (pid %d)", result.PID), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to devserve (pid %d, port %d)\n", result.PID, result.Port)
			return nil
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", ".", "Directory containing the discovery files")
	return cmd
}
