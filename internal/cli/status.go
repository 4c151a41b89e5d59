// Package cli — status.go implements the "devserve status" command.
//
// The status command reads the discovery files of an instance and checks
// whether something is still listening on the recorded port. A record
// whose port is free again is reported as stale: the server was killed
// without running its cleanup.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devserve/internal/discovery"
	"github.com/shinji-kodama/devserve/internal/model"
	"github.com/shinji-kodama/devserve/internal/port"
)

// statusResult is what the status command reports.
type statusResult struct {
	PID       int    `json:"pid"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
	Listening bool   `json:"listening"`
}

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the devserve instance recorded in the state directory",
		Long: `Read .server-pid and .server-port and report the recorded instance.

Examples:
  devserve status
  devserve status --json --state-dir ../site`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := collectStatus(stateDir, port.NewScanner())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", ".", "Directory containing the discovery files")
	return cmd
}

// collectStatus reads the discovery records in stateDir and probes the
// recorded port.
func collectStatus(stateDir string, scanner *port.Scanner) (statusResult, error) {
	state, err := discovery.Read(stateDir)
	if err != nil {
		return statusResult{}, model.WrapCLIError(model.ExitNotRunning,
			fmt.Sprintf("no devserve instance recorded in %s", stateDir), err)
	}

	return statusResult{
		PID:  state.PID,
		Port: state.Port,
		URL:  state.BaseURL(),
		// A port that can be bound is one nobody is listening on.
		Listening: !scanner.IsPortAvailable(state.Port),
	}, nil
}

// printStatus outputs the status in text or JSON format.
func printStatus(w io.Writer, result statusResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	state := "running"
	if !result.Listening {
		state = "stale (nothing is listening on the recorded port)"
	}
	fmt.Fprintf(w, "devserve %s\n", state)
	fmt.Fprintf(w, "  PID:  %d\n", result.PID)
	fmt.Fprintf(w, "  Port: %d\n", result.Port)
	fmt.Fprintf(w, "  URL:  %s\n", result.URL)
}
