// Package cli implements the cobra-based CLI for devserve.
//
// Running the root command with no arguments starts serving the working
// directory immediately. The status and stop subcommands are the consumer
// side of the discovery files: they locate a running instance through
// .server-pid and .server-port.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devserve/internal/model"
)

// Global flag variables shared across all subcommands.
var (
	// jsonOutput controls whether command output and errors are JSON.
	jsonOutput bool

	// verbose forces debug-level logging.
	verbose bool
)

// Version, Commit and Date are injected from the main package, which
// receives them through ldflags at release time.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// Unlike a pure command group, the root command does real work: it runs
// the dev server. Subcommands inspect or stop an instance started
// elsewhere.
func NewRootCommand() *cobra.Command {
	flags := &serveFlags{}

	rootCmd := &cobra.Command{
		Use:   "devserve",
		Short: "Serve the current directory over HTTP on a free port",
		Long: `devserve serves the current directory as static files on a free,
OS-assigned TCP port and opens it in the browser.

The process ID and port are written to .server-pid and .server-port so
other tooling can find the running server. Both files are removed when
the server stops (Ctrl+C or SIGTERM).

Requests that take 100ms or longer are logged.`,

		// Positional arguments are not accepted; everything is a flag.
		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors lets Execute format errors (text or JSON).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, flags)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	registerServeFlags(rootCmd, flags)

	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewStopCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
//
// SIGINT and SIGTERM cancel the command context; the server treats that
// as a clean shutdown, so a signal ends the process with exit code 0.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		return
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(cliErr.Message, cliErr.Err)
		os.Exit(int(cliErr.Code))
	}

	// Generic error: exit with code 1.
	printError(err.Error(), nil)
	os.Exit(int(model.ExitGeneralError))
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors always go to
// stderr; stdout is reserved for command output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
