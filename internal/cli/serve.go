// Package cli — serve.go implements the root command's serving logic.
//
// Configuration is resolved here: defaults, then the config file (explicit
// --config or a discovered .devserve.* file), then DEVSERVE_* environment
// variables, then any flag the user actually set. --print-config shows the
// result without starting the server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/devserve/internal/app"
	"github.com/shinji-kodama/devserve/internal/browser"
	"github.com/shinji-kodama/devserve/internal/config"
	"github.com/shinji-kodama/devserve/internal/logging"
	"github.com/shinji-kodama/devserve/internal/model"
	"github.com/shinji-kodama/devserve/internal/server"
)

// serveFlags holds the flag values for the root (serve) command that are
// not configuration keys. Every other serve flag is read back through
// changedFlags.
type serveFlags struct {
	configPath  string
	printConfig bool
}

// flagKeys maps serve flags onto config keys. --no-browser is handled
// separately because it is the inverse of open_browser.
var flagKeys = map[string]string{
	"root":           config.KeyRoot,
	"state-dir":      config.KeyStateDir,
	"port":           config.KeyPort,
	"slow-threshold": config.KeySlowThreshold,
	"gzip":           config.KeyGzip,
	"metrics":        config.KeyMetrics,
	"log-level":      config.KeyLogLevel,
	"log-format":     config.KeyLogFormat,
}

// registerServeFlags binds serve flags to cmd. Defaults mirror
// config.Default so that --help shows the effective values.
func registerServeFlags(cmd *cobra.Command, flags *serveFlags) {
	def := config.Default()
	fs := cmd.Flags()

	fs.StringVarP(&flags.configPath, "config", "c", "",
		"Config file (.yaml, .yml, .json, .jsonc); default: .devserve.{yaml,yml,json} if present")
	fs.BoolVar(&flags.printConfig, "print-config", false, "Print the resolved configuration and exit")
	fs.String("root", def.Root, "Document root to serve")
	fs.String("state-dir", def.StateDir, "Directory for the .server-pid and .server-port files")
	fs.IntP("port", "p", def.Port, "Preferred port; falls back to a free port when busy (0: always pick a free port)")
	fs.Duration("slow-threshold", def.SlowThreshold, "Log requests that take at least this long")
	fs.Bool("no-browser", !def.OpenBrowser, "Do not open a browser on startup")
	fs.Bool("gzip", def.Gzip, "Compress responses when the client accepts gzip")
	fs.Bool("metrics", def.Metrics, "Expose Prometheus metrics at "+server.MetricsPath)
	fs.String("log-level", def.LogLevel, "Log level: trace, debug, info, warn, error")
	fs.String("log-format", def.LogFormat, "Log format: text, json")
}

// changedFlags returns the serve flags the user actually set, keyed by
// config key. Values are the flags' string forms; the config loader
// decodes them.
func changedFlags(fs *pflag.FlagSet) map[string]any {
	set := make(map[string]any)
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "no-browser" {
			set[config.KeyOpenBrowser] = f.Value.String() != "true"
			return
		}
		if key, ok := flagKeys[f.Name]; ok {
			set[key] = f.Value.String()
		}
	})
	return set
}

// resolveConfig merges defaults, config file, environment and flags, and
// validates the result. Every failure is reported as ExitConfigError.
func resolveConfig(cmd *cobra.Command, flags *serveFlags) (config.Config, error) {
	loader := config.NewLoader()

	path := flags.configPath
	if path == "" {
		path = config.Discover(".")
	}
	if path != "" {
		if err := loader.LoadFile(path); err != nil {
			var cliErr *model.CLIError
			if errors.As(err, &cliErr) {
				return config.Config{}, err
			}
			return config.Config{}, model.WrapCLIError(model.ExitConfigError, "invalid config file", err)
		}
	}

	if err := loader.LoadEnv(); err != nil {
		return config.Config{}, model.WrapCLIError(model.ExitConfigError, "invalid environment", err)
	}

	// Only flags the user set override lower-priority sources.
	if err := loader.LoadMap(changedFlags(cmd.Flags())); err != nil {
		return config.Config{}, model.WrapCLIError(model.ExitConfigError, "invalid flags", err)
	}

	cfg, err := loader.Config()
	if err != nil {
		return cfg, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}
	return cfg, nil
}

// printResolvedConfig writes cfg as YAML, or as JSON with --json.
func printResolvedConfig(w io.Writer, cfg config.Config) error {
	render := cfg.YAML
	if IsJSONOutput() {
		render = cfg.JSON
	}
	data, err := render()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = w.Write(data)
	if err == nil && IsJSONOutput() {
		_, err = fmt.Fprintln(w)
	}
	return err
}

// runServe resolves the configuration, builds the collaborators and runs
// the server until ctx is cancelled.
func runServe(ctx context.Context, cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}
	if flags.printConfig {
		return printResolvedConfig(cmd.OutOrStdout(), cfg)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "invalid logging configuration", err)
	}

	deps := app.Deps{
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	}
	if cfg.OpenBrowser {
		deps.Browser = browser.New()
	}
	if cfg.Metrics {
		deps.Metrics = server.NewMetrics()
	}

	return app.New(cfg, deps).Run(ctx)
}
