package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/devserve/internal/config"
	"github.com/shinji-kodama/devserve/internal/model"
)

// newServeCommand builds a bare command carrying the serve flags and
// parses args into it.
func newServeCommand(t *testing.T, args ...string) (*cobra.Command, *serveFlags) {
	t.Helper()
	flags := &serveFlags{}
	cmd := &cobra.Command{Use: "devserve"}
	registerServeFlags(cmd, flags)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, flags
}

// TestResolveConfig_Defaults verifies that with no file, env or flags the
// built-in defaults are used.
func TestResolveConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cmd, flags := newServeCommand(t)

	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

// TestResolveConfig_Priority checks flags > env > file > defaults.
func TestResolveConfig_Priority(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "public"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".devserve.yaml"), []byte(`
root: public
port: 7000
slow_threshold: 300ms
log_format: json
`), 0o644))

	t.Setenv("DEVSERVE_PORT", "7100")
	t.Setenv("DEVSERVE_SLOW_THRESHOLD", "400ms")
	t.Setenv("DEVSERVE_GZIP", "true")

	cmd, flags := newServeCommand(t, "--port", "7200", "--no-browser", "--gzip=false")

	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, "public", cfg.Root, "file value kept")
	assert.Equal(t, "json", cfg.LogFormat, "file value kept")
	assert.Equal(t, 400*time.Millisecond, cfg.SlowThreshold, "env beats file")
	assert.Equal(t, 7200, cfg.Port, "flag beats env")
	assert.False(t, cfg.OpenBrowser)
	assert.False(t, cfg.Gzip, "explicit false flag beats env")
}

func TestResolveConfig_ExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "site.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"gzip": true, /* on */ "metrics": true}`), 0o644))

	cmd, flags := newServeCommand(t, "--config", path)
	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)
	assert.True(t, cfg.Gzip)
	assert.True(t, cfg.Metrics)
}

func TestResolveConfig_Verbose(t *testing.T) {
	chdir(t, t.TempDir())
	verbose = true
	defer func() { verbose = false }()

	cmd, flags := newServeCommand(t, "--log-level", "error")
	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

// TestResolveConfig_Errors verifies that every configuration problem maps
// to ExitConfigError.
func TestResolveConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing config file", []string{"--config", "does-not-exist.yaml"}, nil},
		{"missing root", []string{"--root", "does-not-exist"}, nil},
		{"bad port", []string{"--port", "70000"}, nil},
		{"bad log level", []string{"--log-level", "loud"}, nil},
		{"bad env port", nil, map[string]string{"DEVSERVE_PORT": "eighty"}},
		{"bad env no-browser", nil, map[string]string{"DEVSERVE_NO_BROWSER": "maybe"}},
		{"non-finite env threshold", nil, map[string]string{"DEVSERVE_SLOW_THRESHOLD": "NaN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cmd, flags := newServeCommand(t, tt.args...)

			_, err := resolveConfig(cmd, flags)
			require.Error(t, err)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitConfigError, cliErr.Code)
		})
	}
}

func TestChangedFlags(t *testing.T) {
	cmd, _ := newServeCommand(t, "--slow-threshold", "250ms", "--state-dir", "run", "--no-browser=false")

	assert.Equal(t, map[string]any{
		config.KeySlowThreshold: "250ms",
		config.KeyStateDir:      "run",
		config.KeyOpenBrowser:   true,
	}, changedFlags(cmd.Flags()))
}

func TestPrintResolvedConfig(t *testing.T) {
	cfg := config.Default()

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResolvedConfig(&buf, cfg))
		assert.Contains(t, buf.String(), "slow_threshold: 100ms")
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		defer func() { jsonOutput = false }()

		var buf bytes.Buffer
		require.NoError(t, printResolvedConfig(&buf, cfg))
		assert.Contains(t, buf.String(), `"log_level": "info"`)
	})
}

// TestNewRootCommand verifies the command tree and that stray positional
// arguments are rejected.
func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "devserve", root.Use)

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"status", "stop"}, names)

	for _, name := range []string{"config", "root", "state-dir", "port", "slow-threshold", "no-browser", "gzip", "metrics", "log-level", "log-format", "print-config"} {
		assert.NotNil(t, root.Flags().Lookup(name), "flag --%s should exist", name)
	}

	assert.Error(t, root.Args(root, []string{"extra"}))
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
