package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSlowThreshold is the minimum handling time for a request to be
// reported as slow.
const DefaultSlowThreshold = 100 * time.Millisecond

// EnvPrefix is the prefix of every environment variable read by LoadEnv.
const EnvPrefix = "DEVSERVE_"

// candidateFiles are probed, in order, by Discover.
var candidateFiles = []string{".devserve.yaml", ".devserve.yml", ".devserve.json"}

// Config holds every setting of a devserve run.
type Config struct {
	// Root is the document root served over HTTP.
	Root string

	// StateDir is where the .server-pid and .server-port records are written.
	StateDir string

	// Port is the preferred TCP port. 0 selects an ephemeral port.
	Port int

	// SlowThreshold is the handling time at or above which a request is logged.
	SlowThreshold time.Duration

	// OpenBrowser controls whether the base URL is opened on startup.
	OpenBrowser bool

	// Gzip enables transparent response compression.
	Gzip bool

	// Metrics exposes Prometheus metrics under MetricsPath.
	Metrics bool

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string
}

// Default returns the built-in configuration: serve the working directory
// on an ephemeral port and open a browser.
func Default() Config {
	return Config{
		Root:          ".",
		StateDir:      ".",
		Port:          0,
		SlowThreshold: DefaultSlowThreshold,
		OpenBrowser:   true,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Discover returns the first config file present in dir, or "" if none is.
func Discover(dir string) string {
	for _, name := range candidateFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// ParseThreshold parses a slow-request threshold. Go duration syntax
// ("250ms", "1s") is accepted, and so is a bare number of milliseconds.
func ParseThreshold(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, fmt.Errorf("invalid slow threshold %q: not a finite number", s)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid slow threshold %q: %w", s, err)
	}
	return d, nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range (0-65535)", c.Port)
	}
	if c.SlowThreshold < 0 {
		return fmt.Errorf("slow threshold %s must not be negative", c.SlowThreshold)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: trace, debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: text, json)", c.LogFormat)
	}

	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("document root %q: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root %q is not a directory", c.Root)
	}
	return nil
}
