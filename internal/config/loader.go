package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/devserve/internal/model"
)

// Keys of the flat configuration namespace shared by files, environment
// variables (DEVSERVE_<KEY>, upper-cased) and flags.
const (
	KeyRoot          = "root"
	KeyStateDir      = "state_dir"
	KeyPort          = "port"
	KeySlowThreshold = "slow_threshold"
	KeyOpenBrowser   = "open_browser"
	KeyGzip          = "gzip"
	KeyMetrics       = "metrics"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

// keyNoBrowser is the environment-only inverse of KeyOpenBrowser.
const keyNoBrowser = "no_browser"

// values is the decoded form of the merged layers. SlowThreshold stays a
// string so that bare numbers keep their millisecond meaning: numbers from
// YAML or JSON are weakly converted to their decimal text first.
type values struct {
	Root          string `koanf:"root" yaml:"root" json:"root"`
	StateDir      string `koanf:"state_dir" yaml:"state_dir" json:"state_dir"`
	Port          int    `koanf:"port" yaml:"port" json:"port"`
	SlowThreshold string `koanf:"slow_threshold" yaml:"slow_threshold" json:"slow_threshold"`
	OpenBrowser   bool   `koanf:"open_browser" yaml:"open_browser" json:"open_browser"`
	Gzip          bool   `koanf:"gzip" yaml:"gzip" json:"gzip"`
	Metrics       bool   `koanf:"metrics" yaml:"metrics" json:"metrics"`
	LogLevel      string `koanf:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat     string `koanf:"log_format" yaml:"log_format" json:"log_format"`
}

func (c Config) values() values {
	return values{
		Root:          c.Root,
		StateDir:      c.StateDir,
		Port:          c.Port,
		SlowThreshold: c.SlowThreshold.String(),
		OpenBrowser:   c.OpenBrowser,
		Gzip:          c.Gzip,
		Metrics:       c.Metrics,
		LogLevel:      c.LogLevel,
		LogFormat:     c.LogFormat,
	}
}

// Loader merges configuration layers. Each Load call overrides the keys
// it sets; the intended order is defaults (loaded by NewLoader), then
// LoadFile, then LoadEnv, then LoadMap with the flags the user set.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader creates a Loader holding the built-in defaults.
func NewLoader() *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}

	d := Default()
	// A map provider cannot fail.
	_ = l.LoadMap(map[string]any{
		KeyRoot:          d.Root,
		KeyStateDir:      d.StateDir,
		KeyPort:          d.Port,
		KeySlowThreshold: d.SlowThreshold.String(),
		KeyOpenBrowser:   d.OpenBrowser,
		KeyGzip:          d.Gzip,
		KeyMetrics:       d.Metrics,
		KeyLogLevel:      d.LogLevel,
		KeyLogFormat:     d.LogFormat,
	})
	return l
}

// LoadFile merges the config file at path. The format is chosen by
// extension: .yaml/.yml or .json/.jsonc. JSON files may carry comments and
// trailing commas.
func (l *Loader) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %s is a directory", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := l.k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json", ".jsonc":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := l.k.Load(rawbytes.Provider(jsonc.ToJSON(data)), kjson.Parser()); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (valid: .yaml, .yml, .json, .jsonc)", ext)
	}
	return nil
}

// LoadEnv merges DEVSERVE_* environment variables. DEVSERVE_STATE_DIR maps
// to state_dir and so on; DEVSERVE_NO_BROWSER is the inverse of
// open_browser. Empty variables are treated as unset.
func (l *Loader) LoadEnv() error {
	var invalid error

	provider := env.ProviderWithValue(l.envPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		name := strings.ToLower(strings.TrimPrefix(key, l.envPrefix))
		if name != keyNoBrowser {
			return name, value
		}
		noBrowser, err := strconv.ParseBool(value)
		if err != nil {
			invalid = fmt.Errorf("invalid %s %q: %w", key, value, err)
			return "", nil
		}
		return KeyOpenBrowser, !noBrowser
	})

	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return invalid
}

// LoadMap merges data, keyed by the Key* constants.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Config decodes the merged layers. It does not call Validate.
func (l *Loader) Config() (Config, error) {
	var v values
	if err := l.k.Unmarshal("", &v); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	threshold, err := ParseThreshold(v.SlowThreshold)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Root:          v.Root,
		StateDir:      v.StateDir,
		Port:          v.Port,
		SlowThreshold: threshold,
		OpenBrowser:   v.OpenBrowser,
		Gzip:          v.Gzip,
		Metrics:       v.Metrics,
		LogLevel:      v.LogLevel,
		LogFormat:     v.LogFormat,
	}, nil
}

// YAML renders c in the config file format.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.values())
}

// JSON renders c in the JSON config file format.
func (c Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c.values(), "", "  ")
}
