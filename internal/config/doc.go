// Package config loads devserve settings.
//
// Settings are merged with koanf in priority order: command-line flags
// (passed in by the cli package) > DEVSERVE_* environment variables >
// config file > built-in defaults. Config files may be YAML or JSON with
// comments; the latter are stripped with github.com/tidwall/jsonc before
// koanf's JSON parser sees them.
package config
