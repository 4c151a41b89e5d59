package config

import "errors"

// errReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var errReadBytesNotSupported = errors.New("config: map provider only supports Read")

// mapProvider is a koanf provider backed by an in-memory map. It carries
// the defaults and the flags the user set.
type mapProvider map[string]any

// ReadBytes is not supported; koanf uses Read when no parser is given.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
