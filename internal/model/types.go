package model

import (
	"fmt"
	"strconv"
	"strings"
)

// State represents the lifecycle state of a devserve instance.
// The state transitions are:
//
//	Idle → PortAllocated → DiscoveryPersisted → Serving → ShuttingDown → Terminated
//
// ShuttingDown can also be entered from any earlier state when startup
// fails (for example when the listener cannot bind).
type State string

const (
	// StateIdle is the initial state before any resource is acquired.
	StateIdle State = "idle"

	// StatePortAllocated indicates the OS handed out a free TCP port.
	StatePortAllocated State = "port-allocated"

	// StateDiscoveryPersisted indicates the PID and port records were
	// published for external tooling.
	StateDiscoveryPersisted State = "discovery-persisted"

	// StateServing is the only state in which HTTP requests are accepted.
	StateServing State = "serving"

	// StateShuttingDown indicates a cancellation was received and the
	// listener and discovery records are being torn down.
	StateShuttingDown State = "shutting-down"

	// StateTerminated is the final state.
	StateTerminated State = "terminated"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// IsValid checks whether the State value is one of the predefined states.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StatePortAllocated, StateDiscoveryPersisted,
		StateServing, StateShuttingDown, StateTerminated:
		return true
	default:
		return false
	}
}

// stateOrder gives every state its position in the happy-path lifecycle.
var stateOrder = map[State]int{
	StateIdle:               0,
	StatePortAllocated:      1,
	StateDiscoveryPersisted: 2,
	StateServing:            3,
	StateShuttingDown:       4,
	StateTerminated:         5,
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Every state may advance to the next one, and any
// state before ShuttingDown may jump straight to ShuttingDown.
func (s State) CanTransitionTo(next State) bool {
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	if to == from+1 {
		return true
	}
	return next == StateShuttingDown && from < stateOrder[StateShuttingDown]
}

// ParseState converts a string to a State.
// Returns an error if the string does not match any valid state.
func ParseState(s string) (State, error) {
	state := State(strings.ToLower(s))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid state: %q", s)
	}
	return state, nil
}

// Well-known discovery file names, relative to the state directory.
const (
	// PIDFileName holds the decimal process ID of the running server.
	PIDFileName = ".server-pid"

	// PortFileName holds the decimal TCP port the server is bound to.
	PortFileName = ".server-port"
)

// DiscoveryState is the identity a running instance publishes so that
// other processes can find it without an IPC channel.
type DiscoveryState struct {
	// PID is the process identifier of the running server.
	PID int `json:"pid"`

	// Port is the TCP port the listener is bound to (1-65535).
	Port int `json:"port"`
}

// Validate checks whether the DiscoveryState has valid field values.
func (d DiscoveryState) Validate() error {
	if d.PID <= 0 {
		return fmt.Errorf("discovery state: pid %d must be positive", d.PID)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("discovery state: port %d out of range (1-65535)", d.Port)
	}
	return nil
}

// PIDString returns the PID record as written to disk.
func (d DiscoveryState) PIDString() string {
	return strconv.Itoa(d.PID)
}

// PortString returns the port record as written to disk.
func (d DiscoveryState) PortString() string {
	return strconv.Itoa(d.Port)
}

// BaseURL returns the URL a browser should be pointed at.
func (d DiscoveryState) BaseURL() string {
	return fmt.Sprintf("http://localhost:%d", d.Port)
}

// ParseRecord parses the content of a PID or port file. Surrounding
// whitespace is ignored so files edited by hand still parse.
func ParseRecord(content string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil {
		return 0, fmt.Errorf("invalid discovery record %q: %w", content, err)
	}
	return v, nil
}

// ExitCode defines the process exit codes of the devserve binary.
// These codes allow scripts to programmatically determine why the
// server did not start.
type ExitCode int

const (
	// ExitSuccess indicates a clean shutdown, including signal-driven ones.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration file, environment or
	// flags could not be parsed or failed validation.
	ExitConfigError ExitCode = 2

	// ExitNotRunning indicates no running instance was found in the
	// state directory (status and stop commands).
	ExitNotRunning ExitCode = 3

	// ExitPortAllocationFailed indicates no free port could be obtained.
	ExitPortAllocationFailed ExitCode = 4

	// ExitBindFailed indicates the HTTP listener could not be bound.
	ExitBindFailed ExitCode = 5

	// ExitDiscoveryFailed indicates the PID/port records could not be written.
	ExitDiscoveryFailed ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
