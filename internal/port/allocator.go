package port

import "fmt"

// maxPort is the highest valid TCP/UDP port number (2^16 - 1).
const maxPort = 65535

// Source identifies how an allocated port was chosen.
type Source string

const (
	// SourcePreferred means the configured port was free and is used as-is.
	SourcePreferred Source = "preferred"

	// SourceEphemeral means the OS picked the port.
	SourceEphemeral Source = "ephemeral"
)

// Allocation is the result of Allocator.Allocate.
type Allocation struct {
	// Port is the chosen TCP port (1-65535).
	Port int

	// Source records whether the preferred port or an ephemeral one was used.
	Source Source

	// Preferred is the port that was requested, 0 when none was.
	Preferred int
}

// Allocator chooses the TCP port the dev server will listen on.
//
// With no preferred port it simply asks the Scanner for an ephemeral port.
// When a preferred port is configured it is probed first; if something
// else already holds it, allocation falls back to an ephemeral port rather
// than failing, so that two projects started with the same config do not
// block each other.
type Allocator struct {
	// scanner is used to probe the OS for actual port availability.
	scanner *Scanner
}

// NewAllocator creates a new Allocator with the given Scanner.
// The scanner must not be nil.
func NewAllocator(scanner *Scanner) *Allocator {
	return &Allocator{scanner: scanner}
}

// Allocate returns a free TCP port. A preferred value of 0 means "any".
func (a *Allocator) Allocate(preferred int) (Allocation, error) {
	if preferred < 0 || preferred > maxPort {
		return Allocation{}, fmt.Errorf("preferred port %d out of range (0-%d)", preferred, maxPort)
	}

	if preferred > 0 && a.scanner.IsPortAvailable(preferred) {
		return Allocation{Port: preferred, Source: SourcePreferred, Preferred: preferred}, nil
	}

	p, err := a.scanner.AllocateFreePort()
	if err != nil {
		if preferred > 0 {
			return Allocation{}, fmt.Errorf("port %d is in use and no ephemeral port could be allocated: %w", preferred, err)
		}
		return Allocation{}, err
	}

	return Allocation{Port: p, Source: SourceEphemeral, Preferred: preferred}, nil
}
