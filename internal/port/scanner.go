package port

import (
	"fmt"
	"net"
)

// Scanner checks port availability and obtains free ports from the host.
//
// It uses the operating system's network stack (net.Listen)
// rather than parsing /proc/net/* or shelling out to `lsof`, which may
// require elevated permissions.
type Scanner struct {
	// network is the stream network used for TCP probes. Tests may narrow
	// it to "tcp4"; production code always uses "tcp".
	network string
}

// NewScanner creates a new Scanner instance probing TCP on all interfaces.
func NewScanner() *Scanner {
	return &Scanner{network: "tcp"}
}

// AllocateFreePort opens a transient listener on port 0 of the wildcard
// interface, reads back the port the OS assigned, closes the listener and
// returns the port.
//
// Collision avoidance is delegated entirely to the kernel's ephemeral-port
// allocator. There is no retry: if the bind fails the error is returned and
// the caller is expected to abort.
func (s *Scanner) AllocateFreePort() (int, error) {
	listener, err := net.Listen(s.network, ":0")
	if err != nil {
		return 0, fmt.Errorf("failed to bind ephemeral port: %w", err)
	}
	defer func() { _ = listener.Close() }()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	if tcpAddr.Port < 1 || tcpAddr.Port > maxPort {
		return 0, fmt.Errorf("os assigned invalid port %d", tcpAddr.Port)
	}
	return tcpAddr.Port, nil
}

// IsPortAvailable reports whether a TCP port is free on the host machine.
//
// It attempts net.Listen on ":port"; if the bind succeeds the port is
// available and the probe is closed immediately. All interfaces are probed
// because the dev server itself listens on all interfaces.
//
// Out-of-range ports are reported as unavailable.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 1 || port > maxPort {
		return false
	}
	listener, err := net.Listen(s.network, fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
