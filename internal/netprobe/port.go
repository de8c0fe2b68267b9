// Package netprobe allocates loopback ports and polls endpoints until they
// become reachable.
package netprobe

import (
	"fmt"
	"net"
)

// LoopbackHost is the interface every harness listener binds to.
const LoopbackHost = "127.0.0.1"

// FreePort returns an ephemeral TCP port on the loopback interface by
// binding port 0 and releasing the listener immediately.
//
// Allocation and use are not atomic: another process may claim the port
// before the caller binds it. Callers must use the port right away and
// never cache it across tests.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(LoopbackHost, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate a free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Address returns the loopback host:port for port.
func Address(port int) string {
	return net.JoinHostPort(LoopbackHost, fmt.Sprint(port))
}
