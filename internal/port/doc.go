// Package port implements free-port discovery for the devserve CLI.
//
// The Scanner asks the operating system directly: IsPortAvailable probes a
// specific port with net.Listen, and AllocateFreePort binds port 0 on the
// wildcard interface so the kernel's ephemeral-port allocator picks one.
// The Allocator layers a preferred-port policy on top: a configured port
// is used when it is free, otherwise the server falls back to an
// OS-assigned ephemeral port.
package port
