// Package discovery publishes the identity of a running devserve instance
// so that other local tooling can find it without an IPC channel.
//
// The Publisher interface decouples the server lifecycle from the
// filesystem. FilePublisher writes the well-known .server-pid and
// .server-port files; MemoryPublisher records calls in memory for tests.
package discovery
