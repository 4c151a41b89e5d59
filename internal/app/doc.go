// Package app drives the lifecycle of one devserve instance:
//
//	Idle → PortAllocated → DiscoveryPersisted → Serving → ShuttingDown → Terminated
//
// Runner wires the port allocator, the discovery publisher, the HTTP
// server and the browser launcher together. Shutdown is requested by
// cancelling the context passed to Run, so the whole sequence can be
// exercised in tests without sending OS signals.
package app
