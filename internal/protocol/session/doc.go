// Package session owns the request/reply side of the protocol.
//
// Ownership boundary:
// - serial allocation and the pending-call table (Correlator)
// - the outbound send path (Messenger)
// - inbound property dispatch (Dispatcher)
//
// Nothing in this package is safe for concurrent use. All of it is driven
// from a single event loop goroutine; see internal/eventloop.
package session
