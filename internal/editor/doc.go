// Package editor is the controller façade over a set of running editors.
//
// Client wires the protocol core (Correlator, Messenger, Dispatcher), the
// hidden session supervisor and the discovery registry, and exposes the
// editor operations built on top of them. Every method must be called from
// the event loop goroutine.
//
// Sends to a server that cannot be resolved are silent no-ops. Methods
// report whether their frames were handed to the transport; none of them
// return errors and callbacks are never invoked for a send that did not
// leave.
package editor
