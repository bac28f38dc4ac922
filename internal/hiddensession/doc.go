// Package hiddensession supervises the editor instance used for discovery.
//
// The supervisor owns the child process outright. Liveness comes from the
// operating system's exit status for that child, never from the windowing
// layer, so a dead session is detected without false positives and
// restarted on the next Start.
//
// Like the rest of the core, a Supervisor is driven from a single event-loop
// goroutine and carries no locks.
package hiddensession
