// Package tools provides host helpers shared by the controller.
//
// Ownership boundary:
// - one-shot command execution (ExecRunner)
//
// - detached child processes with a non-blocking exit check and
// process-tree teardown (ExecStarter)
package tools
