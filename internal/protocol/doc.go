// Package protocol owns the editor client/server wire contract.
//
// Ownership boundary:
// - property names and protocol constants
// - frame/registry codecs (frame)
// - serial correlation, send path and inbound dispatch (session)
package protocol
