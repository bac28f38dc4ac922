// Package discovery tracks which editor servers are reachable.
//
// RootRegistry resolves a server name to its window from the root
// registry property on every call. Registry runs the periodic discovery
// cycle through the hidden session, keeps the last delivered server list,
// and caches each server's working directory.
package discovery
