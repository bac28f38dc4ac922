// Package transport defines the property-change transport the protocol runs
// over. Adapters live in subpackages: memory (in-process bus) and x11.
package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNoWindow = errors.New("transport: window does not exist")
	ErrClosed   = errors.New("transport: closed")
)

// Window is a transport-level window identifier.
type Window uint32

func (w Window) String() string {
	return fmt.Sprintf("0x%x", uint32(w))
}

// Port sends and reads window properties. Implementations report failures
// as errors; the core treats every one of them as a soft failure.
type Port interface {
	// Self is the window peers address replies and notifications to.
	Self() Window
	// Send appends data to prop on win.
	Send(win Window, prop string, data []byte) error
	// ResolveWindow reports whether win is currently a live protocol endpoint.
	ResolveWindow(win Window) (Window, bool)
	// ReadAndClear reads and deletes prop on win.
	ReadAndClear(win Window, prop string) ([]byte, error)
	// ReadRoot reads a property of the root window.
	ReadRoot(prop string) ([]byte, error)
}

// Handler receives property-change notifications for our own window.
type Handler func(win Window, prop string)

// Notifier registers the property-change handler. Only one handler is kept.
type Notifier interface {
	OnPropertyChange(h Handler)
}

// Embedder is implemented by transports that can host an embedded editor.
type Embedder interface {
	EmbedTarget() (Window, error)
}
