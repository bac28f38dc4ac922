package discovery

import (
	"strings"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/rs/zerolog"
)

// RootRegistry reads the name-to-window registry kept on the root window.
// Nothing is cached: a window can go stale between any two sends.
type RootRegistry struct {
	port transport.Port
	prop string
	log  zerolog.Logger
}

func NewRootRegistry(port transport.Port, logger zerolog.Logger) *RootRegistry {
	return &RootRegistry{
		port: port,
		prop: protocol.PropRegistry,
		log:  logger,
	}
}

// Entries returns the parsed registry in property order.
func (r *RootRegistry) Entries() []frame.RegistryEntry {
	raw, err := r.port.ReadRoot(r.prop)
	if err != nil {
		r.log.Debug().Err(err).Str("prop", r.prop).Msg("discovery.RootRegistry.Entries read failed")
		return nil
	}
	return frame.ParseRegistry(raw)
}

// Lookup returns the window registered for name, ignoring case as the
// editor does. When a name appears more than once the last entry wins.
func (r *RootRegistry) Lookup(name string) (transport.Window, bool) {
	var (
		win   transport.Window
		found bool
	)
	for _, e := range r.Entries() {
		if strings.EqualFold(e.Name, name) {
			win = transport.Window(e.Window)
			found = true
		}
	}
	return win, found
}

// Entry is one published server and its window.
type Entry struct {
	Name   string
	Window transport.Window
}
