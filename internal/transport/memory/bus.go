// Package memory is an in-process property bus. It models windows, their
// properties, the root registry and queued property-change notifications,
// delivered only when Pump is called.
package memory

import (
	"sync"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
)

const maxPumpRounds = 100000

// Sent records one Send call.
type Sent struct {
	From transport.Window
	To   transport.Window
	Prop string
	Data []byte
}

type window struct {
	props   map[string][]byte
	handler transport.Handler
}

type notice struct {
	win  transport.Window
	prop string
}

// Bus is safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	next     transport.Window
	windows  map[transport.Window]*window
	root     map[string][]byte
	registry []frame.RegistryEntry
	queue    []notice
	sent     []Sent
}

func NewBus() *Bus {
	return &Bus{
		next:    0x1000,
		windows: make(map[transport.Window]*window),
		root:    make(map[string][]byte),
	}
}

// CreateWindow allocates a fresh window id.
func (b *Bus) CreateWindow() transport.Window {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		b.next++
		if _, taken := b.windows[b.next]; !taken {
			b.windows[b.next] = &window{props: make(map[string][]byte)}
			return b.next
		}
	}
}

// CreateWindowID creates a window with a fixed id; false if it exists.
func (b *Bus) CreateWindowID(id transport.Window) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.windows[id]; taken {
		return false
	}
	b.windows[id] = &window{props: make(map[string][]byte)}
	return true
}

// DestroyWindow removes a window. Its registry entry is left in place, the
// way a crashed editor leaves a stale root registry behind.
func (b *Bus) DestroyWindow(id transport.Window) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, id)
}

func (b *Bus) Exists(id transport.Window) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.windows[id]
	return ok
}

// SetProperty replaces a property value and queues a notification.
func (b *Bus) SetProperty(id transport.Window, prop string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		return transport.ErrNoWindow
	}
	w.props[prop] = append([]byte(nil), data...)
	b.queue = append(b.queue, notice{win: id, prop: prop})
	return nil
}

// Property returns a copy of a property value without clearing it.
func (b *Bus) Property(id transport.Window, prop string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		return nil, false
	}
	v, ok := w.props[prop]
	return append([]byte(nil), v...), ok
}

// Watch installs the property-change handler for a window.
func (b *Bus) Watch(id transport.Window, h transport.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[id]; ok {
		w.handler = h
	}
}

// Register adds or replaces name in the root registry and marks the window
// as a protocol endpoint.
func (b *Bus) Register(name string, id transport.Window) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[id]; ok {
		w.props[protocol.PropVim] = []byte(protocol.VimVersion)
	}
	out := b.registry[:0]
	for _, e := range b.registry {
		if e.Name != name {
			out = append(out, e)
		}
	}
	b.registry = append(out, frame.RegistryEntry{Window: uint32(id), Name: name})
	b.root[protocol.PropRegistry] = frame.EncodeRegistry(b.registry)
}

func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.registry[:0]
	for _, e := range b.registry {
		if e.Name != name {
			out = append(out, e)
		}
	}
	b.registry = out
	b.root[protocol.PropRegistry] = frame.EncodeRegistry(b.registry)
}

// SetRoot replaces a root property verbatim.
func (b *Bus) SetRoot(prop string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root[prop] = append([]byte(nil), data...)
}

// Pump delivers queued notifications, including ones queued by handlers,
// until the queue is empty. It returns the number delivered.
func (b *Bus) Pump() int {
	delivered := 0
	for round := 0; round < maxPumpRounds; round++ {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return delivered
		}
		n := b.queue[0]
		b.queue = b.queue[1:]
		var h transport.Handler
		if w, ok := b.windows[n.win]; ok {
			h = w.handler
		}
		b.mu.Unlock()
		if h != nil {
			h(n.win, n.prop)
			delivered++
		}
	}
	return delivered
}

// Sent returns a copy of the send log.
func (b *Bus) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// Port returns a transport.Port bound to self.
func (b *Bus) Port(self transport.Window) *Port {
	return &Port{bus: b, self: self}
}

// Port is one window's view of the bus.
type Port struct {
	bus  *Bus
	self transport.Window
}

var (
	_ transport.Port     = (*Port)(nil)
	_ transport.Notifier = (*Port)(nil)
)

func (p *Port) Self() transport.Window {
	return p.self
}

func (p *Port) Send(to transport.Window, prop string, data []byte) error {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[to]
	if !ok {
		return transport.ErrNoWindow
	}
	w.props[prop] = append(w.props[prop], data...)
	b.sent = append(b.sent, Sent{From: p.self, To: to, Prop: prop, Data: append([]byte(nil), data...)})
	b.queue = append(b.queue, notice{win: to, prop: prop})
	return nil
}

func (p *Port) ResolveWindow(id transport.Window) (transport.Window, bool) {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		return 0, false
	}
	if _, ok := w.props[protocol.PropVim]; !ok {
		return 0, false
	}
	return id, true
}

func (p *Port) ReadAndClear(id transport.Window, prop string) ([]byte, error) {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		return nil, transport.ErrNoWindow
	}
	v := w.props[prop]
	delete(w.props, prop)
	return v, nil
}

func (p *Port) ReadRoot(prop string) ([]byte, error) {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.root[prop]...), nil
}

func (p *Port) OnPropertyChange(h transport.Handler) {
	p.bus.Watch(p.self, h)
}
