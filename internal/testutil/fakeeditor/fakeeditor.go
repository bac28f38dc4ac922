// Package fakeeditor is a scripted editor server living on a memory bus.
// It answers configured expressions, records key sends and can push
// notifications to a controller window.
package fakeeditor

import (
	"strings"
	"sync"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/danmuck/vimctl/internal/transport/memory"
)

type Editor struct {
	name   string
	bus    *memory.Bus
	port   *memory.Port
	window transport.Window

	mu      sync.Mutex
	answers map[string]func() string
	keys    []string
	exprs   []string
	silent  bool
}

// New creates a window for name, registers it and starts answering.
func New(bus *memory.Bus, name string) *Editor {
	return attach(bus, name, bus.CreateWindow())
}

// NewAt is New with a fixed window id.
func NewAt(bus *memory.Bus, name string, id transport.Window) *Editor {
	bus.CreateWindowID(id)
	return attach(bus, name, id)
}

func attach(bus *memory.Bus, name string, id transport.Window) *Editor {
	e := &Editor{
		name:    name,
		bus:     bus,
		port:    bus.Port(id),
		window:  id,
		answers: make(map[string]func() string),
	}
	bus.Register(name, id)
	e.port.OnPropertyChange(e.handle)
	return e
}

func (e *Editor) Name() string {
	return e.name
}

func (e *Editor) Window() transport.Window {
	return e.window
}

// Answer replies to expr with a fixed result.
func (e *Editor) Answer(expr, result string) {
	e.AnswerFunc(expr, func() string { return result })
}

func (e *Editor) AnswerFunc(expr string, fn func() string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers[expr] = fn
}

// SetServerList answers serverlist() the way the editor does: one name per
// line with a trailing newline.
func (e *Editor) SetServerList(names ...string) {
	out := strings.Join(names, "\n")
	if len(names) > 0 {
		out += "\n"
	}
	e.Answer("serverlist()", out)
}

func (e *Editor) SetCwd(dir string) {
	e.Answer("getcwd()", dir)
}

// Silence stops all replies while still recording requests.
func (e *Editor) Silence(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.silent = v
}

// Keys returns the key payloads received, in order.
func (e *Editor) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...)
}

// Exprs returns the expressions received, in order.
func (e *Editor) Exprs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.exprs...)
}

// Notify appends a notification frame to the controller's window.
func (e *Editor) Notify(to transport.Window, payload string) error {
	data, err := frame.Encode(frame.Frame{Kind: frame.KindNotify, Payload: payload})
	if err != nil {
		return err
	}
	return e.port.Send(to, protocol.PropComm, data)
}

// Close destroys the window and leaves the registry entry stale.
func (e *Editor) Close() {
	e.bus.DestroyWindow(e.window)
}

func (e *Editor) handle(win transport.Window, prop string) {
	if prop != protocol.PropComm {
		return
	}
	raw, err := e.port.ReadAndClear(win, prop)
	if err != nil || len(raw) == 0 {
		return
	}
	for _, chunk := range frame.Split(raw) {
		f, err := frame.ParseFrame(chunk)
		if err != nil {
			continue
		}
		switch f.Kind {
		case frame.KindKeys:
			e.mu.Lock()
			e.keys = append(e.keys, f.Payload)
			e.mu.Unlock()
		case frame.KindExpr:
			e.evaluate(f)
		}
	}
}

func (e *Editor) evaluate(f frame.Frame) {
	e.mu.Lock()
	e.exprs = append(e.exprs, f.Payload)
	fn, ok := e.answers[f.Payload]
	silent := e.silent
	e.mu.Unlock()
	if !ok || silent {
		return
	}
	data, err := frame.Encode(frame.Frame{Kind: frame.KindReply, Serial: f.Serial, Payload: fn()})
	if err != nil {
		return
	}
	_ = e.port.Send(transport.Window(f.SourceID), protocol.PropComm, data)
}
