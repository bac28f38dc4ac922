// Package x11 implements transport.Port over an X server connection.
//
// The adapter owns one small unmapped window. It advertises the protocol
// version in the Vim property so peers will answer it, selects
// PropertyChange events on it, and reports those events to the installed
// handler from a reader goroutine.
package x11

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/rs/zerolog"
)

var ErrConnect = errors.New("x11: connect failed")

type Conn struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	self   xproto.Window

	mu        sync.Mutex
	atoms     map[string]xproto.Atom
	names     map[xproto.Atom]string
	handler   transport.Handler
	embed     xproto.Window
	closeOnce sync.Once
	done      chan struct{}

	log zerolog.Logger
}

var (
	_ transport.Port     = (*Conn)(nil)
	_ transport.Notifier = (*Conn)(nil)
	_ transport.Embedder = (*Conn)(nil)
)

// Dial connects to display ("" means $DISPLAY), creates the controller
// window and starts the event reader.
func Dial(display string, logger zerolog.Logger) (*Conn, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	c := &Conn{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
		names:  make(map[xproto.Atom]string),
		done:   make(chan struct{}),
		log:    logger,
	}
	self, err := c.createWindow(xproto.EventMaskPropertyChange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.self = self
	if err := c.replace(self, protocol.PropVim, []byte(protocol.VimVersion)); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readEvents()
	logger.Info().Stringer("window", transport.Window(self)).Str("display", display).Msg("x11.Dial connected")
	return c, nil
}

func (c *Conn) createWindow(mask uint32) (xproto.Window, error) {
	wid, err := xproto.NewWindowId(c.conn)
	if err != nil {
		return 0, fmt.Errorf("x11: allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(
		c.conn,
		c.screen.RootDepth,
		wid,
		c.root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput,
		c.screen.RootVisual,
		xproto.CwEventMask,
		[]uint32{mask},
	).Check()
	if err != nil {
		return 0, fmt.Errorf("x11: create window: %w", err)
	}
	return wid, nil
}

func (c *Conn) Self() transport.Window {
	return transport.Window(c.self)
}

// OnPropertyChange installs h for property changes on our window. h runs
// on the reader goroutine.
func (c *Conn) OnPropertyChange(h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Send appends data to prop on the target window.
func (c *Conn) Send(to transport.Window, prop string, data []byte) error {
	atom, err := c.atom(prop)
	if err != nil {
		return err
	}
	err = xproto.ChangePropertyChecked(
		c.conn,
		xproto.PropModeAppend,
		xproto.Window(to),
		atom,
		xproto.AtomString,
		8,
		uint32(len(data)),
		data,
	).Check()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrNoWindow, to, err)
	}
	return nil
}

// ResolveWindow confirms the window exists and carries the Vim property.
func (c *Conn) ResolveWindow(id transport.Window) (transport.Window, bool) {
	value, ok, err := c.get(xproto.Window(id), protocol.PropVim, false)
	if err != nil || !ok || len(value) == 0 {
		return 0, false
	}
	return id, true
}

func (c *Conn) ReadAndClear(id transport.Window, prop string) ([]byte, error) {
	value, _, err := c.get(xproto.Window(id), prop, true)
	return value, err
}

func (c *Conn) ReadRoot(prop string) ([]byte, error) {
	value, _, err := c.get(c.root, prop, false)
	return value, err
}

// EmbedTarget returns an unmapped window the hidden session can use as
// its embedding socket. It is created once per connection.
func (c *Conn) EmbedTarget() (transport.Window, error) {
	c.mu.Lock()
	existing := c.embed
	c.mu.Unlock()
	if existing != 0 {
		return transport.Window(existing), nil
	}
	win, err := c.createWindow(xproto.EventMaskNoEvent)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.embed = win
	c.mu.Unlock()
	return transport.Window(win), nil
}

// Close destroys our window and drops the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		xproto.DestroyWindow(c.conn, c.self)
		c.conn.Close()
		<-c.done
	})
	return nil
}

func (c *Conn) replace(win xproto.Window, prop string, data []byte) error {
	atom, err := c.atom(prop)
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		c.conn,
		xproto.PropModeReplace,
		win,
		atom,
		xproto.AtomString,
		8,
		uint32(len(data)),
		data,
	).Check()
}

// get reads a whole property. ok is false when the property is unset.
func (c *Conn) get(win xproto.Window, prop string, del bool) ([]byte, bool, error) {
	atom, err := c.atom(prop)
	if err != nil {
		return nil, false, err
	}
	reply, err := xproto.GetProperty(c.conn, del, win, atom, xproto.GetPropertyTypeAny, 0, math.MaxUint32/4).Reply()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", transport.ErrNoWindow, transport.Window(win), err)
	}
	if reply.Type == xproto.AtomNone {
		return nil, false, nil
	}
	return reply.Value, true, nil
}

func (c *Conn) atom(name string) (xproto.Atom, error) {
	c.mu.Lock()
	atom, ok := c.atoms[name]
	c.mu.Unlock()
	if ok {
		return atom, nil
	}
	reply, err := xproto.InternAtom(c.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("x11: intern %s: %w", name, err)
	}
	c.mu.Lock()
	c.atoms[name] = reply.Atom
	c.names[reply.Atom] = name
	c.mu.Unlock()
	return reply.Atom, nil
}

func (c *Conn) atomName(atom xproto.Atom) (string, error) {
	c.mu.Lock()
	name, ok := c.names[atom]
	c.mu.Unlock()
	if ok {
		return name, nil
	}
	reply, err := xproto.GetAtomName(c.conn, atom).Reply()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.names[atom] = reply.Name
	c.atoms[reply.Name] = atom
	c.mu.Unlock()
	return reply.Name, nil
}

func (c *Conn) readEvents() {
	defer close(c.done)
	for {
		ev, xerr := c.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			c.log.Debug().Msg("x11.Conn.readEvents connection closed")
			return
		}
		if xerr != nil {
			c.log.Debug().Str("err", xerr.Error()).Msg("x11.Conn.readEvents x error")
			continue
		}
		pn, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok || pn.State != xproto.PropertyNewValue {
			continue
		}
		name, err := c.atomName(pn.Atom)
		if err != nil {
			c.log.Debug().Err(err).Uint32("atom", uint32(pn.Atom)).Msg("x11.Conn.readEvents atom lookup failed")
			continue
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(transport.Window(pn.Window), name)
		}
	}
}
