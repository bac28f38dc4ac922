package session

import (
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/rs/zerolog"
)

// Resolver maps a server name to its current window.
type Resolver interface {
	Lookup(server string) (transport.Window, bool)
}

// Messenger is the outbound send path: resolve, encode, append.
//
// A target that cannot be resolved, or a send the transport rejects, is a
// silent no-op for the caller: nothing is returned as an error and no
// callback will ever run.
type Messenger struct {
	port     transport.Port
	corr     *Correlator
	resolver Resolver
	prop     string
	log      zerolog.Logger
}

func NewMessenger(cfg Config, port transport.Port, corr *Correlator, resolver Resolver, logger zerolog.Logger) *Messenger {
	cfg = cfg.WithDefaults()
	return &Messenger{
		port:     port,
		corr:     corr,
		resolver: resolver,
		prop:     cfg.CommProperty,
		log:      logger,
	}
}

// SendKeys sends keystrokes without allocating a serial. It reports whether
// the frame was handed to the transport.
func (m *Messenger) SendKeys(server, keys string) bool {
	_, ok := m.send(server, frame.KindKeys, keys, nil)
	return ok
}

// SendExpr sends an expression call and registers cb for its reply. It
// returns the serial used and whether the frame was handed to the transport.
func (m *Messenger) SendExpr(server, expr string, cb Callback) (int, bool) {
	return m.send(server, frame.KindExpr, expr, cb)
}

func (m *Messenger) send(server string, kind frame.Kind, payload string, cb Callback) (int, bool) {
	registered, ok := m.resolver.Lookup(server)
	if !ok {
		m.log.Debug().Str("server", server).Str("kind", kind.String()).Msg("session.Messenger.send server not registered")
		return 0, false
	}
	win, ok := m.port.ResolveWindow(registered)
	if !ok {
		m.log.Debug().Str("server", server).Stringer("window", registered).Msg("session.Messenger.send window not live")
		return 0, false
	}

	// The call is registered before the frame leaves so a reply can never
	// arrive ahead of its pending entry.
	serial := m.corr.Current()
	if kind == frame.KindExpr {
		serial = m.corr.Issue(server, payload, cb)
	}
	data, err := frame.Encode(frame.Frame{
		Kind:     kind,
		Target:   server,
		Payload:  payload,
		SourceID: uint32(m.port.Self()),
		Serial:   serial,
	})
	if err != nil {
		m.abandon(kind, serial)
		m.log.Warn().Err(err).Str("server", server).Msg("session.Messenger.send encode failed")
		return 0, false
	}
	if err := m.port.Send(win, m.prop, data); err != nil {
		m.abandon(kind, serial)
		m.log.Debug().Err(err).Str("server", server).Stringer("window", win).Msg("session.Messenger.send transport rejected frame")
		return 0, false
	}
	m.log.Trace().Str("server", server).Str("kind", kind.String()).Int("serial", serial).Msg("session.Messenger.send sent")
	return serial, true
}

func (m *Messenger) abandon(kind frame.Kind, serial int) {
	if kind == frame.KindExpr {
		m.corr.Drop(serial)
	}
}
