package session

import (
	"strings"

	"github.com/danmuck/vimctl/internal/observability"
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/rs/zerolog"
)

// EventSink receives spontaneous notifications from peers.
type EventSink interface {
	Event(name string, args []string)
}

// Dispatcher reads our inbound property on change and routes each frame:
// replies to the Correlator, notifications to the EventSink.
type Dispatcher struct {
	port transport.Port
	corr *Correlator
	sink EventSink
	prop string
	log  zerolog.Logger
}

func NewDispatcher(cfg Config, port transport.Port, corr *Correlator, sink EventSink, logger zerolog.Logger) *Dispatcher {
	cfg = cfg.WithDefaults()
	return &Dispatcher{
		port: port,
		corr: corr,
		sink: sink,
		prop: cfg.CommProperty,
		log:  logger,
	}
}

// PropertyChanged is the transport.Handler for our own window.
func (d *Dispatcher) PropertyChanged(win transport.Window, prop string) {
	if win != d.port.Self() || prop != d.prop {
		return
	}
	raw, err := d.port.ReadAndClear(win, prop)
	if err != nil {
		d.log.Debug().Err(err).Stringer("window", win).Msg("session.Dispatcher.PropertyChanged read failed")
		return
	}
	if len(raw) == 0 {
		return
	}
	d.Handle(raw)
}

// Handle dispatches every frame contained in one property value.
func (d *Dispatcher) Handle(raw []byte) {
	for _, chunk := range frame.Split(raw) {
		d.dispatch(frame.Decode(chunk))
	}
}

func (d *Dispatcher) dispatch(msg frame.Message) {
	switch in := frame.Classify(msg).(type) {
	case frame.Reply:
		d.corr.Resolve(in.Serial, in.Result)
	case frame.Notification:
		name, rest, ok := strings.Cut(in.Payload, ",")
		if !ok {
			observability.RecordNotification(false)
			d.log.Warn().Str("payload", in.Payload).Msg("session.Dispatcher malformed notification dropped")
			return
		}
		observability.RecordNotification(true)
		if d.sink != nil {
			d.sink.Event(name, strings.Split(rest, ","))
		}
	case frame.Malformed:
		d.log.Warn().Err(in.Err).Str("type", msg.Type()).Msg("session.Dispatcher malformed frame dropped")
	}
}
