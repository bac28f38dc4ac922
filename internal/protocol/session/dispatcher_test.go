package session

import (
	"reflect"
	"testing"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/danmuck/vimctl/internal/transport/memory"
	"github.com/danmuck/vimctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type recordedEvent struct {
	name string
	args []string
}

type recordingSink struct {
	events []recordedEvent
}

func (s *recordingSink) Event(name string, args []string) {
	s.events = append(s.events, recordedEvent{name: name, args: args})
}

type dispatcherFixture struct {
	bus  *memory.Bus
	self transport.Window
	corr *Correlator
	sink *recordingSink
	logs *testlog.Capture
	d    *Dispatcher
}

func newDispatcherFixture() dispatcherFixture {
	bus := memory.NewBus()
	self := bus.CreateWindow()
	port := bus.Port(self)
	logs := testlog.NewCapture()
	corr := NewCorrelator(DefaultConfig(), logs.Logger())
	sink := &recordingSink{}
	d := NewDispatcher(DefaultConfig(), port, corr, sink, logs.Logger())
	port.OnPropertyChange(d.PropertyChanged)
	return dispatcherFixture{bus: bus, self: self, corr: corr, sink: sink, logs: logs, d: d}
}

func TestDispatcherRoutesReplyToCallback(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	var got []string
	fx.corr.Issue("A", "getcwd()", func(r string) { got = append(got, r) })

	peer := fx.bus.CreateWindow()
	if err := fx.bus.Port(peer).Send(fx.self, protocol.PropComm, []byte("\x00r\x00-s 1\x00-r /home/me\x00")); err != nil {
		t.Fatalf("send: %v", err)
	}
	fx.bus.Pump()

	if len(got) != 1 || got[0] != "/home/me" {
		t.Fatalf("callback results=%v", got)
	}
	if left, _ := fx.bus.Property(fx.self, protocol.PropComm); len(left) != 0 {
		t.Fatalf("inbound property not cleared: %q", left)
	}
}

func TestDispatcherDeliversNotification(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	fx.d.Handle([]byte("\x00n\x00-n bufferchange,3,/tmp/foo.txt\x00"))

	want := []recordedEvent{{name: "bufferchange", args: []string{"3", "/tmp/foo.txt"}}}
	if !reflect.DeepEqual(fx.sink.events, want) {
		t.Fatalf("events=%+v", fx.sink.events)
	}
}

func TestDispatcherDropsNotificationWithoutComma(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	fx.d.Handle([]byte("\x00n\x00-n ready\x00"))

	if len(fx.sink.events) != 0 {
		t.Fatalf("unexpected events %+v", fx.sink.events)
	}
	if n := fx.logs.Count(zerolog.WarnLevel, "malformed notification"); n != 1 {
		t.Fatalf("expected one diagnostic, got %d\n%s", n, fx.logs.String())
	}
}

func TestDispatcherHandlesAppendedFrames(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	var got []string
	record := func(r string) { got = append(got, r) }
	fx.corr.Issue("A", "1", record)
	fx.corr.Issue("A", "2", record)

	fx.d.Handle([]byte("\x00r\x00-s 2\x00-r two\x00\x00n\x00-n ev,x\x00\x00r\x00-s 1\x00-r one\x00"))
	if !reflect.DeepEqual(got, []string{"two", "one"}) {
		t.Fatalf("replies=%v", got)
	}
	if len(fx.sink.events) != 1 || fx.sink.events[0].name != "ev" {
		t.Fatalf("events=%+v", fx.sink.events)
	}
}

func TestDispatcherIgnoresOtherProperties(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	if err := fx.bus.SetProperty(fx.self, "WM_NAME", []byte("\x00n\x00-n ev,1\x00")); err != nil {
		t.Fatalf("set: %v", err)
	}
	fx.bus.Pump()
	if len(fx.sink.events) != 0 {
		t.Fatalf("unexpected events %+v", fx.sink.events)
	}
	if _, ok := fx.bus.Property(fx.self, "WM_NAME"); !ok {
		t.Fatalf("foreign property must not be cleared")
	}
}

func TestDispatcherLogsMalformedReply(t *testing.T) {
	testlog.Start(t)
	fx := newDispatcherFixture()
	fx.d.Handle([]byte("\x00r\x00-r orphan\x00"))
	if n := fx.logs.Count(zerolog.WarnLevel, "malformed frame"); n != 1 {
		t.Fatalf("expected one diagnostic, got %d", n)
	}
}
