package memory

import (
	"errors"
	"testing"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/frame"
	"github.com/danmuck/vimctl/internal/transport"
)

func TestSendAppendsAndNotifies(t *testing.T) {
	bus := NewBus()
	a := bus.CreateWindow()
	b := bus.CreateWindow()

	var seen []string
	bus.Watch(b, func(win transport.Window, prop string) {
		seen = append(seen, prop)
	})

	port := bus.Port(a)
	if err := port.Send(b, protocol.PropComm, []byte("one")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := port.Send(b, protocol.PropComm, []byte("two")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("notifications must wait for Pump")
	}
	if n := bus.Pump(); n != 2 {
		t.Fatalf("pump delivered %d", n)
	}

	got, err := bus.Port(b).ReadAndClear(b, protocol.PropComm)
	if err != nil || string(got) != "onetwo" {
		t.Fatalf("read=%q err=%v", got, err)
	}
	if again, _ := bus.Port(b).ReadAndClear(b, protocol.PropComm); len(again) != 0 {
		t.Fatalf("property not cleared: %q", again)
	}
	if len(bus.Sent()) != 2 {
		t.Fatalf("send log: %+v", bus.Sent())
	}
}

func TestResolveWindowRequiresEndpoint(t *testing.T) {
	bus := NewBus()
	self := bus.CreateWindow()
	peer := bus.CreateWindow()
	port := bus.Port(self)

	if _, ok := port.ResolveWindow(peer); ok {
		t.Fatalf("window without Vim property must not resolve")
	}
	bus.Register("GVIM", peer)
	if got, ok := port.ResolveWindow(peer); !ok || got != peer {
		t.Fatalf("expected registered window to resolve")
	}
	bus.DestroyWindow(peer)
	if _, ok := port.ResolveWindow(peer); ok {
		t.Fatalf("destroyed window must not resolve")
	}
	if err := port.Send(peer, protocol.PropComm, []byte("x")); !errors.Is(err, transport.ErrNoWindow) {
		t.Fatalf("expected ErrNoWindow, got %v", err)
	}
}

func TestRegistryKeepsStaleEntries(t *testing.T) {
	bus := NewBus()
	a := bus.CreateWindow()
	b := bus.CreateWindow()
	bus.Register("A", a)
	bus.Register("B", b)
	bus.Register("A", a)
	bus.DestroyWindow(b)

	raw, _ := bus.Port(a).ReadRoot(protocol.PropRegistry)
	entries := frame.ParseRegistry(raw)
	if len(entries) != 2 || entries[0].Name != "B" || entries[1].Name != "A" {
		t.Fatalf("unexpected registry %+v", entries)
	}

	bus.Unregister("B")
	raw, _ = bus.Port(a).ReadRoot(protocol.PropRegistry)
	if entries := frame.ParseRegistry(raw); len(entries) != 1 {
		t.Fatalf("unexpected registry after unregister %+v", entries)
	}
}
