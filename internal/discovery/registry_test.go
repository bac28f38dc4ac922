package discovery

import (
	"reflect"
	"testing"

	"github.com/danmuck/vimctl/internal/hiddensession"
	"github.com/danmuck/vimctl/internal/protocol/session"
	"github.com/danmuck/vimctl/internal/testutil/fakeeditor"
	"github.com/danmuck/vimctl/internal/testutil/testlog"
	"github.com/danmuck/vimctl/internal/transport/memory"
	"github.com/rs/zerolog"
)

type fakeHidden struct {
	name   string
	alive  bool
	starts int
}

func (h *fakeHidden) Name() string  { return h.name }
func (h *fakeHidden) IsAlive() bool { return h.alive }
func (h *fakeHidden) Start() bool {
	h.starts++
	return true
}

type recordingSink struct {
	lists [][]string
}

func (s *recordingSink) ServerListChanged(names []string) {
	s.lists = append(s.lists, names)
}

type discoveryFixture struct {
	bus    *memory.Bus
	hidden *fakeHidden
	peer   *fakeeditor.Editor
	sink   *recordingSink
	reg    *Registry
	corr   *session.Correlator
}

func newDiscoveryFixture(t *testing.T) discoveryFixture {
	t.Helper()
	bus := memory.NewBus()
	self := bus.CreateWindow()
	port := bus.Port(self)

	hiddenName := "__0190F2A1_VIMCTL_HIDDEN"
	hiddenPeer := fakeeditor.New(bus, hiddenName)
	hiddenPeer.SetServerList("editor_A", hiddenName)

	cfg := session.DefaultConfig()
	root := NewRootRegistry(port, zerolog.Nop())
	corr := session.NewCorrelator(cfg, zerolog.Nop())
	messenger := session.NewMessenger(cfg, port, corr, root, zerolog.Nop())
	dispatcher := session.NewDispatcher(cfg, port, corr, nil, zerolog.Nop())
	port.OnPropertyChange(dispatcher.PropertyChanged)

	hidden := &fakeHidden{name: hiddenName, alive: true}
	sink := &recordingSink{}
	reg := NewRegistry(DefaultConfig(), hidden, messenger, sink, zerolog.Nop())

	return discoveryFixture{
		bus:    bus,
		hidden: hidden,
		peer:   hiddenPeer,
		sink:   sink,
		reg:    reg,
		corr:   corr,
	}
}

func TestDiscoveryTwoCyclesDeliverOnce(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	editorA := fakeeditor.New(fx.bus, "editor_A")
	editorA.SetCwd("/work")

	if _, ok := fx.reg.Cwd("editor_A"); ok {
		t.Fatalf("cache must start empty")
	}
	fx.reg.Refresh()
	fx.bus.Pump()

	if !reflect.DeepEqual(fx.sink.lists, [][]string{{"editor_A"}}) {
		t.Fatalf("lists=%v", fx.sink.lists)
	}
	if got := editorA.Exprs(); !reflect.DeepEqual(got, []string{"getcwd()"}) {
		t.Fatalf("editor_A exprs=%v", got)
	}
	if cwd, ok := fx.reg.Cwd("editor_A"); !ok || cwd != "/work" {
		t.Fatalf("cwd=%q ok=%v", cwd, ok)
	}

	fx.reg.Refresh()
	fx.bus.Pump()
	if len(fx.sink.lists) != 1 {
		t.Fatalf("unchanged list must not be delivered again: %v", fx.sink.lists)
	}
	if len(editorA.Exprs()) != 1 {
		t.Fatalf("cached cwd must not be fetched again: %v", editorA.Exprs())
	}
	if !reflect.DeepEqual(fx.reg.Servers(), []string{"editor_A"}) {
		t.Fatalf("servers=%v", fx.reg.Servers())
	}
	if fx.corr.Pending() != 0 {
		t.Fatalf("pending=%d", fx.corr.Pending())
	}
}

func TestDiscoveryComparesBySet(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	fx.peer.SetServerList("editor_A", "editor_B")
	fx.reg.Refresh()
	fx.bus.Pump()

	fx.peer.SetServerList("editor_B", "editor_A")
	fx.reg.Refresh()
	fx.bus.Pump()
	if len(fx.sink.lists) != 1 {
		t.Fatalf("reordered list must not be delivered: %v", fx.sink.lists)
	}

	fx.peer.SetServerList("editor_B")
	fx.reg.Refresh()
	fx.bus.Pump()
	want := [][]string{{"editor_A", "editor_B"}, {"editor_B"}}
	if !reflect.DeepEqual(fx.sink.lists, want) {
		t.Fatalf("lists=%v", fx.sink.lists)
	}
}

func TestDiscoveryFirstCycleDeliversEmptyList(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	fx.peer.SetServerList(fx.hidden.name)
	fx.reg.Refresh()
	fx.bus.Pump()
	if len(fx.sink.lists) != 1 || len(fx.sink.lists[0]) != 0 {
		t.Fatalf("lists=%v", fx.sink.lists)
	}
}

func TestDiscoveryRestartsDeadHiddenSession(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	fx.hidden.alive = false

	fx.reg.Refresh()
	fx.bus.Pump()
	if fx.hidden.starts != 1 {
		t.Fatalf("starts=%d", fx.hidden.starts)
	}
	if len(fx.peer.Exprs()) != 0 || len(fx.sink.lists) != 0 {
		t.Fatalf("query must be skipped while restarting")
	}

	fx.hidden.alive = true
	fx.reg.Refresh()
	fx.bus.Pump()
	if fx.hidden.starts != 1 || len(fx.sink.lists) != 1 {
		t.Fatalf("starts=%d lists=%v", fx.hidden.starts, fx.sink.lists)
	}
}

func TestDiscoveryRetriesLostCwdReply(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	editorA := fakeeditor.New(fx.bus, "editor_A")
	editorA.SetCwd("/work")
	editorA.Silence(true)

	fx.reg.Refresh()
	fx.bus.Pump()
	fx.reg.FetchCwd("editor_A")
	if got := editorA.Exprs(); len(got) != 1 {
		t.Fatalf("fetch must be sent once per cycle, got %v", got)
	}

	editorA.Silence(false)
	for i := 0; i < 3; i++ {
		fx.reg.Refresh()
		fx.bus.Pump()
	}
	if cwd, ok := fx.reg.Cwd("editor_A"); !ok || cwd != "/work" {
		t.Fatalf("lost reply never retried, cwd=%q ok=%v exprs=%v", cwd, ok, editorA.Exprs())
	}
	if got := editorA.Exprs(); len(got) != 2 {
		t.Fatalf("cached cwd must stop further fetches, got %v", got)
	}

	fx.peer.SetServerList()
	fx.reg.Refresh()
	fx.bus.Pump()
	if len(fx.reg.inflight) != 0 {
		t.Fatalf("departed server kept a fetch marker: %v", fx.reg.inflight)
	}
}

func TestDiscoveryUnreachableServerIsSkipped(t *testing.T) {
	testlog.Start(t)
	fx := newDiscoveryFixture(t)
	fx.peer.SetServerList("ghost_editor")
	fx.reg.Refresh()
	fx.bus.Pump()

	if !reflect.DeepEqual(fx.sink.lists, [][]string{{"ghost_editor"}}) {
		t.Fatalf("lists=%v", fx.sink.lists)
	}
	if _, ok := fx.reg.Cwd("ghost_editor"); ok {
		t.Fatalf("unreachable server must have no cwd")
	}
	if fx.corr.Pending() != 0 {
		t.Fatalf("unsent fetch left a pending call")
	}
}

func TestRootRegistryLookup(t *testing.T) {
	testlog.Start(t)
	bus := memory.NewBus()
	self := bus.CreateWindow()
	bus.SetRoot("VimRegistry", []byte("1f4 editor_A\x0020 editor_B\x00300 editor_A\x00"))
	root := NewRootRegistry(bus.Port(self), zerolog.Nop())

	if win, ok := root.Lookup("editor_A"); !ok || win != 0x300 {
		t.Fatalf("win=%v ok=%v", win, ok)
	}
	if win, ok := root.Lookup("editor_B"); !ok || win != 0x20 {
		t.Fatalf("win=%v ok=%v", win, ok)
	}
	if win, ok := root.Lookup("EDITOR_B"); !ok || win != 0x20 {
		t.Fatalf("lookup must ignore case, win=%v ok=%v", win, ok)
	}
	if _, ok := root.Lookup("missing"); ok {
		t.Fatalf("missing name must not resolve")
	}
	if len(root.Entries()) != 3 {
		t.Fatalf("entries=%v", root.Entries())
	}
}

func TestDiscoveryReachesSupervisedSessionByRegisteredName(t *testing.T) {
	testlog.Start(t)
	bus := memory.NewBus()
	self := bus.CreateWindow()
	port := bus.Port(self)
	fakeeditor.New(bus, "editor_A")

	cfg := session.DefaultConfig()
	root := NewRootRegistry(port, zerolog.Nop())
	corr := session.NewCorrelator(cfg, zerolog.Nop())
	messenger := session.NewMessenger(cfg, port, corr, root, zerolog.Nop())
	dispatcher := session.NewDispatcher(cfg, port, corr, nil, zerolog.Nop())
	port.OnPropertyChange(dispatcher.PropertyChanged)

	starter := &fakeeditor.Starter{Bus: bus, Servers: []string{"editor_A"}}
	sup := hiddensession.NewSupervisor(hiddensession.Config{}, starter, nil, zerolog.Nop())
	sink := &recordingSink{}
	reg := NewRegistry(DefaultConfig(), sup, messenger, sink, zerolog.Nop())

	reg.Refresh()
	bus.Pump()
	if starter.Hidden() == nil {
		t.Fatalf("first cycle must start the hidden session")
	}
	if _, ok := root.Lookup(sup.Name()); !ok {
		t.Fatalf("%q not found among %v", sup.Name(), root.Entries())
	}
	reg.Refresh()
	bus.Pump()
	if !reflect.DeepEqual(sink.lists, [][]string{{"editor_A"}}) {
		t.Fatalf("lists=%v", sink.lists)
	}
}
