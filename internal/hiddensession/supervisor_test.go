package hiddensession

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vimctl/internal/tools"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/danmuck/vimctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type fakeProcess struct {
	pid        int
	exited     bool
	checkErr   error
	terminated bool
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Exited() (bool, error) {
	if p.checkErr != nil {
		return false, p.checkErr
	}
	return p.exited, nil
}

func (p *fakeProcess) Terminate(context.Context, time.Duration) error {
	p.terminated = true
	p.exited = true
	return nil
}

type fakeStarter struct {
	err   error
	calls [][]string
	procs []*fakeProcess
}

func (s *fakeStarter) Start(name string, args ...string) (tools.Process, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.err != nil {
		return nil, s.err
	}
	p := &fakeProcess{pid: 100 + len(s.procs)}
	s.procs = append(s.procs, p)
	return p, nil
}

type fixedEmbed transport.Window

func (e fixedEmbed) EmbedTarget() (transport.Window, error) {
	return transport.Window(e), nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestSupervisor(starter *fakeStarter, embed transport.Embedder) (*Supervisor, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg := Config{
		Binary: "gvim",
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
		},
	}
	s := NewSupervisor(cfg, starter, embed, zerolog.Nop())
	s.now = clock.now
	return s, clock
}

func TestSupervisorName(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestSupervisor(&fakeStarter{}, nil)
	if !strings.HasPrefix(s.Name(), "__") || !strings.HasSuffix(s.Name(), "_VIMCTL_HIDDEN") {
		t.Fatalf("unexpected name %q", s.Name())
	}
	if s.Name() != strings.ToUpper(s.Name()) {
		t.Fatalf("name must already be upper case: %q", s.Name())
	}
	other, _ := newTestSupervisor(&fakeStarter{}, nil)
	if other.Name() == s.Name() {
		t.Fatalf("names must be unique")
	}
	if s.State() != StateNotStarted || s.IsAlive() {
		t.Fatalf("fresh supervisor must be not started and not alive")
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	testlog.Start(t)
	starter := &fakeStarter{}
	s, _ := newTestSupervisor(starter, fixedEmbed(0x2a))

	if !s.Start() {
		t.Fatalf("expected spawn")
	}
	if s.State() != StateStarting {
		t.Fatalf("state=%v", s.State())
	}
	want := []string{"gvim", "-f", "--servername", s.Name(), "--socketid", "0x2a"}
	if strings.Join(starter.calls[0], " ") != strings.Join(want, " ") {
		t.Fatalf("args=%v want=%v", starter.calls[0], want)
	}
	if s.Start() {
		t.Fatalf("start with a held process must be a no-op")
	}

	if !s.IsAlive() || s.State() != StateRunning {
		t.Fatalf("expected running, state=%v", s.State())
	}

	starter.procs[0].exited = true
	if s.IsAlive() {
		t.Fatalf("exited process must not be alive")
	}
	if s.State() != StateDead || s.Pid() != 0 {
		t.Fatalf("expected dead without handle, state=%v pid=%d", s.State(), s.Pid())
	}

	if !s.Start() || s.State() != StateStarting {
		t.Fatalf("dead supervisor must restart, state=%v", s.State())
	}
	if !s.IsAlive() || s.State() != StateRunning {
		t.Fatalf("restarted session must reach running, state=%v", s.State())
	}
	if len(starter.calls) != 2 {
		t.Fatalf("spawns=%d", len(starter.calls))
	}
}

func TestSupervisorTransientCheckErrorKeepsState(t *testing.T) {
	testlog.Start(t)
	starter := &fakeStarter{}
	s, _ := newTestSupervisor(starter, nil)
	s.Start()
	starter.procs[0].checkErr = errors.New("interrupted")
	if s.IsAlive() {
		t.Fatalf("inconclusive exit check must report not alive")
	}
	if s.State() != StateStarting || s.Pid() == 0 {
		t.Fatalf("inconclusive exit check must keep the handle, state=%v", s.State())
	}
	starter.procs[0].checkErr = nil
	if !s.IsAlive() {
		t.Fatalf("expected alive after the exit check recovers")
	}
}

func TestSupervisorSpawnFailureBacksOff(t *testing.T) {
	testlog.Start(t)
	starter := &fakeStarter{err: errors.New("exec: gvim: not found")}
	s, clock := newTestSupervisor(starter, nil)

	if s.Start() {
		t.Fatalf("failed spawn must report false")
	}
	if s.State() != StateDead || s.IsAlive() {
		t.Fatalf("state=%v", s.State())
	}
	s.Start()
	if len(starter.calls) != 1 {
		t.Fatalf("start during backoff must not spawn, calls=%d", len(starter.calls))
	}

	clock.t = clock.t.Add(time.Second)
	s.Start()
	if len(starter.calls) != 2 {
		t.Fatalf("expected retry after backoff, calls=%d", len(starter.calls))
	}

	clock.t = clock.t.Add(time.Second)
	s.Start()
	if len(starter.calls) != 2 {
		t.Fatalf("second failure must back off longer, calls=%d", len(starter.calls))
	}

	starter.err = nil
	clock.t = clock.t.Add(2 * time.Second)
	if !s.Start() || s.State() != StateStarting {
		t.Fatalf("expected spawn after backoff, state=%v", s.State())
	}
}

func TestSupervisorStop(t *testing.T) {
	testlog.Start(t)
	starter := &fakeStarter{}
	s, _ := newTestSupervisor(starter, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop without process: %v", err)
	}
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !starter.procs[0].terminated || s.State() != StateDead || s.IsAlive() {
		t.Fatalf("expected terminated dead session, state=%v", s.State())
	}
}

func TestBackoffDelayNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 250 * time.Millisecond},
		{3, time.Second},
		{6, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := cfg.Delay(tc.failures, nil); got != tc.want {
			t.Fatalf("failures=%d got=%v want=%v", tc.failures, got, tc.want)
		}
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 2500 * time.Millisecond, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := cfg.Delay(2, rng)
		if got < time.Second || got > cfg.MaxDelay {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}
