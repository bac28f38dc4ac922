package fakeeditor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/vimctl/internal/tools"
	"github.com/danmuck/vimctl/internal/transport/memory"
)

// Starter stands in for spawning the hidden session: each Start brings up
// an Editor registered under the upper-cased --servername argument, as the
// editor itself does, whose serverlist() reply is Servers plus that name.
type Starter struct {
	Bus     *memory.Bus
	Servers []string
	Err     error

	mu      sync.Mutex
	editors []*Editor
	procs   []*Process
}

var _ tools.ProcessStarter = (*Starter)(nil)

func (s *Starter) Start(name string, args ...string) (tools.Process, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	server := ""
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--servername" {
			server = strings.ToUpper(args[i+1])
		}
	}
	e := New(s.Bus, server)
	e.SetServerList(append(append([]string(nil), s.Servers...), server)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Process{pid: 1000 + len(s.procs)}
	s.editors = append(s.editors, e)
	s.procs = append(s.procs, p)
	return p, nil
}

// Hidden returns the most recently started editor, nil before any start.
func (s *Starter) Hidden() *Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.editors) == 0 {
		return nil
	}
	return s.editors[len(s.editors)-1]
}

func (s *Starter) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Process is a fake child whose exit is controlled by the test.
type Process struct {
	mu         sync.Mutex
	pid        int
	exited     bool
	terminated bool
}

func (p *Process) Pid() int {
	return p.pid
}

func (p *Process) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, nil
}

func (p *Process) Terminate(context.Context, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.terminated = true
	return nil
}

// Exit marks the process as exited.
func (p *Process) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
}

func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
