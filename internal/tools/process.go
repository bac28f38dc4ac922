package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

const reapPollInterval = 50 * time.Millisecond

// ProcessStarter launches a child process that outlives the call.
type ProcessStarter interface {
	Start(name string, args ...string) (Process, error)
}

// Process is a handle to a started child.
type Process interface {
	Pid() int
	// Exited checks for exit without blocking. An error means the state is
	// unknown for now; the caller should try again later.
	Exited() (exited bool, err error)
	// Terminate signals the process tree, waits up to grace for the child to
	// exit, then kills whatever is left.
	Terminate(ctx context.Context, grace time.Duration) error
}

// ExecStarter starts children through os/exec in their own process group
// with stdio bound to the null device.
type ExecStarter struct {
	Dir string
	Env []string
}

func (s ExecStarter) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tools: start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	// Exited reaps by pid; the os.Process handle is not needed past this point.
	_ = cmd.Process.Release()
	return &execProcess{pid: pid}, nil
}

type execProcess struct {
	mu     sync.Mutex
	pid    int
	reaped bool
}

func (p *execProcess) Pid() int {
	return p.pid
}

func (p *execProcess) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaped {
		return true, nil
	}
	var status unix.WaitStatus
	wpid, err := unix.Wait4(p.pid, &status, unix.WNOHANG, nil)
	switch {
	case errors.Is(err, unix.ECHILD):
		p.reaped = true
		return true, nil
	case err != nil:
		return false, err
	case wpid == p.pid:
		p.reaped = true
		return true, nil
	default:
		return false, nil
	}
}

func (p *execProcess) Terminate(ctx context.Context, grace time.Duration) error {
	if exited, _ := p.Exited(); exited {
		return nil
	}
	tree := processTree(ctx, int32(p.pid))
	for _, proc := range tree {
		_ = proc.TerminateWithContext(ctx)
	}
	if p.waitExit(ctx, grace) {
		return nil
	}
	var errs []error
	for _, proc := range tree {
		if err := proc.KillWithContext(ctx); err != nil && !errors.Is(err, process.ErrorProcessNotRunning) {
			errs = append(errs, err)
		}
	}
	if !p.waitExit(ctx, grace) {
		errs = append(errs, fmt.Errorf("tools: pid %d did not exit", p.pid))
	}
	return errors.Join(errs...)
}

func (p *execProcess) waitExit(ctx context.Context, grace time.Duration) bool {
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	ticker := time.NewTicker(reapPollInterval)
	defer ticker.Stop()
	for {
		if exited, _ := p.Exited(); exited {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// processTree returns the root followed by every descendant still visible.
func processTree(ctx context.Context, pid int32) []*process.Process {
	root, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil
	}
	out := []*process.Process{root}
	for i := 0; i < len(out); i++ {
		children, err := out[i].ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, children...)
	}
	return out
}
