package fetchtest

import (
	"context"
	"sync"
	"time"

	"github.com/edvin/fetchctl/internal/fetch"
)

// Launcher records launches and hands out fake processes.
type Launcher struct {
	// StartErr, when set, fails every launch.
	StartErr error
	// OnStart runs for each new process before it is returned.
	OnStart func(spec fetch.LaunchSpec, p *Process)

	mu    sync.Mutex
	specs []fetch.LaunchSpec
	procs []*Process
}

func (l *Launcher) Start(_ context.Context, spec fetch.LaunchSpec) (fetch.Process, error) {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.mu.Unlock()

	if l.StartErr != nil {
		return nil, l.StartErr
	}
	p := NewProcess()
	if l.OnStart != nil {
		l.OnStart(spec, p)
	}

	l.mu.Lock()
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	return p, nil
}

// Specs returns every launch requested so far.
func (l *Launcher) Specs() []fetch.LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]fetch.LaunchSpec(nil), l.specs...)
}

// Processes returns every process handed out so far.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.procs...)
}

// Process is a fake daemon process that runs until told to exit.
type Process struct {
	// IgnoreTerm keeps the process alive after Terminate.
	IgnoreTerm bool

	mu         sync.Mutex
	exited     bool
	exitCode   int
	output     string
	terminated bool
	killed     bool
	done       chan struct{}
}

func NewProcess() *Process {
	return &Process{done: make(chan struct{})}
}

// Exit ends the process with code and output. Later calls are ignored.
func (p *Process) Exit(code int, output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.exitCode = code
	p.output = output
	close(p.done)
}

func (p *Process) Pid() int { return 4242 }

func (p *Process) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return p.Exited()
	}
}

func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		return -1
	}
	return p.exitCode
}

func (p *Process) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

func (p *Process) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	ignore := p.IgnoreTerm
	p.mu.Unlock()
	if !ignore {
		p.Exit(143, p.Output())
	}
	return nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(137, p.Output())
	return nil
}

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
