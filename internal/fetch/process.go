package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// maxCapturedOutput caps how much daemon output is kept for crash diagnosis.
// Output past the cap is discarded.
const maxCapturedOutput = 64 << 10

// LaunchSpec describes the daemon invocation.
type LaunchSpec struct {
	Path string
	Args []string
	// Env is the complete environment of the child process.
	Env []string
}

// ProcessLauncher starts daemon processes.
type ProcessLauncher interface {
	Start(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a handle on a started daemon.
type Process interface {
	Pid() int
	// Wait blocks until the process exits or timeout elapses and reports
	// whether it exited.
	Wait(timeout time.Duration) bool
	// Exited reports whether the process has exited, without blocking.
	Exited() bool
	// ExitCode is meaningful only after the process has exited.
	ExitCode() int
	// Output returns the combined stdout and stderr captured so far.
	Output() string
	Terminate() error
	Kill() error
}

// ExecLauncher starts processes on the local host.
type ExecLauncher struct{}

// Start launches the daemon. The process is not tied to ctx: it outlives the
// call and is stopped through Terminate or Kill.
func (ExecLauncher) Start(_ context.Context, spec LaunchSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &p.out
	cmd.Stderr = &p.out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	out  cappedBuffer
	done chan struct{}
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *execProcess) Output() string { return p.out.String() }

func (p *execProcess) Terminate() error { return p.signal(unix.SIGTERM) }

func (p *execProcess) Kill() error { return p.signal(unix.SIGKILL) }

func (p *execProcess) signal(sig os.Signal) error {
	if p.Exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// cappedBuffer is a goroutine-safe writer keeping the first maxCapturedOutput
// bytes written to it.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxCapturedOutput - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
