package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Process is a handle to one running mirror window.
type Process interface {
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	Exited() bool
	// ExitCode is only meaningful once Exited reports true.
	ExitCode() int
	// Terminate asks the process to exit gracefully.
	Terminate() error
	Kill() error
}

// LaunchSpec describes one window launch.
type LaunchSpec struct {
	Alias  string
	Target string
	Serial string
	Args   []string
}

// Starter spawns window processes.
type Starter interface {
	Start(spec LaunchSpec) (Process, error)
}

// ExecStarter spawns the mirroring tool as a child process. Launches are not
// bound to a context; windows are stopped through Process.
type ExecStarter struct {
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

func (s ExecStarter) Start(spec LaunchSpec) (Process, error) {
	cmd := exec.Command(s.Path, spec.Args...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s for %s: %w", s.Path, spec.Alias, err)
	}
	return newExecProcess(cmd), nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
}

func newExecProcess(cmd *exec.Cmd) *execProcess {
	p := &execProcess{cmd: cmd, done: make(chan struct{}), exitCode: -1}
	go p.wait()
	return p
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
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
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Terminate sends SIGTERM. Where the platform cannot deliver it the process is killed.
func (p *execProcess) Terminate() error {
	if p.Exited() {
		return nil
	}
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return p.Kill()
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
