package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// ProcessState is the lifecycle position of a worker process.
type ProcessState int

// Worker process lifecycle: Created → Running → {Exited | ForceTerminated} → Reaped.
const (
	StateCreated ProcessState = iota
	StateRunning
	StateExited
	StateForceTerminated
	StateReaped
)

func (s ProcessState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateForceTerminated:
		return "force_terminated"
	case StateReaped:
		return "reaped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a lifecycle step is taken out of order.
var ErrInvalidTransition = errors.New("invalid process state transition")

var validTransitions = map[ProcessState][]ProcessState{
	StateCreated:         {StateRunning},
	StateRunning:         {StateExited, StateForceTerminated},
	StateExited:          {StateReaped},
	StateForceTerminated: {StateReaped},
}

// Process is the coordinator's exclusive handle on one worker process.
type Process struct {
	cmd *exec.Cmd

	mu      sync.Mutex
	state   ProcessState
	waitErr error
	done    chan struct{}
}

func newProcess(cmd *exec.Cmd) *Process {
	configureProcAttr(cmd)
	return &Process{
		cmd:   cmd,
		state: StateCreated,
		done:  make(chan struct{}),
	}
}

// Start launches the process and begins waiting for it in the background.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateCreated {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, p.state)
	}
	if err := p.cmd.Start(); err != nil {
		return err
	}
	if err := p.transition(StateRunning); err != nil {
		return err
	}

	go p.wait()
	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	if p.state == StateRunning {
		_ = p.transition(StateExited)
	}
	p.mu.Unlock()

	close(p.done)
}

// Done is closed once the process has exited and been waited for.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the process was started and has not exited yet.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning || p.state == StateForceTerminated
}

// State returns the current lifecycle state.
func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pid returns the operating system process id, or 0 before Start.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill forcibly terminates the process and everything in its process
// group. Killing a process that already exited is a no-op.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return nil
	}

	// the group goes first so descendants die even when the leader is gone
	killProcessGroup(p.cmd.Process.Pid)
	if err := p.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("failed to kill worker: %w", err)
	}

	return p.transition(StateForceTerminated)
}

// Reap blocks until the process has been waited for and marks it reaped.
// It returns immediately for a process that never started.
func (p *Process) Reap() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == StateCreated || state == StateReaped {
		return nil
	}

	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReaped {
		return nil
	}
	return p.transition(StateReaped)
}

// ExitCode returns the exit code once the process is done, -1 when it
// was killed by a signal or has not finished.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// WaitErr returns the error reported by waiting on the process.
func (p *Process) WaitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// transition must be called with mu held.
func (p *Process) transition(to ProcessState) error {
	for _, allowed := range validTransitions[p.state] {
		if allowed == to {
			p.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, to)
}
