package runner

import (
	"io"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on I/O after the process exits,
// e.g. when an orphaned grandchild still holds the stderr pipe.
const waitDelay = 2 * time.Second

// Invocation is a fully built simulator command.
type Invocation struct {
	// Path is the program to execute, looked up in PATH if it has no separator.
	Path string

	// Args are the program arguments, excluding Path.
	Args []string

	// Dir is the child's working directory.
	Dir string

	// Env is the child's environment. Nil inherits the parent's environment.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// Argv returns Path followed by Args.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Path}, inv.Args...)
}

// Process is a started child.
type Process interface {
	// Wait blocks until the process exits. A non-zero exit is reported as an
	// error implementing ExitCode() int.
	Wait() error

	// Kill forcibly terminates the process and anything it spawned.
	Kill() error
}

// Launcher starts processes. The default launcher uses os/exec; tests swap
// in a spy to observe invocations without spawning anything.
type Launcher interface {
	Start(inv Invocation) (Process, error)
}

// ExecLauncher starts real child processes in their own process group.
type ExecLauncher struct{}

// Start launches inv.
func (ExecLauncher) Start(inv Invocation) (Process, error) {
	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	return killProcessGroup(p.cmd)
}

var _ Launcher = ExecLauncher{}
