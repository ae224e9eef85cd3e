package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is a running worker. Its pipes are only ever touched by the
// Supervisor that launched it.
type Process interface {
	Pid() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	Kill() error
	// Close releases the parent's ends of the pipes.
	Close() error
}

// Launcher starts a worker process.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher starts the worker as an operating-system subprocess.
type ExecLauncher struct {
	Path string
	Args []string
	// Env is appended to the helper's own environment.
	Env []string
}

// Launch implements Launcher. The process is not bound to ctx: its lifetime
// is managed by the Supervisor's shutdown sequence.
func (l ExecLauncher) Launch(_ context.Context) (Process, error) {
	// #nosec G204 -- the engine and script paths come from the local config file
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = append(os.Environ(), l.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// os.Pipe instead of StdoutPipe: Wait must not close the readers while
	// the supervisor is still draining them.
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrReader, stderrWriter, err := os.Pipe()
	if err != nil {
		closeAll(stdoutReader, stdoutWriter)

		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	err = cmd.Start()

	closeAll(stdoutWriter, stderrWriter)

	if err != nil {
		closeAll(stdoutReader, stderrReader)

		return nil, fmt.Errorf("failed to start %s: %w", l.Path, err)
	}

	return &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutReader,
		stderr: stderrReader,
	}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return -1, err
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return p.cmd.ProcessState.ExitCode(), fmt.Errorf("failed waiting for worker: %w", err)
	}

	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill worker: %w", err)
	}

	return nil
}

func (p *execProcess) Close() error {
	return errors.Join(p.stdout.Close(), p.stderr.Close())
}

func closeAll(files ...*os.File) {
	for _, file := range files {
		_ = file.Close()
	}
}
