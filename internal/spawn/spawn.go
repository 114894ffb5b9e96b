// Package spawn provides a scoped handle on a short-lived child process
// wired to the parent through two unidirectional pipes. The handle owns the
// process and both pipe ends: whatever path the caller leaves by, Close
// releases the descriptors and reaps the child exactly once, so a crashed
// or wedged worker can never leak file descriptors or a zombie into the
// host process.
package spawn

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Process is a running child wired stdin/stdout to the parent.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	eofOnce  sync.Once
	waitOnce sync.Once
	waitErr  error
	exitCode int
	reaped   bool
}

// New starts argv[0] with the remaining arguments, returning the parent
// side of both pipes. The child inherits nothing beyond the two pipes;
// stderr is discarded.
func New(argv ...string) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("spawn: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("spawn: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("spawn: start %s: %w", argv[0], err)
	}
	return &Process{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Stdin is the write end feeding the child's standard input.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Stdout is the read end of the child's standard output.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Pid returns the child's process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// SendEOF closes the child's stdin so it observes end of input. Safe to
// call more than once.
func (p *Process) SendEOF() {
	p.eofOnce.Do(func() { _ = p.stdin.Close() })
}

// Wait blocks until the child exits and returns its exit code. The child
// is reaped at most once; repeated calls return the recorded code. Wait
// returns even if the child was killed externally.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		p.SendEOF()
		err := p.cmd.Wait()
		p.reaped = true
		if err == nil {
			p.exitCode = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
			return
		}
		p.waitErr = err
		p.exitCode = -1
	})
	return p.exitCode, p.waitErr
}

// Close releases both pipe ends and guarantees the child is reaped. If the
// child has not exited yet it is killed first. Close is idempotent and safe
// under defer on every exit path.
func (p *Process) Close() error {
	p.SendEOF()
	if !p.reaped {
		_ = p.cmd.Process.Kill()
	}
	_, err := p.Wait()
	return err
}
