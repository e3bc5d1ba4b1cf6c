package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const (
	lineBufferSize = 64
	maxLineLength  = 1024 * 1024
)

// Exit describes how a process terminated. Code is -1 when the process was
// killed by a signal or its status could not be collected; Err then carries
// the reason.
type Exit struct {
	Code int
	Err  error
}

// Process is a running external command observed through two line streams
// and one terminal event. Stdout and Stderr are closed before the single
// Exit value is delivered, so a reader that drains both streams first sees
// every line before the exit.
type Process interface {
	PID() int
	Kill() error
	Stdout() <-chan string
	Stderr() <-chan string
	Exit() <-chan Exit
}

// Runner starts processes.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecRunner starts real OS processes with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout chan string
	stderr chan string
	exit   chan Exit
}

// Start launches name with args. The process is not bound to ctx; it lives
// until it exits or Kill is called. A ctx that is already done prevents the
// launch.
func (r *ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("not starting %s: %w", name, err)
	}

	cmd := exec.Command(name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &execProcess{
		cmd:    cmd,
		stdout: make(chan string, lineBufferSize),
		stderr: make(chan string, lineBufferSize),
		exit:   make(chan Exit, 1),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdoutPipe, p.stdout, &wg)
	go scanLines(stderrPipe, p.stderr, &wg)

	go func() {
		// Pipes must be drained before Wait closes them.
		wg.Wait()
		p.exit <- exitFromWait(cmd.Wait())
		close(p.exit)
	}()

	return p, nil
}

func scanLines(r io.Reader, out chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		out <- strings.TrimRight(scanner.Text(), "\r")
	}
	if scanner.Err() != nil {
		// Overlong line or closed pipe. Keep draining so the child never
		// blocks on a full pipe; the exit status from Wait is what matters.
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitFromWait(err error) Exit {
	if err == nil {
		return Exit{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Exit{Code: exitErr.ExitCode(), Err: err}
	}
	return Exit{Code: -1, Err: err}
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill sends SIGKILL. Killing a process that already exited is not an error.
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Stdout() <-chan string { return p.stdout }
func (p *execProcess) Stderr() <-chan string { return p.stderr }
func (p *execProcess) Exit() <-chan Exit     { return p.exit }
