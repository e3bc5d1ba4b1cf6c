// Package processtest provides in-memory process.Runner and process.Process
// implementations for tests that must not spawn kubectl.
package processtest

import (
	"context"
	"sync"

	"fwdctl/internal/process"
)

// Process is a scripted process. Lines are pushed with EmitStdout and
// EmitStderr, termination with Finish. Kill behaves like SIGKILL: it counts
// the call and finishes the process with code -1 if it is still running.
type Process struct {
	pid    int
	args   []string
	stdout chan string
	stderr chan string
	exit   chan process.Exit

	mu       sync.Mutex
	kills    int
	finished bool
}

// NewProcess returns a running fake with the given pid.
func NewProcess(pid int) *Process {
	return &Process{
		pid:    pid,
		stdout: make(chan string, 256),
		stderr: make(chan string, 256),
		exit:   make(chan process.Exit, 1),
	}
}

// Args returns the arguments the process was started with by a Runner.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

func (p *Process) PID() int                  { return p.pid }
func (p *Process) Stdout() <-chan string     { return p.stdout }
func (p *Process) Stderr() <-chan string     { return p.stderr }
func (p *Process) Exit() <-chan process.Exit { return p.exit }

// EmitStdout queues a stdout line. It is a no-op once the process finished.
func (p *Process) EmitStdout(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.stdout <- line
	}
}

// EmitStderr queues a stderr line. It is a no-op once the process finished.
func (p *Process) EmitStderr(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.stderr <- line
	}
}

// Finish closes both line streams and delivers the exit code. Only the
// first call has an effect.
func (p *Process) Finish(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked(code)
}

func (p *Process) finishLocked(code int) {
	if p.finished {
		return
	}
	p.finished = true
	close(p.stdout)
	close(p.stderr)
	p.exit <- process.Exit{Code: code}
	close(p.exit)
}

// Kill records the call and terminates the process with code -1.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	p.finishLocked(-1)
	return nil
}

// Kills returns how many times Kill was called.
func (p *Process) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// Finished reports whether the process has terminated.
func (p *Process) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Call records one Start invocation.
type Call struct {
	Name string
	Args []string
}

// Runner hands out fake processes. Set Err to make every Start fail.
type Runner struct {
	mu      sync.Mutex
	Err     error
	nextPID int
	calls   []Call
	started []*Process
}

// NewRunner returns a Runner whose first process gets pid 1000.
func NewRunner() *Runner {
	return &Runner{nextPID: 1000}
}

// Start implements process.Runner.
func (r *Runner) Start(ctx context.Context, name string, args ...string) (process.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	if r.Err != nil {
		return nil, r.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := NewProcess(r.nextPID)
	p.args = append([]string(nil), args...)
	r.nextPID++
	r.started = append(r.started, p)
	return p, nil
}

// Calls returns every Start invocation so far.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Started returns the processes handed out so far, oldest first.
func (r *Runner) Started() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Process(nil), r.started...)
}

// Last returns the most recently started process, or nil.
func (r *Runner) Last() *Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return nil
	}
	return r.started[len(r.started)-1]
}
