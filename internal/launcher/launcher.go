package launcher

import (
	"context"
	"fmt"
	"strings"

	"fwdctl/internal/forward"
	"fwdctl/internal/metrics"
	"fwdctl/internal/process"
	"fwdctl/pkg/logging"
)

const (
	// DefaultBinary is the kubectl executable looked up on PATH.
	DefaultBinary = "kubectl"
	// DefaultRestartSignature marks an exit as a transient loss of the pod
	// connection. It is matched against the lowercased last log line.
	DefaultRestartSignature = "lost connection to pod"
)

// SpawnError reports that kubectl could not be started for a forward.
type SpawnError struct {
	ForwardID string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn port-forward %s: %v", e.ForwardID, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// State is the part of the supervisor the launcher reports into.
type State interface {
	// Launchable reports whether a start request for id is still wanted and
	// returns the definition to launch.
	Launchable(id string) (forward.Definition, bool)
	// RegisterProcess hands proc to the supervisor. A false return means the
	// process is not wanted and the caller must kill it.
	RegisterProcess(id string, proc process.Process) bool
	MarkFailed(id string)
	AppendLog(id string, line string)
	// HandleExit applies action for the termination of proc and returns the
	// action actually taken together with the current definition.
	HandleExit(id string, proc process.Process, action forward.ExitAction) (forward.Definition, forward.ExitAction)
}

// Starter queues a new start request.
type Starter interface {
	RequestStart(def forward.Definition)
}

// Options tune a Launcher. Zero values select the defaults.
type Options struct {
	Binary           string
	RestartSignature string
	Metrics          *metrics.Metrics
}

// Launcher spawns kubectl port-forward for a forward and watches the
// process until it terminates.
type Launcher struct {
	runner    process.Runner
	state     State
	starter   Starter
	binary    string
	signature string
	metrics   *metrics.Metrics
}

// New returns a Launcher that reports into state and sends restarts to
// starter.
func New(runner process.Runner, state State, starter Starter, opts Options) *Launcher {
	l := &Launcher{
		runner:    runner,
		state:     state,
		starter:   starter,
		binary:    opts.Binary,
		signature: strings.ToLower(strings.TrimSpace(opts.RestartSignature)),
		metrics:   opts.Metrics,
	}
	if l.binary == "" {
		l.binary = DefaultBinary
	}
	if l.signature == "" {
		l.signature = DefaultRestartSignature
	}
	return l
}

// Classify decides what to do about a terminated process given its exit
// code and the last line it logged.
func Classify(code int, lastLine, signature string) forward.ExitAction {
	if code == 0 {
		return forward.ExitIgnore
	}
	if signature == "" {
		signature = DefaultRestartSignature
	}
	if strings.Contains(strings.ToLower(strings.TrimSpace(lastLine)), signature) {
		return forward.ExitRestart
	}
	return forward.ExitFail
}

// Launch starts the process for the forward requested by def. The arguments
// come from the forward's current definition, not from the queued copy. It
// returns a nil process without error when the forward no longer wants one.
func (l *Launcher) Launch(ctx context.Context, requested forward.Definition) (process.Process, error) {
	def, ok := l.state.Launchable(requested.ID)
	if !ok {
		logging.Debug("Launcher", "Skipping launch of %s: no longer requested", requested.Label())
		return nil, nil
	}

	args := def.Args()
	logging.Debug("Launcher", "Starting %s %s", l.binary, strings.Join(args, " "))

	proc, err := l.runner.Start(ctx, l.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		spawnErr := &SpawnError{ForwardID: def.ID, Err: err}
		logging.Error("Launcher", spawnErr, "Could not start port-forward for %s", def.Label())
		l.state.AppendLog(def.ID, spawnErr.Error())
		l.state.MarkFailed(def.ID)
		l.metrics.ForwardFailed(metrics.ReasonSpawn)
		return nil, spawnErr
	}

	if !l.state.RegisterProcess(def.ID, proc) {
		logging.Debug("Launcher", "Discarding process %d for %s: forward no longer wants it", proc.PID(), def.Label())
		_ = proc.Kill()
		go drain(proc)
		return nil, nil
	}

	l.metrics.ForwardStarted()
	logging.Info("Launcher", "Port-forward %s running (pid %d)", def.Label(), proc.PID())

	go l.observe(def, proc)
	return proc, nil
}

// observe forwards output lines into the log buffer and acts on the exit.
func (l *Launcher) observe(def forward.Definition, proc process.Process) {
	var lastLine string
	stdout, stderr := proc.Stdout(), proc.Stderr()

	for stdout != nil || stderr != nil {
		var (
			line string
			ok   bool
		)
		select {
		case line, ok = <-stdout:
			if !ok {
				stdout = nil
				continue
			}
		case line, ok = <-stderr:
			if !ok {
				stderr = nil
				continue
			}
		}
		logging.Debug("Forward-"+def.Name, "%s", line)
		l.state.AppendLog(def.ID, line)
		if strings.TrimSpace(line) != "" {
			lastLine = line
		}
	}

	exit, ok := <-proc.Exit()
	if !ok {
		exit = process.Exit{Code: -1}
	}

	action := Classify(exit.Code, lastLine, l.signature)
	current, applied := l.state.HandleExit(def.ID, proc, action)

	switch applied {
	case forward.ExitRestart:
		logging.Warn("Launcher", "Port-forward %s lost its pod connection, restarting", current.Label())
		l.metrics.ForwardRestarted()
		l.starter.RequestStart(current)
	case forward.ExitFail:
		logging.Warn("Launcher", "Port-forward %s failed with exit code %d: %s", current.Label(), exit.Code, lastLine)
		l.metrics.ForwardFailed(metrics.ReasonExit)
	default:
		logging.Debug("Launcher", "Process %d for %s exited with code %d", proc.PID(), def.Label(), exit.Code)
	}
}

func drain(proc process.Process) {
	stdout, stderr := proc.Stdout(), proc.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case _, ok := <-stdout:
			if !ok {
				stdout = nil
			}
		case _, ok := <-stderr:
			if !ok {
				stderr = nil
			}
		}
	}
	<-proc.Exit()
}
