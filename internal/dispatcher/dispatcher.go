package dispatcher

import (
	"context"

	"fwdctl/internal/forward"
	"fwdctl/internal/process"
	"fwdctl/pkg/logging"
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 64

// Launcher spawns the process for a forward.
type Launcher interface {
	Launch(ctx context.Context, def forward.Definition) (process.Process, error)
}

// Dispatcher is a single-consumer inbox of start requests. A request made
// from inside an exit handler is only queued here, so the launch happens
// later on the consumer goroutine instead of re-entering the launcher.
type Dispatcher struct {
	requests chan forward.Definition
	done     chan struct{}
}

// New creates a Dispatcher whose inbox holds size pending requests.
func New(size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		requests: make(chan forward.Definition, size),
		done:     make(chan struct{}),
	}
}

// RequestStart enqueues a launch for def. Requests are served in the order
// they were made. Once Run has returned, requests are dropped.
func (d *Dispatcher) RequestStart(def forward.Definition) {
	select {
	case <-d.done:
		logging.Debug("Dispatcher", "Dropping start request for %s: dispatcher stopped", def.Label())
		return
	default:
	}

	select {
	case d.requests <- def.Clone():
	case <-d.done:
		logging.Debug("Dispatcher", "Dropping start request for %s: dispatcher stopped", def.Label())
	}
}

// Run consumes requests until ctx is cancelled. It must be called once.
func (d *Dispatcher) Run(ctx context.Context, launcher Launcher) {
	defer close(d.done)
	logging.Debug("Dispatcher", "Started")

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Dispatcher", "Stopped: %v", ctx.Err())
			return
		case def := <-d.requests:
			if ctx.Err() != nil {
				return
			}
			if _, err := launcher.Launch(ctx, def); err != nil {
				logging.Debug("Dispatcher", "Launch of %s did not produce a process: %v", def.Label(), err)
			}
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
