package app

import (
	"context"
	"os/signal"
	"syscall"

	"fwdctl/pkg/logging"
)

// runDaemon starts the dispatcher, restores the persisted forwards, serves
// the control API and kills every forward process on the way out.
func runDaemon(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	go services.Dispatcher.Run(dispatchCtx, services.Launcher)

	logging.Info("Daemon", "Using data directory %s", cfg.Settings.Storage.DataDir)
	services.Supervisor.Bootstrap()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- services.Server.Run(ctx)
	}()

	logging.Info("Daemon", "Ready. Press Ctrl+C to stop all port-forwards and exit.")

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-serverErr
	case runErr = <-serverErr:
		if runErr != nil {
			logging.Error("Daemon", runErr, "Control API stopped")
		}
	}

	// Graceful shutdown sequence
	logging.Info("Daemon", "Shutting down port-forwards")
	cancelDispatch()
	<-services.Dispatcher.Done()
	services.Supervisor.Shutdown()

	return runErr
}
