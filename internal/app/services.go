package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fwdctl/internal/dispatcher"
	"fwdctl/internal/launcher"
	"fwdctl/internal/metrics"
	"fwdctl/internal/process"
	"fwdctl/internal/server"
	"fwdctl/internal/store"
	"fwdctl/internal/supervisor"
)

// Services holds all the initialized components of the daemon
type Services struct {
	Store      *store.FileStore
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Dispatcher *dispatcher.Dispatcher
	Supervisor *supervisor.Supervisor
	Launcher   *launcher.Launcher
	Server     *server.Server
}

// InitializeServices wires the store, supervisor, dispatcher, launcher and
// control API together.
func InitializeServices(cfg *Config, version string) (*Services, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings not loaded")
	}
	settings := cfg.Settings

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	runner := cfg.Runner
	if runner == nil {
		runner = process.NewExecRunner()
	}

	fileStore := store.NewFileStore(settings.Storage.DataDir)
	disp := dispatcher.New(settings.Dispatcher.QueueSize)
	sup := supervisor.New(fileStore, disp, m)
	l := launcher.New(runner, sup, disp, launcher.Options{
		Binary:           settings.Kubectl.Path,
		RestartSignature: settings.Kubectl.RestartSignature,
		Metrics:          m,
	})
	srv := server.New(sup, server.Options{
		Address:  settings.API.Address(),
		Version:  version,
		Gatherer: registry,
	})

	return &Services{
		Store:      fileStore,
		Registry:   registry,
		Metrics:    m,
		Dispatcher: disp,
		Supervisor: sup,
		Launcher:   l,
		Server:     srv,
	}, nil
}
