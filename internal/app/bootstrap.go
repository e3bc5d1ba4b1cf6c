package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"fwdctl/internal/config"
	"fwdctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs the
// fwdctl daemon
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads settings, configures logging and wires all services.
func NewApplication(cfg *Config, version string) (*Application, error) {
	// Logging must work before settings are known
	initLogging(cfg.Debug, config.LoggingSettings{}, os.Stderr)

	var settings config.Settings
	var err error

	if cfg.ConfigPath != "" {
		settings, err = config.LoadSettingsFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load settings from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load settings from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded settings from custom path: %s", cfg.ConfigPath)
	} else {
		settings, err = config.LoadSettings()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load settings")
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded settings using layered approach")
	}

	cfg.Settings = &settings
	initLogging(cfg.Debug, settings.Logging, os.Stderr)

	services, err := InitializeServices(cfg, version)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *Application) Run(ctx context.Context) error {
	return runDaemon(ctx, a.config, a.services)
}

func initLogging(debug bool, settings config.LoggingSettings, output io.Writer) {
	level, _ := logging.ParseLevel(settings.Level)
	if debug {
		level = logging.LevelDebug
	}
	if settings.Format == config.LogFormatJSON {
		logging.InitForJSON(level, output)
		return
	}
	logging.InitForCLI(level, output)
}
