package config

import (
	"path/filepath"
)

const (
	DefaultKubectlPath      = "kubectl"
	DefaultRestartSignature = "lost connection to pod"
	DefaultAPIHost          = "127.0.0.1"
	DefaultAPIPort          = 7531
	DefaultQueueSize        = 64
	DefaultLogLevel         = "info"
)

// GetDefaultSettings returns the built-in settings. The data directory
// defaults to the platform's user config directory; if that cannot be
// determined the current directory is used.
func GetDefaultSettings() Settings {
	return Settings{
		Kubectl: KubectlSettings{
			Path:             DefaultKubectlPath,
			RestartSignature: DefaultRestartSignature,
		},
		Storage: StorageSettings{
			DataDir: defaultDataDir(),
		},
		Logging: LoggingSettings{
			Level:  DefaultLogLevel,
			Format: LogFormatText,
		},
		API: APISettings{
			Host: DefaultAPIHost,
			Port: DefaultAPIPort,
		},
		Dispatcher: DispatcherSettings{
			QueueSize: DefaultQueueSize,
		},
	}
}

func defaultDataDir() string {
	dir, err := osUserConfigDir()
	if err != nil {
		return appName
	}
	return filepath.Join(dir, appName)
}
