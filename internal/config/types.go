package config

import (
	"net"
	"strconv"
)

// Settings is the top-level configuration structure for fwdctl.
type Settings struct {
	Kubectl    KubectlSettings    `yaml:"kubectl"`
	Storage    StorageSettings    `yaml:"storage"`
	Logging    LoggingSettings    `yaml:"logging"`
	API        APISettings        `yaml:"api"`
	Dispatcher DispatcherSettings `yaml:"dispatcher"`
}

// KubectlSettings controls how port-forward processes are launched.
type KubectlSettings struct {
	Path             string `yaml:"path,omitempty"`
	RestartSignature string `yaml:"restartSignature,omitempty"` // Matched case-insensitively against the last log line
}

// StorageSettings locates the forward definitions file.
type StorageSettings struct {
	DataDir string `yaml:"dataDir,omitempty"`
}

// LoggingSettings selects the log level and output format.
type LoggingSettings struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" or "json"
}

// APISettings is where the daemon serves its control API.
type APISettings struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Address returns host:port.
func (a APISettings) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// URL returns the base URL clients use to reach the API.
func (a APISettings) URL() string {
	return "http://" + a.Address()
}

// DispatcherSettings sizes the start request inbox.
type DispatcherSettings struct {
	QueueSize int `yaml:"queueSize,omitempty"`
}

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
