package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"fwdctl/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.InitForCLI(logging.LevelError, io.Discard)
	os.Exit(m.Run())
}

// Helper function to create a temporary settings file
func createTempConfigFile(t *testing.T, dir string, content Settings) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, configFileName)
	data, err := yaml.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// isolate points every lookup at tempDir so the runner's own files are never read.
func isolate(t *testing.T, tempDir string) {
	t.Helper()
	originalUser, originalProject := getUserConfigPath, getProjectConfigPath
	originalHome, originalWd, originalConfigDir := osUserHomeDir, osGetwd, osUserConfigDir
	t.Cleanup(func() {
		getUserConfigPath, getProjectConfigPath = originalUser, originalProject
		osUserHomeDir, osGetwd, osUserConfigDir = originalHome, originalWd, originalConfigDir
	})

	osUserHomeDir = func() (string, error) { return filepath.Join(tempDir, "home"), nil }
	osGetwd = func() (string, error) { return filepath.Join(tempDir, "project"), nil }
	osUserConfigDir = func() (string, error) { return filepath.Join(tempDir, "xdg"), nil }
	getUserConfigPath = func() (string, error) {
		return filepath.Join(tempDir, "home", userConfigDir, configFileName), nil
	}
	getProjectConfigPath = func() (string, error) {
		return filepath.Join(tempDir, "project", projectConfigDir, configFileName), nil
	}
}

func TestLoadSettings_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()
	isolate(t, tempDir)

	settings, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, DefaultKubectlPath, settings.Kubectl.Path)
	assert.Equal(t, DefaultRestartSignature, settings.Kubectl.RestartSignature)
	assert.Equal(t, filepath.Join(tempDir, "xdg", "fwdctl"), settings.Storage.DataDir)
	assert.Equal(t, "127.0.0.1:7531", settings.API.Address())
	assert.Equal(t, "http://127.0.0.1:7531", settings.API.URL())
	assert.Equal(t, DefaultQueueSize, settings.Dispatcher.QueueSize)
	assert.Equal(t, LogFormatText, settings.Logging.Format)
}

func TestLoadSettings_UserThenProjectOverride(t *testing.T) {
	tempDir := t.TempDir()
	isolate(t, tempDir)

	createTempConfigFile(t, filepath.Join(tempDir, "home", userConfigDir), Settings{
		Kubectl: KubectlSettings{Path: "/opt/bin/kubectl"},
		Logging: LoggingSettings{Level: "debug"},
		API:     APISettings{Port: 9000},
	})
	createTempConfigFile(t, filepath.Join(tempDir, "project", projectConfigDir), Settings{
		API:     APISettings{Port: 9100},
		Storage: StorageSettings{DataDir: "~/forwards"},
	})

	settings, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "/opt/bin/kubectl", settings.Kubectl.Path, "user value kept")
	assert.Equal(t, "debug", settings.Logging.Level)
	assert.Equal(t, 9100, settings.API.Port, "project overrides user")
	assert.Equal(t, DefaultAPIHost, settings.API.Host)
	assert.Equal(t, filepath.Join(tempDir, "home", "forwards"), settings.Storage.DataDir)
}

func TestLoadSettings_MalformedFile(t *testing.T) {
	tempDir := t.TempDir()
	isolate(t, tempDir)

	dir := filepath.Join(tempDir, "project", projectConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("api: [not, a, map"), 0644))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestLoadSettings_InvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
	}{
		{"unknown level", Settings{Logging: LoggingSettings{Level: "verbose"}}},
		{"unknown format", Settings{Logging: LoggingSettings{Format: "xml"}}},
		{"port out of range", Settings{API: APISettings{Port: 70000}}},
		{"negative queue", Settings{Dispatcher: DispatcherSettings{QueueSize: -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			isolate(t, tempDir)
			createTempConfigFile(t, filepath.Join(tempDir, "home", userConfigDir), tt.settings)

			_, err := LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestLoadSettingsFromPath(t *testing.T) {
	tempDir := t.TempDir()
	isolate(t, tempDir)

	path := createTempConfigFile(t, filepath.Join(tempDir, "explicit"), Settings{
		Kubectl: KubectlSettings{RestartSignature: "connection reset"},
		Logging: LoggingSettings{Format: LogFormatJSON},
	})

	settings, err := LoadSettingsFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "connection reset", settings.Kubectl.RestartSignature)
	assert.Equal(t, LogFormatJSON, settings.Logging.Format)
	assert.Equal(t, DefaultKubectlPath, settings.Kubectl.Path)

	_, err = LoadSettingsFromPath(filepath.Join(tempDir, "missing.yaml"))
	assert.Error(t, err)
}
