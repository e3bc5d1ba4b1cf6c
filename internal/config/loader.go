package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation"

	"fwdctl/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osUserConfigDir = os.UserConfigDir

const (
	appName          = "fwdctl"
	userConfigDir    = ".config/fwdctl"
	projectConfigDir = ".fwdctl"
	configFileName   = "config.yaml"
)

// LoadSettings loads the fwdctl settings by layering default, user, and
// project files. Missing files are skipped.
func LoadSettings() (Settings, error) {
	settings := GetDefaultSettings()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if fileExists(userConfigPath) {
		userSettings, err := loadSettingsFromFile(userConfigPath)
		if err != nil {
			return Settings{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
		settings = mergeSettings(settings, userSettings)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if fileExists(projectConfigPath) {
		projectSettings, err := loadSettingsFromFile(projectConfigPath)
		if err != nil {
			return Settings{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
		settings = mergeSettings(settings, projectSettings)
	}

	return settings, validate(settings)
}

// LoadSettingsFromPath layers a single explicit file over the defaults.
func LoadSettingsFromPath(path string) (Settings, error) {
	fileSettings, err := loadSettingsFromFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	settings := mergeSettings(GetDefaultSettings(), fileSettings)
	return settings, validate(settings)
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// loadSettingsFromFile loads Settings from a YAML file.
func loadSettingsFromFile(filePath string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Settings{}, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// mergeSettings merges non-zero 'overlay' fields into 'base'.
func mergeSettings(base, overlay Settings) Settings {
	merged := base

	if overlay.Kubectl.Path != "" {
		merged.Kubectl.Path = overlay.Kubectl.Path
	}
	if overlay.Kubectl.RestartSignature != "" {
		merged.Kubectl.RestartSignature = overlay.Kubectl.RestartSignature
	}
	if overlay.Storage.DataDir != "" {
		merged.Storage.DataDir = expandHome(overlay.Storage.DataDir)
	}
	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.Format != "" {
		merged.Logging.Format = overlay.Logging.Format
	}
	if overlay.API.Host != "" {
		merged.API.Host = overlay.API.Host
	}
	if overlay.API.Port != 0 {
		merged.API.Port = overlay.API.Port
	}
	if overlay.Dispatcher.QueueSize != 0 {
		merged.Dispatcher.QueueSize = overlay.Dispatcher.QueueSize
	}

	return merged
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := osUserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func validate(s Settings) error {
	if _, ok := logging.ParseLevel(s.Logging.Level); !ok {
		return fmt.Errorf("invalid logging.level %q", s.Logging.Level)
	}
	if s.Logging.Format != LogFormatText && s.Logging.Format != LogFormatJSON {
		return fmt.Errorf("invalid logging.format %q: must be %q or %q", s.Logging.Format, LogFormatText, LogFormatJSON)
	}
	if msgs := validation.IsValidPortNum(s.API.Port); len(msgs) > 0 {
		return fmt.Errorf("invalid api.port %d: %s", s.API.Port, strings.Join(msgs, "; "))
	}
	if s.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("invalid dispatcher.queueSize %d", s.Dispatcher.QueueSize)
	}
	return nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
