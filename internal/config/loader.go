package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"skilltest/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/skilltest"
	projectConfigDir = ".skilltest"
	configFileName   = "config.yaml"
)

// LoadConfig loads the skilltest configuration by layering default, user,
// and project settings. The result is validated.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	layers := []struct {
		name string
		path func() (string, error)
	}{
		{"user", getUserConfigPath},
		{"project", getProjectConfigPath},
	}
	for _, layer := range layers {
		path, err := layer.path()
		if err != nil {
			// Optional layer; keep going without it.
			logging.Warn("Config", "Could not determine %s config path: %v", layer.name, err)
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		overlay, err := loadConfigFromFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error loading %s config from %s: %w", layer.name, path, err)
		}
		logging.Debug("Config", "Loaded %s config from %s", layer.name, path)
		config = mergeConfigs(config, overlay)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
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

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Zero values in
// overlay leave base untouched.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	setString(&merged.SkillsDir, overlay.SkillsDir)
	setString(&merged.ReportPath, overlay.ReportPath)
	setString(&merged.LogLevel, overlay.LogLevel)

	setString(&merged.Edge.Binary, overlay.Edge.Binary)
	setString(&merged.Edge.CLIBinary, overlay.Edge.CLIBinary)
	setString(&merged.Edge.LogLevel, overlay.Edge.LogLevel)
	setString(&merged.Edge.ExtraArgs, overlay.Edge.ExtraArgs)
	if overlay.Edge.ShutdownGrace != 0 {
		merged.Edge.ShutdownGrace = overlay.Edge.ShutdownGrace
	}
	if len(overlay.Edge.Env) > 0 {
		env := make(map[string]string, len(base.Edge.Env)+len(overlay.Edge.Env))
		for k, v := range base.Edge.Env {
			env[k] = v
		}
		for k, v := range overlay.Edge.Env {
			env[k] = v
		}
		merged.Edge.Env = env
	}

	t, o := &merged.Timeouts, overlay.Timeouts
	if o.PortReady != 0 {
		t.PortReady = o.PortReady
	}
	if o.PortRetry != 0 {
		t.PortRetry = o.PortRetry
	}
	if o.APIReady != 0 {
		t.APIReady = o.APIReady
	}
	if o.PollInterval != 0 {
		t.PollInterval = o.PollInterval
	}
	if o.Request != 0 {
		t.Request = o.Request
	}
	if o.Deploy != 0 {
		t.Deploy = o.Deploy
	}
	if o.Run != 0 {
		t.Run = o.Run
	}

	// Lists replace rather than append so a layer can remove entries.
	if overlay.Credentials.MockedProviderKeys != nil {
		merged.Credentials.MockedProviderKeys = overlay.Credentials.MockedProviderKeys
	}
	if overlay.Credentials.NonOverridable != nil {
		merged.Credentials.NonOverridable = overlay.Credentials.NonOverridable
	}

	return merged
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
