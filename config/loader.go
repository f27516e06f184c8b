package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the config file searched for in the
	// working directory and its parents.
	ProjectConfigFile = "ticketbridge.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/ticketbridge"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variable names for secrets that should not live in the
// config file.
const (
	EnvDiscordToken   = "TICKETBRIDGE_DISCORD_TOKEN"
	EnvIntercomToken  = "TICKETBRIDGE_INTERCOM_TOKEN"
	EnvWebhookSecret  = "TICKETBRIDGE_INTERCOM_WEBHOOK_SECRET"
	EnvDiscordChannel = "TICKETBRIDGE_DISCORD_CHANNEL_ID"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. User config (~/.config/ticketbridge/config.yaml)
//  3. Project config (ticketbridge.yaml in current or parent directories),
//     or the explicit path when one is given
//  4. Environment variables
//
// Load returns the resolved path of the project config (empty if none was
// found) so callers can watch it for changes.
func (l *Loader) Load(explicitPath string) (*Config, string, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := explicitPath
	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		projectConfig, err := LoadFromFile(projectConfigPath)
		if err != nil {
			if explicitPath != "" {
				return nil, "", fmt.Errorf("load config %s: %w", explicitPath, err)
			}
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	return config, projectConfigPath, nil
}

// applyEnvOverrides overlays secrets from the environment. Environment
// values win over both config files.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv(EnvDiscordToken); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv(EnvIntercomToken); v != "" {
		c.Intercom.AccessToken = v
	}
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		c.Intercom.WebhookSecret = v
	}
	if v := os.Getenv(EnvDiscordChannel); v != "" {
		c.Discord.ChannelID = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for ticketbridge.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
