package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".tavernier"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. TAVERNIER_CONFIG overrides
// the default ~/.tavernier/config.json.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("TAVERNIER_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load builds the configuration: defaults, then the JSON config file, then
// TAVERNIER_* environment overrides per group. A .env file in the working
// directory or next to the config file is loaded first.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // use defaults if home cannot be resolved
	}

	// .env candidates, first match wins per key.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	groups := []struct {
		prefix string
		target any
	}{
		{"TAVERNIER_BOT", &cfg.Bot},
		{"TAVERNIER_STORAGE", &cfg.Storage},
		{"TAVERNIER_ACTIVITY", &cfg.Activity},
		{"TAVERNIER_ROOMS", &cfg.Rooms},
		{"TAVERNIER_LEADERBOARD", &cfg.Leaderboard},
		{"TAVERNIER_STATUS", &cfg.Status},
		{"TAVERNIER_INFOCHANNELS", &cfg.Infochannels},
		{"TAVERNIER_WELCOME", &cfg.Welcome},
		{"TAVERNIER_AUDIT", &cfg.Audit},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return nil, fmt.Errorf("failed to process %s env overrides: %w", g.prefix, err)
		}
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(filepath.Dir(path), "tavernier.db")
	}
	return cfg, nil
}

// Save writes cfg to the config file, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports configuration problems that prevent startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return fmt.Errorf("bot token is required (TAVERNIER_BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Bot.GuildID) == "" {
		return fmt.Errorf("guild id is required (TAVERNIER_BOT_GUILD_ID)")
	}
	if len(c.Activity.LevelThresholds) == 0 || c.Activity.LevelThresholds[0] != 0 {
		return fmt.Errorf("activity level thresholds must start at 0")
	}
	for i := 1; i < len(c.Activity.LevelThresholds); i++ {
		if c.Activity.LevelThresholds[i] <= c.Activity.LevelThresholds[i-1] {
			return fmt.Errorf("activity level thresholds must be strictly increasing")
		}
	}
	if c.Rooms.SoloGrace <= 0 {
		return fmt.Errorf("rooms solo grace must be positive")
	}
	return nil
}
