package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Trainer       TrainerConfig       `toml:"trainer"`
	Web           WebConfig           `toml:"web"`
	Tail          TailConfig          `toml:"tail"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath    string `toml:"database_path"`
	ModelsDir       string `toml:"models_dir"`
	AutomationsPath string `toml:"automations_path"`
}

// TrainerConfig holds trainer delegation settings
type TrainerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the delegation timeout as a duration
func (c TrainerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebConfig holds HTTP server settings
type WebConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
}

// TailConfig holds subscriber feed settings
type TailConfig struct {
	PollIntervalMs int  `toml:"poll_interval_ms"`
	Heartbeat      bool `toml:"heartbeat"`
}

// PollInterval returns the tail poll interval as a duration
func (c TailConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".flowops", "flowops.db"),
			ModelsDir:    filepath.Join(home, ".flowops", "models"),
		},
		Trainer: TrainerConfig{
			BaseURL:        "http://127.0.0.1:8282",
			TimeoutSeconds: 10,
		},
		Web: WebConfig{
			Host:      "127.0.0.1",
			Port:      8181,
			StaticDir: "web/ui/build",
		},
		Tail: TailConfig{
			PollIntervalMs: 2000,
			Heartbeat:      false,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.ModelsDir = ExpandPath(cfg.General.ModelsDir)
	cfg.General.AutomationsPath = ExpandPath(cfg.General.AutomationsPath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flowops", "config.toml")
}
