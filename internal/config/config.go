package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Framework FrameworkConfig
	History   HistoryConfig
	Log       LogConfig
	UI        UIConfig
}

// FrameworkConfig selects how tests are discovered and run.
type FrameworkConfig struct {
	Command  string
	Dir      string
	Packages []string
	Args     []string
}

// HistoryConfig holds sqlite settings for the run history.
type HistoryConfig struct {
	Enabled bool
	Path    string
	// Keep is how many runs survive pruning at startup.
	Keep int
}

// LogConfig holds log file settings. An empty path disables logging.
type LogConfig struct {
	Path  string
	Level string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	ShowOutput bool          `mapstructure:"show_output"`
	TickMillis int           `mapstructure:"tick_millis"`
	Keys       []KeyOverride `mapstructure:"keys"`
}

// KeyOverride rebinds one action within a key scope.
type KeyOverride struct {
	Scope  string   `mapstructure:"scope"`
	Action string   `mapstructure:"action"`
	Keys   []string `mapstructure:"keys"`
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "testdock")
}

// Load reads configuration from file and env. Env var overrides use prefix TESTDOCK_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("framework.command", "go")
	v.SetDefault("framework.dir", ".")
	v.SetDefault("framework.packages", []string{"./..."})
	v.SetDefault("framework.args", []string{})
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(dataDir(), "history.db"))
	v.SetDefault("history.keep", 50)
	v.SetDefault("log.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("ui.show_output", true)
	v.SetDefault("ui.tick_millis", 150)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("TESTDOCK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "testdock"))
		v.AddConfigPath(".")
		v.SetConfigName("testdock")
	}

	v.SetEnvPrefix("TESTDOCK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.Framework.Packages) == 0 {
		c.Framework.Packages = []string{"./..."}
	}
	if c.UI.TickMillis <= 0 {
		c.UI.TickMillis = 150
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("TESTDOCK_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "testdock", "testdock.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("framework.command", cfg.Framework.Command)
	v.Set("framework.dir", cfg.Framework.Dir)
	v.Set("framework.packages", cfg.Framework.Packages)
	v.Set("framework.args", cfg.Framework.Args)
	v.Set("history.enabled", cfg.History.Enabled)
	v.Set("history.path", cfg.History.Path)
	v.Set("history.keep", cfg.History.Keep)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("ui.show_output", cfg.UI.ShowOutput)
	v.Set("ui.tick_millis", cfg.UI.TickMillis)
	if len(cfg.UI.Keys) > 0 {
		keys := make([]map[string]any, 0, len(cfg.UI.Keys))
		for _, k := range cfg.UI.Keys {
			keys = append(keys, map[string]any{"scope": k.Scope, "action": k.Action, "keys": k.Keys})
		}
		v.Set("ui.keys", keys)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
