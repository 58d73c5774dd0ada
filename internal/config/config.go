package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/devsup/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. DEVSUP_PORT=3000 or
// DEVSUP_RESTART_MAX_RESTARTS=5.
const EnvPrefix = "DEVSUP"

// Config is the complete supervisor configuration. The zero-argument defaults
// run `npx vite --host 0.0.0.0 --port 5173` with three startup retries.
type Config struct {
	Command  string        `toml:"command" mapstructure:"command"`
	Args     []string      `toml:"args" mapstructure:"args"`
	Host     string        `toml:"host" mapstructure:"host"`
	Port     int           `toml:"port" mapstructure:"port"`
	WorkDir  string        `toml:"work_dir" mapstructure:"work_dir"`
	Env      []string      `toml:"env" mapstructure:"env"`
	EnvFiles []string      `toml:"env_files" mapstructure:"env_files"`
	LockFile string        `toml:"lock_file" mapstructure:"lock_file"`
	Restart  RestartConfig `toml:"restart" mapstructure:"restart"`
	Ready    ReadyConfig   `toml:"ready" mapstructure:"ready"`
	Log      LogConfig     `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig `toml:"history" mapstructure:"history"`
}

type RestartConfig struct {
	MaxRestarts  int           `toml:"max_restarts" mapstructure:"max_restarts"`
	StartupDelay time.Duration `toml:"startup_delay" mapstructure:"startup_delay"`
	CrashDelay   time.Duration `toml:"crash_delay" mapstructure:"crash_delay"`
}

type ReadyConfig struct {
	Markers []string `toml:"markers" mapstructure:"markers"`
}

type LogConfig struct {
	File       string `toml:"file" mapstructure:"file"`
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	ShowTime   bool   `toml:"show_time" mapstructure:"show_time"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled         bool          `toml:"enabled" mapstructure:"enabled"`
	Listen          string        `toml:"listen" mapstructure:"listen"`
	ProcessInterval time.Duration `toml:"process_interval" mapstructure:"process_interval"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("command", "npx")
	v.SetDefault("args", []string{"vite"})
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5173)
	v.SetDefault("work_dir", "")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("lock_file", ".devsup.lock")

	v.SetDefault("restart.max_restarts", 3)
	v.SetDefault("restart.startup_delay", 5*time.Second)
	v.SetDefault("restart.crash_delay", 3*time.Second)

	v.SetDefault("ready.markers", []string{"ready in", "Local:"})

	v.SetDefault("log.file", logger.DefaultFile)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", false)
	v.SetDefault("log.show_time", false)
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.process_interval", 5*time.Second)

	v.SetDefault("history.dsn", "")
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return &c
}

// Load reads defaults, then the optional TOML file at path, then DEVSUP_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("command is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Restart.MaxRestarts < 0 {
		return fmt.Errorf("restart.max_restarts cannot be negative (%d)", c.Restart.MaxRestarts)
	}
	if c.Restart.StartupDelay < 0 || c.Restart.CrashDelay < 0 {
		return errors.New("restart delays cannot be negative")
	}
	if len(c.Ready.Markers) == 0 {
		return errors.New("ready.markers must list at least one marker")
	}
	for i, m := range c.Ready.Markers {
		if m == "" {
			return fmt.Errorf("ready.markers[%d] is empty", i)
		}
	}
	for i, kv := range c.Env {
		if strings.IndexByte(kv, '=') <= 0 {
			return fmt.Errorf("env[%d] %q is invalid, must be in KEY=VALUE format", i, kv)
		}
	}
	return nil
}

// Argv returns the child's argument list: Args followed by the host and port
// bindings when set.
func (c *Config) Argv() []string {
	argv := append([]string(nil), c.Args...)
	if c.Host != "" {
		argv = append(argv, "--host", c.Host)
	}
	if c.Port > 0 {
		argv = append(argv, "--port", strconv.Itoa(c.Port))
	}
	return argv
}

// ChildEnv returns the overlay entries for the child: env_files contents in
// order, then the env list, later entries winning.
func (c *Config) ChildEnv() ([]string, error) {
	var out []string
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("load env file %s: %w", p, err)
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// Logger converts the log section to logger.Config.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		File:       c.Log.File,
		Level:      c.Log.Level,
		Color:      c.Log.Color,
		ShowTime:   c.Log.ShowTime,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
// Lines starting with # are ignored; no export keyword, no quoting.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}
