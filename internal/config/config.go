package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ProbeConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	HomeDir    string        `mapstructure:"home_dir"`
	ProjectDir string        `mapstructure:"project_dir"`
	Probe      ProbeConfig   `mapstructure:"probe"`
	History    HistoryConfig `mapstructure:"history"`
	Log        LogConfig     `mapstructure:"log"`

	// File is the settings file that was read, empty if none was found.
	File string `mapstructure:"-"`
}

// Load reads mcpm.yaml from the working directory or $HOME/.mcpm, or from
// file when it is non-empty. A missing settings file is not an error; an
// explicitly named one is. MCPM_* environment variables override both.
func Load(file string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mcpm")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".mcpm"))
	}

	v.SetEnvPrefix("MCPM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("home_dir", home)
	v.SetDefault("project_dir", cwd)
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.max_concurrent", 8)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", filepath.Join(home, ".mcpm", "history.db"))
	v.SetDefault("log.level", "warn")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	cfg.HomeDir = expandHome(cfg.HomeDir, home)
	cfg.ProjectDir = expandHome(cfg.ProjectDir, home)
	cfg.History.DBPath = expandHome(cfg.History.DBPath, home)

	if cfg.Probe.Timeout <= 0 {
		return nil, fmt.Errorf("probe.timeout must be positive, got %s", cfg.Probe.Timeout)
	}
	if cfg.Probe.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("probe.max_concurrent must be positive, got %d", cfg.Probe.MaxConcurrent)
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel converts log.level to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", l.Level)
	}
	return lvl, nil
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
