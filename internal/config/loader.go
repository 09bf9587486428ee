package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// NewFileLoader creates a loader that reads an explicit config file.
// Relative paths in it still resolve against rootDir.
func NewFileLoader(rootDir, configFile string) Loader {
	return &loader{
		rootDir:    rootDir,
		configFile: configFile,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (SNIPDEX_*)
// 2. Config file (.snipdex/config.yml or .snipdex/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, DirName))
	}

	v.SetEnvPrefix("SNIPDEX")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., SNIPDEX_SERVER_ADDR)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolvePaths(l.rootDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("storage.data_dir")

	v.BindEnv("index.batch_size")
	v.BindEnv("index.tombstone_ttl")

	v.BindEnv("sync.on_startup")
	v.BindEnv("sync.retain")
	v.BindEnv("sync.history_keep")

	v.BindEnv("watch.enabled")
	v.BindEnv("watch.debounce")
	v.BindEnv("watch.ignore")

	v.BindEnv("server.addr")

	v.BindEnv("log.file")
	v.BindEnv("log.max_size_mb")
	v.BindEnv("log.max_backups")
	v.BindEnv("log.max_age_days")
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("storage.data_dir", defaults.Storage.DataDir)

	v.SetDefault("index.batch_size", defaults.Index.BatchSize)
	v.SetDefault("index.tombstone_ttl", defaults.Index.TombstoneTTL)

	v.SetDefault("sync.on_startup", defaults.Sync.OnStartup)
	v.SetDefault("sync.retain", defaults.Sync.Retain)
	v.SetDefault("sync.history_keep", defaults.Sync.HistoryKeep)

	v.SetDefault("watch.enabled", defaults.Watch.Enabled)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)

	v.SetDefault("server.addr", defaults.Server.Addr)

	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.Log.MaxAgeDays)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
