// Package config provides configuration loading for snipdex.
//
// Configuration is read from <root>/.snipdex/config.yml with environment
// variable overrides. Priority, highest first:
//  1. Environment variables (SNIPDEX_*, nested keys joined with '_')
//  2. Config file (.snipdex/config.yml or .snipdex/config.yaml)
//  3. Built-in defaults
package config

import (
	"path/filepath"
	"time"
)

// Config represents the complete snipdex configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StorageConfig locates persisted data.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"` // Relative paths resolve against the root directory
}

// IndexConfig tunes the search index.
type IndexConfig struct {
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`       // Hits fetched per index round trip
	TombstoneTTL time.Duration `yaml:"tombstone_ttl" mapstructure:"tombstone_ttl"` // How long a delete shadows stale re-adds
}

// SyncConfig controls reconciliation runs.
type SyncConfig struct {
	OnStartup   bool `yaml:"on_startup" mapstructure:"on_startup"`     // Start a run when the server starts
	Retain      int  `yaml:"retain" mapstructure:"retain"`             // Runs kept queryable in memory
	HistoryKeep int  `yaml:"history_keep" mapstructure:"history_keep"` // Runs kept in the history database
}

// WatchConfig controls the snippet directory watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Ignore   []string      `yaml:"ignore" mapstructure:"ignore"` // glob patterns matched against file names
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DirName is the per-root directory holding config and default data.
const DirName = ".snipdex"

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: DirName,
		},
		Index: IndexConfig{
			BatchSize:    200,
			TombstoneTTL: time.Hour,
		},
		Sync: SyncConfig{
			OnStartup:   true,
			Retain:      16,
			HistoryKeep: 200,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 2 * time.Second,
			Ignore:   []string{".tmp-*"},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// SnippetsDir is the directory holding one yaml file per snippet.
func (c *Config) SnippetsDir() string {
	return filepath.Join(c.Storage.DataDir, "snippets")
}

// IndexPath is the bleve index directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Storage.DataDir, "index.bleve")
}

// HistoryPath is the SQLite run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Storage.DataDir, "history.db")
}

// TagsPath is the tag registry file.
func (c *Config) TagsPath() string {
	return filepath.Join(c.Storage.DataDir, "tags.yaml")
}

// resolvePaths makes relative paths absolute against rootDir.
func (c *Config) resolvePaths(rootDir string) {
	if c.Storage.DataDir != "" && !filepath.IsAbs(c.Storage.DataDir) {
		c.Storage.DataDir = filepath.Join(rootDir, c.Storage.DataDir)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(rootDir, c.Log.File)
	}
}
