package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrEmptyDataDir indicates a missing storage directory
	ErrEmptyDataDir = errors.New("empty data directory")

	// ErrInvalidBatchSize indicates a non-positive index batch size
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidDuration indicates a negative or zero duration setting
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidRetention indicates invalid run retention settings
	ErrInvalidRetention = errors.New("invalid retention")

	// ErrInvalidPattern indicates an ignore pattern that does not compile
	ErrInvalidPattern = errors.New("invalid ignore pattern")

	// ErrInvalidAddr indicates a malformed listen address
	ErrInvalidAddr = errors.New("invalid server address")

	// ErrInvalidLogSettings indicates invalid log rotation settings
	ErrInvalidLogSettings = errors.New("invalid log settings")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		errs = append(errs, fmt.Errorf("%w: storage.data_dir is required", ErrEmptyDataDir))
	}

	if err := validateIndex(&cfg.Index); err != nil {
		errs = append(errs, err)
	}

	if err := validateSync(&cfg.Sync); err != nil {
		errs = append(errs, err)
	}

	if err := validateWatch(&cfg.Watch); err != nil {
		errs = append(errs, err)
	}

	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidAddr, cfg.Server.Addr, err))
	}

	if err := validateLog(&cfg.Log); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateIndex(cfg *IndexConfig) error {
	var errs []error

	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidBatchSize, cfg.BatchSize))
	}
	if cfg.TombstoneTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: tombstone_ttl must be positive, got %v", ErrInvalidDuration, cfg.TombstoneTTL))
	}

	return joinErrors(errs)
}

func validateSync(cfg *SyncConfig) error {
	var errs []error

	if cfg.Retain <= 0 {
		errs = append(errs, fmt.Errorf("%w: retain must be positive, got %d", ErrInvalidRetention, cfg.Retain))
	}
	// Zero keeps the whole history
	if cfg.HistoryKeep < 0 {
		errs = append(errs, fmt.Errorf("%w: history_keep cannot be negative, got %d", ErrInvalidRetention, cfg.HistoryKeep))
	}

	return joinErrors(errs)
}

func validateWatch(cfg *WatchConfig) error {
	var errs []error

	if cfg.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%w: debounce must be positive, got %v", ErrInvalidDuration, cfg.Debounce))
	}
	for _, pattern := range cfg.Ignore {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	return joinErrors(errs)
}

func validateLog(cfg *LogConfig) error {
	var errs []error

	if cfg.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("%w: max_size_mb cannot be negative, got %d", ErrInvalidLogSettings, cfg.MaxSizeMB))
	}
	if cfg.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("%w: max_backups cannot be negative, got %d", ErrInvalidLogSettings, cfg.MaxBackups))
	}
	if cfg.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("%w: max_age_days cannot be negative, got %d", ErrInvalidLogSettings, cfg.MaxAgeDays))
	}

	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear
// formatting. Every joined error stays reachable through errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	verbs := make([]string, len(errs))
	args := make([]any, len(errs))
	for i, err := range errs {
		verbs[i] = "%w"
		args[i] = err
	}

	return fmt.Errorf("validation failed:\n  - "+strings.Join(verbs, "\n  - "), args...)
}
