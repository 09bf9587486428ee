package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mvp-joe/snipdex/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogging points the standard logger at stderr, or at a rotating file
// when one is configured. Verbose adds file and line to each entry.
func setupLogging(lc config.LogConfig, verbose bool) (io.Closer, error) {
	flags := log.LstdFlags
	if verbose {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if lc.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(lc.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
	}
	log.SetOutput(rotating)
	return rotating, nil
}
