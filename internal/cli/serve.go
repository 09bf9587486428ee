package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/api"
	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/storage"
	"github.com/mvp-joe/snipdex/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr  string
	serveWatch bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the snippet HTTP API",
	Long: `Serve starts the HTTP API for snippets, tags, languages and
synchronization runs.

A synchronization is started in the background at startup unless
sync.on_startup is false; the listener does not wait for it. With
--watch (or watch.enabled) changes to the snippet directory start a
new synchronization after a debounce interval.

Examples:
  snipdex serve
  snipdex serve --addr :9090 --watch
`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "start a synchronization when snippet files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg, reconcile.NoOpProgressReporter{})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Sync.OnStartup {
		if id, err := a.registry.Start(); err != nil {
			log.Printf("Warning: startup synchronization not started: %v", err)
		} else {
			log.Printf("Startup synchronization %s scheduled", id)
		}
	}

	if serveWatch || cfg.Watch.Enabled {
		fw, err := watcher.NewFileWatcher(a.store.Dir(), watcher.Options{
			Debounce: cfg.Watch.Debounce,
			Suffix:   storage.SnippetExt,
			Ignore:   cfg.Watch.Ignore,
		})
		if err != nil {
			return fmt.Errorf("failed to create snippet watcher: %w", err)
		}
		coordinator := watcher.NewSyncCoordinator(fw, a.registry)
		go func() {
			if err := coordinator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Error: snippet watcher stopped: %v", err)
			}
		}()
		log.Printf("Watching %s for changes", a.store.Dir())
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.service, a.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Received shutdown signal, stopping gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
