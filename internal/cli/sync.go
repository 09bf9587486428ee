package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/reconcile"
)

var syncQuiet bool

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the search index with the snippet files",
	Long: `Sync runs one synchronization in the foreground. Every snippet file is
compared with the index by revision: new and changed snippets are
(re)indexed and index entries without a file are removed.

The run is skipped when the last completed run is newer than every
snippet file and the index holds exactly one entry per file.

Examples:
  # Synchronize with a progress bar
  snipdex sync

  # Synchronize silently (for scripts)
  snipdex sync --quiet
`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "Disable the progress bar and summary")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nInterrupted! Cancelling synchronization...")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(cfg, NewCLIProgressReporter(cmd.OutOrStdout(), syncQuiet))
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := syncOnce(ctx, a.registry)
	if err != nil {
		return err
	}
	if snap.Status == reconcile.StatusFailed {
		return fmt.Errorf("synchronization %s failed: %s", snap.ID, snap.Error)
	}
	return nil
}

// syncOnce starts a run and waits for it. Cancelling ctx closes the
// registry so the run stops and ends FAILED.
func syncOnce(ctx context.Context, registry *reconcile.Registry) (reconcile.Snapshot, error) {
	id, err := registry.Start()
	if err != nil {
		return reconcile.Snapshot{}, fmt.Errorf("failed to start synchronization: %w", err)
	}

	snap, err := registry.Wait(ctx, id)
	if err != nil {
		registry.Close()
		return registry.Get(id)
	}
	return snap, nil
}
