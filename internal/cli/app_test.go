package cli

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/snipdex/internal/config"
	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

// Test Plan for CLI wiring:
// - openApp creates the data layout under the configured data dir
// - syncOnce indexes snippet files written behind the service's back
// - A second syncOnce with nothing changed is skipped
// - The progress reporter prints a summary, or nothing when quiet
// - formatNumber inserts thousands separators
// - setupLogging writes to the configured file
// - The add, list, sync and tags commands work end to end against a temp root
// - version runs without configuration

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	return c
}

func TestOpenApp_CreatesLayout(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	a, err := openApp(c, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.DirExists(t, c.SnippetsDir())
	assert.DirExists(t, c.IndexPath())
	assert.FileExists(t, c.HistoryPath())
}

func TestSyncOnce_IndexesExternalFiles(t *testing.T) {
	t.Parallel()

	c := testConfig(t)

	// Write snippets through one app, then drop its index so a fresh
	// app starts from files only.
	a, err := openApp(c, nil)
	require.NoError(t, err)
	for _, title := range []string{"alpha", "beta", "gamma"} {
		_, err := a.service.Create(context.Background(), snippets.Draft{Title: title, Code: title + "()"})
		require.NoError(t, err)
	}
	require.NoError(t, a.Close())
	require.NoError(t, os.RemoveAll(c.IndexPath()))
	require.NoError(t, os.Remove(c.HistoryPath()))

	a, err = openApp(c, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := syncOnce(ctx, a.registry)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCompleted, snap.Status)
	assert.False(t, snap.Skipped)
	assert.Equal(t, 3, snap.Indexed)
	assert.Equal(t, 100, snap.Percent)

	count, err := a.index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	page, err := a.service.List(ctx, "beta", snippet.FilterProperties{}, nil, 1)
	require.NoError(t, err)
	require.Len(t, page.Snippets, 1)
	assert.Equal(t, "beta", page.Snippets[0].Title)

	again, err := syncOnce(ctx, a.registry)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCompleted, again.Status)
	assert.True(t, again.Skipped)
}

func TestCLIProgressReporter(t *testing.T) {
	t.Parallel()

	start := time.Now()
	done := reconcile.Snapshot{
		Status:      reconcile.StatusCompleted,
		Percent:     100,
		StartTime:   start,
		EndTime:     start.Add(1500 * time.Millisecond),
		Indexed:     1200,
		Removed:     2,
		FailedItems: 1,
	}

	t.Run("summary", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		r := NewCLIProgressReporter(&out, false)
		r.OnStart(3)
		r.OnItem("a")
		r.OnItem("b")
		r.OnItem("c")
		r.OnComplete(done)

		text := out.String()
		assert.Contains(t, text, "Synchronization complete")
		assert.Contains(t, text, "Indexed: 1,200")
		assert.Contains(t, text, "Removed: 2")
		assert.Contains(t, text, "Failed:  1")
	})

	t.Run("skipped", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		r := NewCLIProgressReporter(&out, false)
		r.OnComplete(reconcile.Snapshot{Status: reconcile.StatusCompleted, Skipped: true})
		assert.Contains(t, out.String(), "already up to date")
	})

	t.Run("failed", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		r := NewCLIProgressReporter(&out, false)
		r.OnComplete(reconcile.Snapshot{Status: reconcile.StatusFailed, Error: "boom"})
		assert.Contains(t, out.String(), "failed: boom")
	})

	t.Run("quiet", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		r := NewCLIProgressReporter(&out, true)
		r.OnStart(1)
		r.OnItem("a")
		r.OnComplete(done)
		assert.Empty(t, out.String())
	})
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,000", formatNumber(-12000))
}

// The tests below drive rootCmd, which is package state; they do not run
// in parallel.

func TestSetupLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "snipdex.log")
	closer, err := setupLogging(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, false)
	require.NoError(t, err)

	log.Print("hello from test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")

	_, err = setupLogging(config.LogConfig{}, false)
	require.NoError(t, err)
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	resetFlags(rootCmd)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so values from a previous
// Execute do not leak into the next one.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestCommands_EndToEnd(t *testing.T) {
	root := t.TempDir()

	codeFile := filepath.Join(root, "retry.go")
	require.NoError(t, os.WriteFile(codeFile, []byte("for i := 0; i < 3; i++ {}"), 0644))

	out, err := runCommand(t, "", "--root", root, "add", "--title", "retry loop", "--language", "go", "--tag", "net", "--file", codeFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Added snippet")

	out, err = runCommand(t, "SELECT 1;", "--root", root, "add", "--title", "select one", "--language", "sql", "--file", "")
	require.NoError(t, err, out)

	out, err = runCommand(t, "", "--root", root, "list", "--page", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "retry loop")
	assert.Contains(t, out, "select one")
	assert.Contains(t, out, "Page 1 of 1")

	out, err = runCommand(t, "", "--root", root, "list", "retry", "--tag", "net")
	require.NoError(t, err, out)
	assert.Contains(t, out, "retry loop")
	assert.NotContains(t, out, "select one")

	_, err = runCommand(t, "", "--root", root, "list", "--page", "7")
	require.Error(t, err)

	out, err = runCommand(t, "", "--root", root, "sync", "--quiet")
	require.NoError(t, err, out)

	out, err = runCommand(t, "", "--root", root, "tags", "backend")
	require.NoError(t, err, out)
	assert.Contains(t, out, "backend")
	assert.Contains(t, out, "net")

	assert.DirExists(t, filepath.Join(root, config.DirName, "snippets"))
}

func TestCommands_Version(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "snipdex "+Version)
}
