package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/snipdex/internal/reconcile"
)

// CLIProgressReporter draws a progress bar for a synchronization run.
type CLIProgressReporter struct {
	quiet bool
	out   io.Writer
	bar   *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a new CLI progress reporter writing to out.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{quiet: quiet, out: out}
}

func (c *CLIProgressReporter) OnStart(total int) {
	if c.quiet {
		return
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Synchronizing snippets"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("snippets/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnItem(id string) {
	if c.quiet || c.bar == nil {
		return
	}
	c.bar.Add(1)
}

func (c *CLIProgressReporter) OnComplete(snap reconcile.Snapshot) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}

	fmt.Fprintln(c.out)
	switch {
	case snap.Skipped:
		fmt.Fprintln(c.out, "✓ Index already up to date")
	case snap.Status == reconcile.StatusCompleted:
		fmt.Fprintf(c.out, "✓ Synchronization complete in %.1fs\n", snap.EndTime.Sub(snap.StartTime).Seconds())
		fmt.Fprintf(c.out, "  Indexed: %s\n", formatNumber(snap.Indexed))
		fmt.Fprintf(c.out, "  Removed: %s\n", formatNumber(snap.Removed))
		if snap.FailedItems > 0 {
			fmt.Fprintf(c.out, "  Failed:  %s\n", formatNumber(snap.FailedItems))
		}
	default:
		fmt.Fprintf(c.out, "✗ Synchronization failed: %s\n", snap.Error)
	}
}

// formatNumber formats an integer with thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
