package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/config"
)

var (
	cfgFile string
	rootDir string
	verbose bool

	// cfg is loaded once per invocation by the root command.
	cfg *config.Config

	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snipdex",
	Short: "Snipdex - a searchable store of code snippets",
	Long: `Snipdex keeps code snippets as yaml files on disk and maintains a
full-text search index over them.

The files are the source of truth. The index is rebuilt from them by a
synchronization run, which can be started from the CLI, the HTTP API,
the MCP tools, or automatically when the snippet directory changes.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <root>/.snipdex/config.yml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "root directory for relative paths (default is the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads configuration and sets up logging before any command runs.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotationNoConfig] == "true" {
		return nil
	}

	root := rootDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}

	loader := config.NewLoader(root)
	if cfgFile != "" {
		loader = config.NewFileLoader(root, cfgFile)
	}

	loaded, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	closer, err := setupLogging(cfg.Log, verbose)
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "snipdex/no-config"
