package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

var (
	addTitle       string
	addDescription string
	addLanguage    string
	addTags        []string
	addFile        string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a snippet",
	Long: `Add stores a new snippet file and indexes it. The code is read from
--file, or from standard input when no file is given.

Examples:
  snipdex add --title "HTTP retry" --language go --tag http --file retry.go
  pbpaste | snipdex add --title "jq one-liner" --language bash
`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addTitle, "title", "", "snippet title (required)")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "snippet description")
	addCmd.Flags().StringVarP(&addLanguage, "language", "l", "", "snippet language (default: Plain Text)")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "tag (repeatable)")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "read code from this file instead of stdin")
	addCmd.MarkFlagRequired("title")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(addTitle) == "" {
		return errors.New("title cannot be empty")
	}

	code, err := readCode(cmd.InOrStdin(), addFile)
	if err != nil {
		return err
	}

	a, err := openApp(cfg, reconcile.NoOpProgressReporter{})
	if err != nil {
		return err
	}
	defer a.Close()

	sn, err := a.service.Create(cmd.Context(), snippets.Draft{
		Title:       addTitle,
		Description: addDescription,
		Code:        code,
		Language:    addLanguage,
		Tags:        addTags,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added snippet %s (%s)\n", sn.ID, sn.Language)
	return nil
}

func readCode(stdin io.Reader, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
