package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/storage"
)

// tagsCmd represents the tags command
var tagsCmd = &cobra.Command{
	Use:   "tags [new-tag...]",
	Short: "List known tags, or register new ones",
	RunE:  runTags,
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	registry, err := storage.NewTagRegistry(afero.NewOsFs(), cfg.TagsPath())
	if err != nil {
		return err
	}

	if len(args) > 0 {
		if err := registry.Register(args...); err != nil {
			return err
		}
	}

	for _, tag := range registry.Tags() {
		fmt.Fprintln(cmd.OutOrStdout(), tag)
	}
	return nil
}
