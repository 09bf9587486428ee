package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

var (
	listLanguage string
	listTags     []string
	listSort     string
	listOrder    string
	listPage     int
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [search terms]",
	Short: "List or search snippets",
	Long: `List prints one page of snippets from the search index.

Without search terms snippets are listed newest first; with terms they
are ranked by relevance. Tags are conjunctive: every tag must be present.

Examples:
  snipdex list
  snipdex list retry backoff --language go
  snipdex list --tag http --tag client --sort title --order asc
  snipdex list --page 2
`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listLanguage, "language", "l", "", "only snippets in this language")
	listCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "only snippets with this tag (repeatable)")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort field: title, created, modified, relevance")
	listCmd.Flags().StringVar(&listOrder, "order", "", "sort order: asc or desc")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
}

func runList(cmd *cobra.Command, args []string) error {
	term := strings.Join(args, " ")

	sort, err := snippet.ParseSortProperties(term, listSort, listOrder)
	if err != nil {
		return err
	}

	a, err := openApp(cfg, reconcile.NoOpProgressReporter{})
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.service.List(cmd.Context(), term, snippet.FilterProperties{
		Language: listLanguage,
		Tags:     listTags,
	}, sort, listPage)
	if err != nil {
		return err
	}

	printPage(cmd.OutOrStdout(), page)
	return nil
}

func printPage(out io.Writer, page *snippets.Page) {
	if page.Total == 0 {
		fmt.Fprintln(out, "No snippets found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tLANGUAGE\tTAGS\tCREATED")
	for _, s := range page.Snippets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Title, s.Language, strings.Join(s.Tags, ","), s.Created.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Fprintf(out, "\nPage %d of %d (%s snippets)\n", page.Page, page.TotalPages, formatNumber(page.Total))
}
