package cli

import (
	"fmt"
	"strings"

	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/mcp"
	"github.com/spf13/cobra"
)

var (
	insightSource sourceFlag

	insightsCmd = &cobra.Command{
		Use:   "insights",
		Short: "Browse saved insights",
	}

	insightsListCmd = &cobra.Command{
		Use:   "list <project>",
		Short: "List the insights of a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  runInsightsList,
	}

	insightsShowCmd = &cobra.Command{
		Use:   "show <project> <file>",
		Short: "Show one insight",
		Long:  "Show one insight. <file> is its filename or any part of it, such as the date or the topic slug.",
		Args:  cobra.ExactArgs(2),
		RunE:  runInsightsShow,
	}
)

func init() {
	insightsListCmd.Flags().Var(&insightSource, "source", "only this source ("+strings.Join(insights.Sources, ", ")+")")
	insightsCmd.AddCommand(insightsListCmd, insightsShowCmd)
	rootCmd.AddCommand(insightsCmd)
}

func runInsightsList(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		l, err := s.Insights.List(args[0], insightSource.Value)
		if err != nil {
			return err
		}
		return showMarkdown("insights: "+l.Project, listingMarkdown(l))
	})
}

func listingMarkdown(l insights.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s insights (%d)\n\n", l.Project, l.TotalInsights)
	if l.TotalInsights == 0 {
		b.WriteString("No insights saved yet.\n")
		return b.String()
	}
	b.WriteString("| Date | Source | Topic | File |\n|---|---|---|---|\n")
	for _, e := range l.Insights {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.Date, e.Source, e.Topic, e.Filename)
	}
	b.WriteString("\n")
	for _, src := range insights.Sources {
		if n := l.BySource[src]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", src, n)
		}
	}
	return b.String()
}

func runInsightsShow(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		in, err := s.Insights.Find(args[0], strings.TrimSuffix(args[1], ".md"))
		if err != nil {
			return err
		}
		fm := in.Frontmatter
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", fm.Topic)
		fmt.Fprintf(&b, "*%s, %s*\n\n", fm.Source, fm.Date)
		if fm.Query != "" {
			fmt.Fprintf(&b, "> %s\n\n", fm.Query)
		}
		b.WriteString(in.Content)
		b.WriteString("\n")
		if len(fm.PapersReferenced) > 0 {
			b.WriteString("\n## Papers\n\n")
			for _, key := range fm.PapersReferenced {
				fmt.Fprintf(&b, "- %s\n", key)
			}
		}
		return showMarkdown(in.Filename, b.String())
	})
}
