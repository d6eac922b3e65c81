package cli

import (
	"fmt"
	"strings"

	"github.com/ka2n/litrev/argmap"
	"github.com/ka2n/litrev/log"
	"github.com/ka2n/litrev/mcp"
	"github.com/ka2n/litrev/status"
	"github.com/morikuni/failure/v2"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	mapDetailed bool
	pendingOpen bool

	contextCmd = &cobra.Command{
		Use:   "context <project>",
		Short: "Show the project context (_context.md)",
		Args:  cobra.ExactArgs(1),
		RunE:  runContext,
	}

	mapCmd = &cobra.Command{
		Use:   "map <project>",
		Short: "Show the argument map of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runMap,
	}

	pendingCmd = &cobra.Command{
		Use:   "pending",
		Short: "List PDFs to acquire and papers to add to NotebookLM",
		Args:  cobra.NoArgs,
		RunE:  runPending,
	}
)

func init() {
	mapCmd.Flags().BoolVarP(&mapDetailed, "detailed", "d", false, "list every proposition with its edges and evidence")
	pendingCmd.Flags().BoolVarP(&pendingOpen, "open", "o", false, "open the DOI page of every PDF to acquire in the browser")
	rootCmd.AddCommand(contextCmd, mapCmd, pendingCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		c, err := s.Context.Get(args[0])
		if err != nil {
			return err
		}
		if c.Context == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s does not exist yet. Starter template:\n\n", c.Path)
			return showMarkdown(args[0], c.Template)
		}
		return showMarkdown(args[0], *c.Context)
	})
}

func runMap(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		if s.ArgMap == nil {
			return failure.Wrap(s.StoreErr, failure.WithCode(NoArgumentMap))
		}
		format := argmap.FormatSummary
		if mapDetailed {
			format = argmap.FormatDetailed
		}
		m, err := s.ArgMap.ShowMap(cmd.Context(), args[0], format, "")
		if err != nil {
			return err
		}
		return show("argument map: "+args[0], m.Text)
	})
}

func runPending(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		p, err := s.Status.PendingActions(cmd.Context())
		if err != nil {
			return err
		}
		if err := showMarkdown("pending actions", pendingMarkdown(p)); err != nil {
			return err
		}
		if !pendingOpen {
			return nil
		}
		for _, a := range p.PDFsToAcquire {
			if a.DOIURL == nil {
				continue
			}
			if err := browser.OpenURL(*a.DOIURL); err != nil {
				log.Warn("failed to open browser", "url", *a.DOIURL, "error", err)
			}
		}
		return nil
	})
}

func pendingMarkdown(p status.Pending) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# PDFs to acquire (%d)\n\n", p.TotalPDFs)
	for _, a := range p.PDFsToAcquire {
		fmt.Fprintf(&b, "- **%s** %s (%s)\n  - save as `%s%s`\n", a.Project, a.Title, a.Year, a.DriveFolder, a.DriveFilename)
		if a.DOIURL != nil {
			fmt.Fprintf(&b, "  - %s\n", *a.DOIURL)
		}
	}
	fmt.Fprintf(&b, "\n# Add to NotebookLM (%d)\n\n", p.TotalNotebookLM)
	for _, a := range p.PapersToAddToNotebookLM {
		fmt.Fprintf(&b, "- **%s** %s\n  - `%s`\n", a.Project, a.Title, a.DriveFullPath)
		if a.SuggestedNotebook != nil {
			fmt.Fprintf(&b, "  - notebook: %s\n", *a.SuggestedNotebook)
		}
	}
	if len(p.SkippedProjects) > 0 {
		fmt.Fprintf(&b, "\n_Skipped, Zotero unavailable: %s_\n", strings.Join(p.SkippedProjects, ", "))
	}
	return b.String()
}
