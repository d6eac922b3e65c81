package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/ka2n/litrev/mcp"
	"github.com/ka2n/litrev/status"
	"github.com/morikuni/failure/v2"
	"github.com/spf13/cobra"
)

var (
	// Root command
	rootCmd = &cobra.Command{
		Use:           "litrev",
		Short:         "Literature review assistant",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `litrev keeps a literature review in one place: papers in Zotero, notes and
workflow logs in Google Drive, and an argument map in a local database.

Run "litrev mcp" from an MCP client to expose the tools to an agent. The other
commands show the same data in the terminal.`,
	}

	// Version information
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Version command
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print detailed version information about litrev",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("litrev version %s\n", Version)
			fmt.Printf("  commit: %s\n", Commit)
			fmt.Printf("  built:  %s\n", Date)
		},
	}

	helloCmd = &cobra.Command{
		Use:   "hello",
		Short: "Check the setup",
		Long:  "Report the detected Google Drive folder, the config file, API keys and the argument map database.",
		Args:  cobra.NoArgs,
		RunE:  runHello,
	}
)

func init() {
	rootCmd.AddCommand(versionCmd, helloCmd, mcp.Command())
}

// Run executes the main CLI functionality
func Run() error {
	mcp.Version = Version
	return rootCmd.Execute()
}

// withServices wires the services for one command and closes them after.
func withServices(ctx context.Context, fn func(*mcp.Services) error) error {
	s, err := mcp.Setup(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// renderMarkdown styles md for the terminal.
func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", failure.Wrap(err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", failure.Wrap(err)
	}
	return out, nil
}

func showMarkdown(title, md string) error {
	out, err := renderMarkdown(md)
	if err != nil {
		return err
	}
	return show(title, out)
}

func runHello(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(s *mcp.Services) error {
		var pinger status.Pinger
		if s.Store != nil {
			pinger = s.Store
		}
		report := s.Status.Hello(cmd.Context(), s.Secrets, pinger)
		return showMarkdown("litrev hello", "```\n"+report+"\n```\n")
	})
}
