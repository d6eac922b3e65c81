package mcp

import (
	"context"

	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/log"
	"github.com/spf13/cobra"
)

// Command returns the MCP server command
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server on stdio",
		Long: `Start the litrev MCP server on stdin/stdout.

Credentials are read from the environment, or from a .env file in the working
directory: ZOTERO_API_KEY, ZOTERO_USER_ID, NCBI_API_KEY,
SEMANTIC_SCHOLAR_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY.
Set LITREV_DRIVE_PATH when the Google Drive folder is not detected.`,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	services, err := Setup(cmd.Context())
	if err != nil {
		return err
	}
	log.Info("starting MCP server",
		"drive", services.Config.DrivePath(),
		"projects", len(services.Config.Config().Projects),
	)
	return NewServer(services).Run()
}

// Setup loads .env, the configuration and the credentials, then wires the
// services. HTTP traffic is logged at debug level from here on.
func Setup(ctx context.Context) (*Services, error) {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.EnableGlobalHTTP()
	return NewServices(ctx, cfg, config.SecretsFromEnv(), nil), nil
}
