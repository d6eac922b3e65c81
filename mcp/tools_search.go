package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type searchArgs struct {
	Query      string `mapstructure:"query" validate:"required"`
	MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
}

// searchGuidance nudges the agent to record what it searched for. Returned
// only when workflow.show_guidance is on.
func (s *Services) searchGuidance(n int) result {
	if !s.Config.Config().Workflow.ShowGuidance {
		return nil
	}
	return result{"workflow_guidance": result{
		"next_steps": []string{
			fmt.Sprintf("Review %d papers and add relevant ones with zotero_add_paper", n),
			"Document this search strategy with save_search_strategy",
			"If results close gaps, update _gaps.md",
			"If no relevant results found, document as failed search (still valuable!)",
		},
		"best_practice": "Record search query, database, and results for reproducibility",
	}}
}

func (s *Services) PubMedSearch() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"pubmed_search",
			mcp.WithDescription("Search PubMed for biomedical literature. Returns title, authors, year, journal, DOI and abstract."),
			mcp.WithString("query", mcp.Required(), mcp.Description("PubMed search query (supports field tags such as [Title] and [MeSH])")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of results (default 10, max 50)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args searchArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			papers, err := s.PubMed.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"source":  "PubMed",
				"query":   args.Query,
				"count":   len(papers),
				"results": papers,
			}.with(s.searchGuidance(len(papers))))
		}
}

func (s *Services) SemanticScholarSearch() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"semantic_scholar_search",
			mcp.WithDescription("Search Semantic Scholar across disciplines. Returns citation counts alongside the usual metadata."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of results (default 10, max 100)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args searchArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			papers, err := s.Scholar.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"source":  "Semantic Scholar",
				"query":   args.Query,
				"count":   len(papers),
				"results": papers,
			}.with(s.searchGuidance(len(papers))))
		}
}

type snowballArgs struct {
	PaperID    string `mapstructure:"paper_id" validate:"required"`
	MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
}

func snowballOptions(name, description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Semantic Scholar id, DOI, or PMID:12345")),
		mcp.WithNumber("max_results", mcp.DefaultNumber(50), mcp.Description("Maximum number of "+name+" (default 50)")),
	}
}

func (s *Services) SemanticScholarReferences() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool("semantic_scholar_references",
			snowballOptions("references", "Get the papers a paper cites (backward snowballing).")...,
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args snowballArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			sb, err := s.Scholar.References(ctx, args.PaperID, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"source_paper":    sb.SourcePaper,
				"reference_count": sb.Total,
				"references":      sb.Papers,
			})
		}
}

func (s *Services) SemanticScholarCitations() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool("semantic_scholar_citations",
			snowballOptions("citations", "Get the papers that cite a paper (forward snowballing).")...,
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args snowballArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			sb, err := s.Scholar.Citations(ctx, args.PaperID, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"source_paper":   sb.SourcePaper,
				"citation_count": sb.Total,
				"citations":      sb.Papers,
			})
		}
}

func (s *Services) ERICSearch() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"eric_search",
			mcp.WithDescription("Search ERIC, the Education Resources Information Center."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of results (default 10, max 50)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args searchArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			papers, err := s.ERIC.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"source":  "ERIC",
				"query":   args.Query,
				"count":   len(papers),
				"results": papers,
			}.with(s.searchGuidance(len(papers))))
		}
}

func (s *Services) ReadPaperPage() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"read_paper_page",
			mcp.WithDescription("Read a paper landing page from a DOI or URL: citation metadata plus the page text as markdown."),
			mcp.WithString("doi_or_url", mcp.Required(), mcp.Description("DOI (10.x/y, doi:10.x/y) or http(s) URL")),
			mcp.WithBoolean("refresh", mcp.Description("Fetch again even if a cached copy exists (default false)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				DOIOrURL string `mapstructure:"doi_or_url" validate:"required"`
				Refresh  bool   `mapstructure:"refresh"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			read := s.Pages.Read
			if args.Refresh {
				read = s.Pages.Refresh
			}
			page, err := read(ctx, args.DOIOrURL)
			if err != nil {
				return fail(err)
			}
			return ok(fields(page))
		}
}
