package mcp

import (
	"context"
	"fmt"

	"github.com/ka2n/litrev/api/zotero"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/morikuni/failure/v2"
)

func lookupOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("item_key", mcp.Description("Zotero item key (preferred)")),
		mcp.WithString("doi", mcp.Description("DOI of the paper")),
		mcp.WithString("title_search", mcp.Description("Search by title (partial match)")),
	}
}

type lookupArgs struct {
	ItemKey     string `mapstructure:"item_key"`
	DOI         string `mapstructure:"doi"`
	TitleSearch string `mapstructure:"title_search"`
}

func (a lookupArgs) lookup() zotero.Lookup {
	return zotero.Lookup{ItemKey: a.ItemKey, DOI: a.DOI, TitleSearch: a.TitleSearch}
}

func (s *Services) ZoteroListProjects() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"zotero_list_projects",
			mcp.WithDescription("List all Zotero collections (projects) with paper counts by status."),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			projects, err := lib.ListProjects(ctx)
			if err != nil {
				return fail(err)
			}
			return ok(result{"projects": projects})
		}
}

func (s *Services) ZoteroCreateCollection() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"zotero_create_collection",
			mcp.WithDescription("Create a new Zotero collection. Returns the collection key to link with a project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Name for the new collection")),
			mcp.WithString("parent_key", mcp.Description("Parent collection key for nested collections")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Name      string `mapstructure:"name" validate:"required"`
				ParentKey string `mapstructure:"parent_key"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			created, err := lib.CreateCollection(ctx, args.Name, args.ParentKey)
			if err != nil {
				return fail(failure.Wrap(err, failure.WithCode(zotero.ErrCreateFailed), failure.Message(errorMessage(err))))
			}
			return ok(fields(created))
		}
}

func (s *Services) ZoteroAddPaper() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"zotero_add_paper",
			mcp.WithDescription("Add a paper to Zotero by DOI or manual metadata. Tags it as needing a PDF and returns the citation key for PDF naming."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code (e.g. 'MEAS-ERR')")),
			mcp.WithString("doi", mcp.Description("DOI of the paper")),
			mcp.WithString("title", mcp.Description("Paper title (required if no DOI)")),
			mcp.WithString("authors", mcp.Description("Authors (if no DOI)")),
			mcp.WithNumber("year", mcp.Description("Publication year (if no DOI)")),
			mcp.WithString("source", mcp.Description("Where the paper was found (e.g. 'Consensus search', 'PubMed')")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				DOI     string `mapstructure:"doi"`
				Title   string `mapstructure:"title"`
				Authors string `mapstructure:"authors"`
				Year    int    `mapstructure:"year"`
				Source  string `mapstructure:"source"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			added, err := lib.AddPaper(ctx, zotero.NewPaper{
				Project: args.Project,
				DOI:     args.DOI,
				Title:   args.Title,
				Authors: args.Authors,
				Year:    args.Year,
				Source:  args.Source,
			})
			if err != nil {
				return fail(err)
			}
			return ok(fields(added))
		}
}

func (s *Services) ZoteroUpdateStatus() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Change the status tag of a paper. Identify it by item_key, DOI or title search."),
		mcp.WithString("new_status", mcp.Required(), mcp.Enum(zotero.Statuses...), mcp.Description("New status")),
	}, lookupOptions()...)
	return mcp.NewTool("zotero_update_status", opts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				NewStatus string `mapstructure:"new_status" validate:"required"`
			}
			var lk lookupArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if err := bind(ctx, req, &lk); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			change, err := lib.UpdateStatus(ctx, args.NewStatus, lk.lookup())
			if err != nil {
				return fail(err)
			}
			return ok(fields(change))
		}
}

func (s *Services) ZoteroGetByStatus() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"zotero_get_by_status",
			mcp.WithDescription("List the papers of a project that have a given status."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("status", mcp.Required(), mcp.Enum(append(zotero.Statuses, "all")...), mcp.Description("Status to filter by, or 'all'")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				Status  string `mapstructure:"status" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			papers, err := lib.ByStatus(ctx, args.Project, args.Status)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"project": args.Project,
				"status":  args.Status,
				"count":   len(papers),
				"papers":  papers,
			})
		}
}

func (s *Services) ZoteroSearch() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"zotero_search",
			mcp.WithDescription("Search the Zotero library, or one project collection."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
			mcp.WithString("project", mcp.Description("Limit to a project collection")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Query   string `mapstructure:"query" validate:"required"`
				Project string `mapstructure:"project"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			papers, err := lib.Search(ctx, args.Query, args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"query":   args.Query,
				"project": args.Project,
				"count":   len(papers),
				"results": papers,
			})
		}
}

func (s *Services) ZoteroGetCitationKey() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Get the Better BibTeX citation key and PDF filename of a paper."),
	}, lookupOptions()...)
	return mcp.NewTool("zotero_get_citation_key", opts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args lookupArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			keys, err := lib.CitationKeys(ctx, args.lookup())
			if err != nil {
				return fail(err)
			}
			return ok(result{"results": keys})
		}
}

func (s *Services) ZoteroDeletePaper() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Delete a paper from Zotero. Requires confirm=true; without it the paper is only previewed."),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to delete (default false)")),
	}, lookupOptions()...)
	return mcp.NewTool("zotero_delete_paper", opts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Confirm bool `mapstructure:"confirm"`
			}
			var lk lookupArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if err := bind(ctx, req, &lk); err != nil {
				return fail(err)
			}
			lib, err := s.library()
			if err != nil {
				return fail(err)
			}
			paper, err := lib.DeletePaper(ctx, lk.lookup(), args.Confirm)
			if failure.Is(err, zotero.ErrConfirmationRequired) {
				return confirmation(err, result{"item": paper})
			}
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"deleted": paper,
				"message": fmt.Sprintf("Deleted '%s' from Zotero", paper.Title),
			})
		}
}
