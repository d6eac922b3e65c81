package mcp

import (
	"context"
	"fmt"

	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/projectctx"
	"github.com/ka2n/litrev/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (s *Services) SaveInsight() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"save_insight",
			mcp.WithDescription("Save an insight from Consensus, NotebookLM, a synthesis, or reading notes to the project's _notes folder."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("source", mcp.Required(), mcp.Enum(insights.Sources...), mcp.Description("Where the insight came from")),
			mcp.WithString("topic", mcp.Required(), mcp.Description("Short topic, used in the filename")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the insight")),
			mcp.WithString("query", mcp.Description("The question that produced the insight")),
			mcp.WithArray("papers_referenced", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Citation keys of papers mentioned")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project          string   `mapstructure:"project" validate:"required"`
				Source           string   `mapstructure:"source" validate:"required"`
				Topic            string   `mapstructure:"topic" validate:"required"`
				Content          string   `mapstructure:"content" validate:"required"`
				Query            string   `mapstructure:"query"`
				PapersReferenced []string `mapstructure:"papers_referenced"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			path, err := s.Insights.Save(insights.SaveInput{
				Project:          args.Project,
				Source:           args.Source,
				Topic:            args.Topic,
				Content:          args.Content,
				Query:            args.Query,
				PapersReferenced: args.PapersReferenced,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"filepath": path,
				"message":  fmt.Sprintf("Saved insight to %s notes", args.Project),
			})
		}
}

func (s *Services) SearchInsights() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"search_insights",
			mcp.WithDescription("Search saved insights by keyword across content, topic and original query."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
			mcp.WithString("project", mcp.Description("Limit to one project (default: all)")),
			mcp.WithString("source", mcp.Enum(insights.Sources...), mcp.Description("Limit to one source")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of matches (default 10)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Query      string `mapstructure:"query" validate:"required"`
				Project    string `mapstructure:"project"`
				Source     string `mapstructure:"source"`
				MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if args.MaxResults == 0 {
				args.MaxResults = 10
			}
			res, err := s.Insights.Search(args.Query, args.Project, args.Source, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		}
}

func (s *Services) AnalyzeInsights() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"analyze_insights",
			mcp.WithDescription("Answer a question from saved insights: a direct answer, a comparison by source, or a list of notes to check for tensions."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
			mcp.WithString("project", mcp.Description("Limit to one project (default: all)")),
			mcp.WithString("mode", mcp.Enum(insights.Modes...), mcp.DefaultString("answer"), mcp.Description("answer, compare or tensions")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Question string `mapstructure:"question" validate:"required"`
				Project  string `mapstructure:"project"`
				Mode     string `mapstructure:"mode"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if args.Mode == "" {
				args.Mode = "answer"
			}
			a, err := s.Insights.Analyze(args.Question, args.Project, args.Mode)
			if err != nil {
				return fail(err)
			}
			return ok(fields(a))
		}
}

func (s *Services) ListInsights() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"list_insights",
			mcp.WithDescription("List the saved insights of a project, newest first."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("source", mcp.Enum(insights.Sources...), mcp.Description("Limit to one source")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				Source  string `mapstructure:"source"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			l, err := s.Insights.List(args.Project, args.Source)
			if err != nil {
				return fail(err)
			}
			return ok(fields(l))
		}
}

type projectArgs struct {
	Project string `mapstructure:"project" validate:"required"`
}

func (s *Services) GetProjectContext() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"get_project_context",
			mcp.WithDescription("Read the project's _context.md (goal, audience, style, key questions). Returns a template when it does not exist yet."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args projectArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			c, err := s.Context.Get(args.Project)
			if err != nil {
				return fail(err)
			}
			r := fields(c)
			if !c.Exists {
				r["message"] = fmt.Sprintf("No %s yet. Use update_project_context with the template to create one.", projectctx.Filename)
			}
			return ok(r)
		}
}

func (s *Services) UpdateProjectContext() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"update_project_context",
			mcp.WithDescription("Replace the project's _context.md with new markdown content."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Full markdown content")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				Content string `mapstructure:"content" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			path, err := s.Context.Update(args.Project, args.Content)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"path":    path,
				"message": "Context saved to " + projectctx.Filename,
			})
		}
}

func (s *Services) SaveGap() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"save_gap",
			mcp.WithDescription("Record a knowledge gap in the project's _gaps.md."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("topic", mcp.Required(), mcp.Description("What is missing")),
			mcp.WithString("why_matters", mcp.Required(), mcp.Description("Why the gap matters for the review")),
			mcp.WithString("search_strategy", mcp.Required(), mcp.Description("How it was searched")),
			mcp.WithString("status", mcp.Enum(workflow.GapStatuses...), mcp.DefaultString("searched"), mcp.Description("Gap status")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project        string `mapstructure:"project" validate:"required"`
				Topic          string `mapstructure:"topic" validate:"required"`
				WhyMatters     string `mapstructure:"why_matters" validate:"required"`
				SearchStrategy string `mapstructure:"search_strategy" validate:"required"`
				Status         string `mapstructure:"status"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			gap, err := s.Workflow.SaveGap(workflow.GapInput{
				Project:        args.Project,
				Topic:          args.Topic,
				WhyMatters:     args.WhyMatters,
				SearchStrategy: args.SearchStrategy,
				Status:         args.Status,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"gap":     gap,
				"message": fmt.Sprintf("Gap %q saved to %s/%s", args.Topic, args.Project, workflow.GapsFile),
			})
		}
}

func (s *Services) SaveSessionLog() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	list := func(name, desc string) mcp.ToolOption {
		return mcp.WithArray(name, mcp.Items(map[string]any{"type": "string"}), mcp.Description(desc))
	}
	return mcp.NewTool(
			"save_session_log",
			mcp.WithDescription("Append a session summary to the project's _workflow.md."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("status", mcp.Required(), mcp.Description("One-line status of the session")),
			mcp.WithArray("completed", mcp.Required(), mcp.Items(map[string]any{"type": "string"}), mcp.Description("What was done")),
			list("pivots", "Conceptual shifts"),
			list("questions", "Open questions"),
			list("next_steps", "Next steps"),
			mcp.WithString("blocked", mcp.Description("What is blocking progress")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project   string   `mapstructure:"project" validate:"required"`
				Status    string   `mapstructure:"status" validate:"required"`
				Completed []string `mapstructure:"completed"`
				Pivots    []string `mapstructure:"pivots"`
				Questions []string `mapstructure:"questions"`
				NextSteps []string `mapstructure:"next_steps"`
				Blocked   string   `mapstructure:"blocked"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			session, err := s.Workflow.SaveSessionLog(workflow.SessionInput{
				Project:   args.Project,
				Status:    args.Status,
				Completed: args.Completed,
				Pivots:    args.Pivots,
				Questions: args.Questions,
				NextSteps: args.NextSteps,
				Blocked:   args.Blocked,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"session": session,
				"message": fmt.Sprintf("Session log saved to %s/%s", args.Project, workflow.WorkflowFile),
			})
		}
}

func (s *Services) SavePivot() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"save_pivot",
			mcp.WithDescription("Record a conceptual pivot (what we thought, what we learned) in the project's _pivots.md."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("topic", mcp.Required(), mcp.Description("What changed")),
			mcp.WithString("before", mcp.Required(), mcp.Description("What we thought before")),
			mcp.WithString("after", mcp.Required(), mcp.Description("What we learned")),
			mcp.WithString("rationale", mcp.Required(), mcp.Description("Why the view changed")),
			mcp.WithString("source", mcp.Description("Paper or insight that caused the pivot")),
			mcp.WithString("impact", mcp.Description("Impact on the manuscript")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project   string `mapstructure:"project" validate:"required"`
				Topic     string `mapstructure:"topic" validate:"required"`
				Before    string `mapstructure:"before" validate:"required"`
				After     string `mapstructure:"after" validate:"required"`
				Rationale string `mapstructure:"rationale" validate:"required"`
				Source    string `mapstructure:"source"`
				Impact    string `mapstructure:"impact"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			pivot, err := s.Workflow.SavePivot(workflow.PivotInput{
				Project:   args.Project,
				Topic:     args.Topic,
				Before:    args.Before,
				After:     args.After,
				Rationale: args.Rationale,
				Source:    args.Source,
				Impact:    args.Impact,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"pivot":   pivot,
				"message": fmt.Sprintf("Pivot %q saved to %s/%s", args.Topic, args.Project, workflow.PivotsFile),
			})
		}
}

func (s *Services) SaveSearchStrategy() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"save_search_strategy",
			mcp.WithDescription("Record the queries run for a search goal, and what they found, in the project's _searches.md."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("goal", mcp.Required(), mcp.Description("What the search was trying to find")),
			mcp.WithArray("queries", mcp.Required(), mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":    map[string]any{"type": "string"},
					"database": map[string]any{"type": "string"},
					"result":   map[string]any{"type": "string"},
				},
				"required": []string{"query", "result"},
			}), mcp.Description("Queries with database and result")),
			mcp.WithString("conclusion", mcp.Required(), mcp.Description("What the search established")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Project    string           `mapstructure:"project" validate:"required"`
				Goal       string           `mapstructure:"goal" validate:"required"`
				Queries    []workflow.Query `mapstructure:"queries" validate:"required,min=1,dive"`
				Conclusion string           `mapstructure:"conclusion" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			search, err := s.Workflow.SaveSearchStrategy(workflow.SearchInput{
				Project:    args.Project,
				Goal:       args.Goal,
				Queries:    args.Queries,
				Conclusion: args.Conclusion,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"search":  search,
				"message": fmt.Sprintf("Search strategy saved to %s/%s", args.Project, workflow.SearchesFile),
			})
		}
}

func (s *Services) GetWorkflowStatus() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"get_workflow_status",
			mcp.WithDescription("Summarize gaps, pivots, searches, the last session and the current phase of a project."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args projectArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			st, err := s.Workflow.Status(args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(result{"project": args.Project, "status": st})
		}
}

func (s *Services) ProjectStatus() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"project_status",
			mcp.WithDescription("Dashboard for a project: paper counts by status, recent additions, insight totals and NotebookLM notebooks."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args projectArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			st, err := s.Status.ProjectStatus(ctx, args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(fields(st))
		}
}

func (s *Services) PendingActions() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"pending_actions",
			mcp.WithDescription("List what the user has to do by hand: PDFs to acquire and papers to add to NotebookLM, across all projects."),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			p, err := s.Status.PendingActions(ctx)
			if err != nil {
				return fail(err)
			}
			return ok(fields(p))
		}
}

func (s *Services) Hello() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"litrev_hello",
			mcp.WithDescription("Check the setup: drive path, config, API keys and the argument map database."),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(s.Status.Hello(ctx, s.Secrets, s.pinger())), nil
		}
}
