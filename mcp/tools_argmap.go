package mcp

import (
	"context"
	"fmt"

	"github.com/ka2n/litrev/argmap"
	"github.com/ka2n/litrev/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var (
	objectItems = mcp.Items(map[string]any{"type": "object"})
	stringItems = mcp.Items(map[string]any{"type": "string"})
)

// argMapTool wraps h so it only runs when the argument map store is open.
func (s *Services) argMapTool(h func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		am, err := s.argmap()
		if err != nil {
			return fail(err)
		}
		return h(ctx, req, am)
	}
}

func (s *Services) CreateTopic() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"create_topic",
			mcp.WithDescription("Create a topic to group propositions of a project's argument map."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Topic name")),
			mcp.WithString("description", mcp.Description("What the topic covers")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project     string `mapstructure:"project" validate:"required"`
				Name        string `mapstructure:"name" validate:"required"`
				Description string `mapstructure:"description"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			t, err := am.CreateTopic(ctx, args.Project, args.Name, args.Description)
			if err != nil {
				return fail(err)
			}
			return ok(result{"topic": t, "message": fmt.Sprintf("Created topic '%s'", t.Name)})
		})
}

func (s *Services) ListTopics() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"list_topics",
			mcp.WithDescription("List the topics of a project with their proposition counts."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args projectArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			topics, err := am.ListTopics(ctx, args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(result{"project": args.Project, "topics": topics, "count": len(topics)})
		})
}

func (s *Services) UpdateTopic() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"update_topic",
			mcp.WithDescription("Rename a topic or change its description. Omitted fields keep their value."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("topic_id", mcp.Required(), mcp.Description("Topic id")),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("description", mcp.Description("New description")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project     string  `mapstructure:"project" validate:"required"`
				TopicID     string  `mapstructure:"topic_id" validate:"required"`
				Name        *string `mapstructure:"name"`
				Description *string `mapstructure:"description"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			t, err := am.UpdateTopic(ctx, args.Project, args.TopicID, args.Name, args.Description)
			if err != nil {
				return fail(err)
			}
			return ok(result{"topic": t})
		})
}

func (s *Services) DeleteTopic() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"delete_topic",
			mcp.WithDescription("Delete a topic and unlink its propositions. Requires confirm=true."),
			mcp.WithString("topic_id", mcp.Required(), mcp.Description("Topic id")),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				TopicID string `mapstructure:"topic_id" validate:"required"`
				Confirm bool   `mapstructure:"confirm"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			t, err := am.DeleteTopic(ctx, args.TopicID, args.Confirm)
			if err != nil {
				return fail(err)
			}
			return ok(result{"deleted_topic": t, "message": fmt.Sprintf("Deleted topic '%s'", t.Name)})
		})
}

func (s *Services) AssignPropositionTopic() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"assign_proposition_topic",
			mcp.WithDescription("Link a proposition to a topic, optionally as its primary topic."),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithString("topic_id", mcp.Required(), mcp.Description("Topic id")),
			mcp.WithBoolean("is_primary", mcp.Description("Make this the primary topic (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				PropositionID string `mapstructure:"proposition_id" validate:"required"`
				TopicID       string `mapstructure:"topic_id" validate:"required"`
				IsPrimary     bool   `mapstructure:"is_primary"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if err := am.AssignTopic(ctx, args.PropositionID, args.TopicID, args.IsPrimary); err != nil {
				return fail(err)
			}
			return ok(result{
				"proposition_id": args.PropositionID,
				"topic_id":       args.TopicID,
				"is_primary":     args.IsPrimary,
			})
		})
}

func (s *Services) AddPropositions() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"add_propositions",
			mcp.WithDescription("Add propositions, topics, relationships and evidence to a project's argument map. Existing propositions are updated."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithArray("propositions", mcp.Required(), objectItems,
				mcp.Description("Items {id?, name, definition?, source: insight|ai_knowledge, suggested_topic?, aliases?}")),
			mcp.WithArray("topics", objectItems, mcp.Description("Items {name, description?}")),
			mcp.WithArray("relationships", objectItems,
				mcp.Description("Items {from|from_id, to|to_id, type, source?, grounded_in?}")),
			mcp.WithArray("evidence", objectItems,
				mcp.Description("Items {proposition_id|proposition_name, claim, insight_id, pages?, contested_by?}")),
			mcp.WithArray("topic_relationships", objectItems,
				mcp.Description("Items {from, to, type: motivates|contextualizes|contrasts_with|builds_on}")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project            string                          `mapstructure:"project" validate:"required"`
				Propositions       []argmap.PropositionInput       `mapstructure:"propositions" validate:"dive"`
				Topics             []argmap.TopicInput             `mapstructure:"topics" validate:"dive"`
				Relationships      []argmap.RelationshipInput      `mapstructure:"relationships" validate:"dive"`
				Evidence           []argmap.EvidenceInput          `mapstructure:"evidence" validate:"dive"`
				TopicRelationships []argmap.TopicRelationshipInput `mapstructure:"topic_relationships" validate:"dive"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			res, err := am.AddPropositions(ctx, argmap.AddInput{
				Project:            args.Project,
				Propositions:       args.Propositions,
				Topics:             args.Topics,
				Relationships:      args.Relationships,
				Evidence:           args.Evidence,
				TopicRelationships: args.TopicRelationships,
			})
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) ShowArgumentMap() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"show_argument_map",
			mcp.WithDescription("Show a project's argument map as text: totals, or every proposition with its edges and evidence."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("format", mcp.Enum(argmap.FormatSummary, argmap.FormatDetailed), mcp.DefaultString(argmap.FormatSummary), mcp.Description("summary or detailed")),
			mcp.WithString("filter_source", mcp.Enum(store.Sources...), mcp.Description("Only propositions from this source")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project      string `mapstructure:"project" validate:"required"`
				Format       string `mapstructure:"format"`
				FilterSource string `mapstructure:"filter_source"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			m, err := am.ShowMap(ctx, args.Project, args.Format, args.FilterSource)
			if err != nil {
				return fail(err)
			}
			return ok(fields(m))
		})
}

func (s *Services) UpdateProposition() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"update_proposition",
			mcp.WithDescription("Change a proposition's definition, or add an alias, a relationship or evidence to it."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithObject("updates", mcp.Required(), mcp.Properties(map[string]any{
				"definition": map[string]any{"type": "string"},
				"add_alias":  map[string]any{"type": "string"},
				"add_relationship": map[string]any{
					"type":        "object",
					"description": "{target|target_id, type, source?, grounded_in?}",
				},
				"add_evidence": map[string]any{
					"type":        "object",
					"description": "{insight_id, claim, pages?}",
				},
			}), mcp.Description("Fields to change")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string         `mapstructure:"project" validate:"required"`
				PropositionID string         `mapstructure:"proposition_id" validate:"required"`
				Updates       argmap.Updates `mapstructure:"updates"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			res, err := am.UpdateProposition(ctx, args.Project, args.PropositionID, args.Updates)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) DeleteProposition() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"delete_proposition",
			mcp.WithDescription("Remove a proposition from a project. The proposition stays available to other projects. Requires confirm=true."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string `mapstructure:"project" validate:"required"`
				PropositionID string `mapstructure:"proposition_id" validate:"required"`
				Confirm       bool   `mapstructure:"confirm"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			p, err := am.DeleteProposition(ctx, args.Project, args.PropositionID, args.Confirm)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"deleted": p,
				"message": fmt.Sprintf("Removed '%s' from project %s", p.Name, args.Project),
			})
		})
}

func (s *Services) DeleteRelationship() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"delete_relationship",
			mcp.WithDescription("Delete the relationship between two propositions."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("from_name", mcp.Required(), mcp.Description("Source proposition name or id")),
			mcp.WithString("to_name", mcp.Required(), mcp.Description("Target proposition name or id")),
			mcp.WithString("relationship_type", mcp.Required(), mcp.Enum(store.RelationshipTypes...), mcp.Description("Relationship type")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				From    string `mapstructure:"from_name" validate:"required"`
				To      string `mapstructure:"to_name" validate:"required"`
				Type    string `mapstructure:"relationship_type" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if err := am.DeleteRelationship(ctx, args.From, args.To, args.Type); err != nil {
				return fail(err)
			}
			return ok(result{
				"message": fmt.Sprintf("Deleted relationship: %s -[%s]-> %s", args.From, args.Type, args.To),
			})
		})
}

func (s *Services) ListEvidence() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"list_evidence",
			mcp.WithDescription("List the evidence recorded for a proposition."),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithString("project", mcp.Description("Only evidence from this project")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				PropositionID string `mapstructure:"proposition_id" validate:"required"`
				Project       string `mapstructure:"project"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			l, err := am.ListEvidence(ctx, args.PropositionID, args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(fields(l))
		})
}

func (s *Services) DeleteEvidence() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"delete_evidence",
			mcp.WithDescription("Delete one evidence row by id. Requires confirm=true."),
			mcp.WithNumber("evidence_id", mcp.Required(), mcp.Description("Evidence id from list_evidence")),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				EvidenceID int64 `mapstructure:"evidence_id" validate:"required"`
				Confirm    bool  `mapstructure:"confirm"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			ev, err := am.DeleteEvidence(ctx, args.EvidenceID, args.Confirm)
			if err != nil {
				return fail(err)
			}
			return ok(result{"deleted": ev})
		})
}

func (s *Services) FlagConflict() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"flag_conflict",
			mcp.WithDescription("Record that evidence from the literature contradicts an AI scaffolding proposition."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithString("ai_claim", mcp.Required(), mcp.Description("What the AI scaffolding claims")),
			mcp.WithString("evidence_claim", mcp.Required(), mcp.Description("What the literature says")),
			mcp.WithString("insight_id", mcp.Description("Insight holding the evidence")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string `mapstructure:"project" validate:"required"`
				PropositionID string `mapstructure:"proposition_id" validate:"required"`
				AIClaim       string `mapstructure:"ai_claim" validate:"required"`
				EvidenceClaim string `mapstructure:"evidence_claim" validate:"required"`
				InsightID     string `mapstructure:"insight_id"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			c, err := am.FlagConflict(ctx, argmap.ConflictInput{
				Project:       args.Project,
				PropositionID: args.PropositionID,
				AIClaim:       args.AIClaim,
				EvidenceClaim: args.EvidenceClaim,
				InsightID:     args.InsightID,
			})
			if err != nil {
				return fail(err)
			}
			return ok(result{"conflict": c})
		})
}

func (s *Services) ListConflicts() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"list_conflicts",
			mcp.WithDescription("List conflicts between AI scaffolding and evidence."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("status", mcp.Enum(store.ConflictUnresolved, "all"), mcp.DefaultString(store.ConflictUnresolved), mcp.Description("unresolved or all")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				Status  string `mapstructure:"status"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			cs, err := am.ListConflicts(ctx, args.Project, args.Status)
			if err != nil {
				return fail(err)
			}
			return ok(result{"project": args.Project, "conflicts": cs, "count": len(cs)})
		})
}

func (s *Services) ResolveConflict() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"resolve_conflict",
			mcp.WithDescription("Resolve a conflict, saying which side was right."),
			mcp.WithNumber("conflict_id", mcp.Required(), mcp.Description("Conflict id")),
			mcp.WithString("resolution", mcp.Required(), mcp.Enum(store.Resolutions...), mcp.Description("Which side was right")),
			mcp.WithString("note", mcp.Description("Resolution note")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				ConflictID int64  `mapstructure:"conflict_id" validate:"required"`
				Resolution string `mapstructure:"resolution" validate:"required"`
				Note       string `mapstructure:"note"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			c, err := am.ResolveConflict(ctx, args.ConflictID, args.Resolution, args.Note)
			if err != nil {
				return fail(err)
			}
			return ok(result{"conflict": c})
		})
}

func (s *Services) QueryPropositions() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"query_propositions",
			mcp.WithDescription("Keyword search over the propositions of a project. Grounded propositions rank first."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question or keywords")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of results (default 10)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project    string `mapstructure:"project" validate:"required"`
				Question   string `mapstructure:"question" validate:"required"`
				MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if args.MaxResults == 0 {
				args.MaxResults = 10
			}
			res, err := am.QueryPropositions(ctx, args.Project, args.Question, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) FindArgumentGaps() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"find_argument_gaps",
			mcp.WithDescription("List AI scaffolding propositions that no evidence supports yet."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args projectArgs
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			gaps, err := am.FindGaps(ctx, args.Project)
			if err != nil {
				return fail(err)
			}
			return ok(result{
				"project": args.Project,
				"gaps":    gaps,
				"count":   len(gaps),
				"message": fmt.Sprintf("Found %d ungrounded AI scaffolding propositions", len(gaps)),
			})
		})
}

func (s *Services) CreateIssue() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"create_issue",
			mcp.WithDescription("Note a problem with a proposition for later review."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("proposition_id", mcp.Required(), mcp.Description("Proposition id")),
			mcp.WithString("issue_type", mcp.Required(), mcp.Enum(argmap.IssueTypes...), mcp.Description("Kind of issue")),
			mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string `mapstructure:"project" validate:"required"`
				PropositionID string `mapstructure:"proposition_id" validate:"required"`
				IssueType     string `mapstructure:"issue_type" validate:"required"`
				Description   string `mapstructure:"description" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			issue, err := am.CreateIssue(ctx, args.Project, args.PropositionID, args.IssueType, args.Description)
			if err != nil {
				return fail(err)
			}
			return ok(result{"issue": issue, "message": fmt.Sprintf("Created %s", issue.ID)})
		})
}

func (s *Services) ListIssues() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"list_issues",
			mcp.WithDescription("List the issues noted for a project."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("status", mcp.Enum("all", argmap.IssueOpen, argmap.IssueResolved), mcp.DefaultString("all"), mcp.Description("Filter by status")),
			mcp.WithString("proposition_id", mcp.Description("Only issues about this proposition")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string `mapstructure:"project" validate:"required"`
				Status        string `mapstructure:"status"`
				PropositionID string `mapstructure:"proposition_id"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			l, err := am.ListIssues(args.Project, args.Status, args.PropositionID)
			if err != nil {
				return fail(err)
			}
			return ok(fields(l))
		})
}

func (s *Services) ResolveIssue() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"resolve_issue",
			mcp.WithDescription("Mark an issue resolved."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue id, e.g. issue_001")),
			mcp.WithString("resolution", mcp.Required(), mcp.Description("How it was resolved")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project    string `mapstructure:"project" validate:"required"`
				IssueID    string `mapstructure:"issue_id" validate:"required"`
				Resolution string `mapstructure:"resolution" validate:"required"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			issue, err := am.ResolveIssue(args.Project, args.IssueID, args.Resolution)
			if err != nil {
				return fail(err)
			}
			return ok(result{"issue": issue})
		})
}

func (s *Services) DeleteIssue() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"delete_issue",
			mcp.WithDescription("Delete an issue. Requires confirm=true."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue id")),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				IssueID string `mapstructure:"issue_id" validate:"required"`
				Confirm bool   `mapstructure:"confirm"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if err := am.DeleteIssue(args.Project, args.IssueID, args.Confirm); err != nil {
				return fail(err)
			}
			return ok(result{"message": "Deleted " + args.IssueID})
		})
}

func (s *Services) ExtractConcepts() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"extract_concepts",
			mcp.WithDescription("Propose topics, propositions, evidence and relationships for an insight. Nothing is saved: review the result, then call add_propositions."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("insight_id", mcp.Required(), mcp.Description("Insight filename or a part of it")),
			mcp.WithString("content", mcp.Description("Insight text, instead of reading the file")),
			mcp.WithObject("extracted_data", mcp.Description("Already extracted {suggested_topics, propositions, evidence, relationships}; skips the model call")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project       string            `mapstructure:"project" validate:"required"`
				InsightID     string            `mapstructure:"insight_id" validate:"required"`
				Content       string            `mapstructure:"content"`
				ExtractedData *argmap.Extracted `mapstructure:"extracted_data"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			ex, err := am.ExtractConcepts(ctx, argmap.ExtractInput{
				Project:   args.Project,
				InsightID: args.InsightID,
				Content:   args.Content,
				Data:      args.ExtractedData,
			})
			if err != nil {
				return fail(err)
			}
			return ok(fields(ex))
		})
}

func (s *Services) EmbedPropositions() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"embed_propositions",
			mcp.WithDescription("Compute embeddings for the propositions of a project so search_argument_map can find them."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithBoolean("force", mcp.Description("Re-embed unchanged propositions too (default false)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project string `mapstructure:"project" validate:"required"`
				Force   bool   `mapstructure:"force"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			res, err := am.EmbedPropositions(ctx, args.Project, args.Force)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) SearchArgumentMap() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"search_argument_map",
			mcp.WithDescription("Semantic search over a project's argument map: finds seed propositions, then follows relationships to return a connected subgraph with evidence."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Question or claim")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Description("Maximum number of propositions (default 10)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project    string `mapstructure:"project" validate:"required"`
				Query      string `mapstructure:"query" validate:"required"`
				MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			if args.MaxResults == 0 {
				args.MaxResults = 10
			}
			res, err := am.Search(ctx, args.Project, args.Query, args.MaxResults)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) ExpandArgumentMap() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"expand_argument_map",
			mcp.WithDescription("Follow relationships outward from known propositions, without a model call."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithArray("proposition_ids", mcp.Required(), stringItems, mcp.Description("Propositions to start from")),
			mcp.WithNumber("hop_depth", mcp.DefaultNumber(1), mcp.Description("How many hops to follow (1-3)")),
			mcp.WithArray("relationship_types", mcp.Items(map[string]any{"type": "string", "enum": store.RelationshipTypes}), mcp.Description("Only follow these types (default: all)")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project           string   `mapstructure:"project" validate:"required"`
				PropositionIDs    []string `mapstructure:"proposition_ids" validate:"required,min=1"`
				HopDepth          int      `mapstructure:"hop_depth" validate:"gte=0,lte=3"`
				RelationshipTypes []string `mapstructure:"relationship_types"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			res, err := am.Expand(ctx, args.Project, args.PropositionIDs, args.HopDepth, args.RelationshipTypes)
			if err != nil {
				return fail(err)
			}
			return ok(fields(res))
		})
}

func (s *Services) ArgumentMapMermaid() (tool mcp.Tool, handler server.ToolHandlerFunc) {
	return mcp.NewTool(
			"argument_map_mermaid",
			mcp.WithDescription("Render a project's argument map as a mermaid flowchart, grouped by topic."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project code")),
			mcp.WithString("filter_source", mcp.Enum(store.Sources...), mcp.Description("Only propositions from this source")),
		), s.argMapTool(func(ctx context.Context, req mcp.CallToolRequest, am *argmap.Service) (*mcp.CallToolResult, error) {
			var args struct {
				Project      string `mapstructure:"project" validate:"required"`
				FilterSource string `mapstructure:"filter_source"`
			}
			if err := bind(ctx, req, &args); err != nil {
				return fail(err)
			}
			chart, err := am.Mermaid(ctx, args.Project, args.FilterSource)
			if err != nil {
				return fail(err)
			}
			return ok(result{"project": args.Project, "mermaid": chart})
		})
}
