package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InitTools returns every tool backed by s, each wrapped with request logging.
func InitTools(s *Services) []server.ServerTool {
	defs := [](func() (mcp.Tool, server.ToolHandlerFunc)){
		// setup and dashboards
		s.Hello,
		s.ProjectStatus,
		s.PendingActions,

		// zotero
		s.ZoteroListProjects,
		s.ZoteroCreateCollection,
		s.ZoteroAddPaper,
		s.ZoteroUpdateStatus,
		s.ZoteroGetByStatus,
		s.ZoteroSearch,
		s.ZoteroGetCitationKey,
		s.ZoteroDeletePaper,

		// literature search
		s.PubMedSearch,
		s.SemanticScholarSearch,
		s.SemanticScholarReferences,
		s.SemanticScholarCitations,
		s.ERICSearch,
		s.ReadPaperPage,

		// notes
		s.SaveInsight,
		s.SearchInsights,
		s.AnalyzeInsights,
		s.ListInsights,
		s.GetProjectContext,
		s.UpdateProjectContext,

		// workflow
		s.SaveGap,
		s.SaveSessionLog,
		s.SavePivot,
		s.SaveSearchStrategy,
		s.GetWorkflowStatus,

		// argument map
		s.CreateTopic,
		s.ListTopics,
		s.UpdateTopic,
		s.DeleteTopic,
		s.AssignPropositionTopic,
		s.AddPropositions,
		s.ShowArgumentMap,
		s.UpdateProposition,
		s.DeleteProposition,
		s.DeleteRelationship,
		s.ListEvidence,
		s.DeleteEvidence,
		s.FlagConflict,
		s.ListConflicts,
		s.ResolveConflict,
		s.QueryPropositions,
		s.FindArgumentGaps,
		s.CreateIssue,
		s.ListIssues,
		s.ResolveIssue,
		s.DeleteIssue,
		s.ExtractConcepts,
		s.EmbedPropositions,
		s.SearchArgumentMap,
		s.ExpandArgumentMap,
		s.ArgumentMapMermaid,
	}

	tools := make([]server.ServerTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, newServerTool(def()))
	}
	return tools
}

func newServerTool(tool mcp.Tool, handler server.ToolHandlerFunc) server.ServerTool {
	return server.ServerTool{
		Tool:    tool,
		Handler: logged(tool.Name, handler),
	}
}
