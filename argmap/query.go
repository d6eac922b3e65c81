package argmap

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ka2n/litrev/store"
	"github.com/samber/lo"
)

const (
	FormatSummary  = "summary"
	FormatDetailed = "detailed"
)

type Map struct {
	Project string      `json:"project"`
	Stats   store.Stats `json:"stats"`
	Text    string      `json:"text"`
}

// ShowMap renders the argument map of a project as text.
func (s *Service) ShowMap(ctx context.Context, project, format, filterSource string) (Map, error) {
	if format == "" {
		format = FormatSummary
	}
	if err := checkOneOf("format", format, []string{FormatSummary, FormatDetailed}); err != nil {
		return Map{}, err
	}
	if filterSource != "" {
		if err := checkOneOf("filter_source", filterSource, store.Sources); err != nil {
			return Map{}, err
		}
	}
	stats, err := s.store.Stats(ctx, project)
	if err != nil {
		return Map{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Argument Map: %s ===\n\n", project)
	fmt.Fprintf(&b, "Total propositions: %d\n", stats.TotalPropositions)
	fmt.Fprintf(&b, "  Grounded (from insights): %d\n", stats.Grounded)
	fmt.Fprintf(&b, "  AI scaffolding (with evidence): %d\n", stats.AIScaffolding)
	fmt.Fprintf(&b, "  Gaps (AI knowledge, no evidence): %d\n", stats.Gaps)
	fmt.Fprintf(&b, "Relationships: %d\n", stats.Relationships)

	if format == FormatDetailed {
		props, err := s.store.ProjectPropositions(ctx, project, filterSource)
		if err != nil {
			return Map{}, err
		}
		b.WriteString("\n\n--- Propositions ---\n\n")
		for _, p := range props {
			if err := s.writeProposition(ctx, &b, project, p); err != nil {
				return Map{}, err
			}
		}
	}
	return Map{Project: project, Stats: stats, Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (s *Service) writeProposition(ctx context.Context, b *strings.Builder, project string, p store.ProjectProposition) error {
	mark := "⚠"
	if p.Source == store.SourceInsight {
		mark = "✓"
	}
	count := "[no evidence]"
	if p.EvidenceCount > 0 {
		count = fmt.Sprintf("[%d evidence]", p.EvidenceCount)
	}
	fmt.Fprintf(b, "%s %s %s\n", mark, p.Name, count)
	if p.Definition != "" {
		fmt.Fprintf(b, "    %s...\n", truncate(p.Definition, 100))
	}

	rels, err := s.store.Relationships(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.FromID == p.ID {
			fmt.Fprintf(b, "    -> %s: %s\n", r.Type, r.ToName)
		} else {
			fmt.Fprintf(b, "    <- %s: %s\n", r.Type, r.FromName)
		}
	}

	if p.EvidenceCount > 0 {
		ev, err := s.store.EvidenceFor(ctx, p.ID, project)
		if err != nil {
			return err
		}
		for _, e := range lo.Slice(ev, 0, 3) {
			fmt.Fprintf(b, "    Evidence [%s]: %s...\n", e.InsightID, truncate(e.Claim, 80))
		}
	}
	b.WriteString("\n")
	return nil
}

type Match struct {
	Proposition   string   `json:"proposition"`
	PropositionID string   `json:"proposition_id"`
	Definition    string   `json:"definition"`
	Relevance     float64  `json:"relevance"`
	Grounded      bool     `json:"grounded"`
	Evidence      []string `json:"evidence"`
	Source        string   `json:"source"`
}

type QueryResult struct {
	Project      string  `json:"project"`
	Query        string  `json:"query"`
	Results      []Match `json:"results"`
	TotalMatches int     `json:"total_matches"`
	Message      string  `json:"message"`
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// QueryPropositions ranks propositions by keyword match. Grounded
// propositions are always returned; ungrounded ones only when they match.
func (s *Service) QueryPropositions(ctx context.Context, project, query string, maxResults int) (QueryResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	props, err := s.store.ProjectPropositions(ctx, project, "")
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{Project: project, Query: query, Results: []Match{}}
	if len(props) == 0 {
		res.Message = "No propositions found in argument map for this project"
		return res, nil
	}

	q := strings.ToLower(query)
	var matches []Match
	for _, p := range props {
		score := 0.3
		if p.Grounded() {
			score = 0.5
		}
		inName := strings.Contains(strings.ToLower(p.Name), q)
		inDef := p.Definition != "" && strings.Contains(strings.ToLower(p.Definition), q)
		if inName {
			score += 0.3
		}
		if inDef {
			score += 0.2
		}
		if !p.Grounded() && !inName && !inDef {
			continue
		}

		ev, err := s.store.EvidenceFor(ctx, p.ID, project)
		if err != nil {
			return QueryResult{}, err
		}
		matches = append(matches, Match{
			Proposition:   p.Name,
			PropositionID: p.ID,
			Definition:    p.Definition,
			Relevance:     round(score, 3),
			Grounded:      p.Grounded(),
			Evidence: lo.Map(lo.Slice(ev, 0, 3), func(e store.Evidence, _ int) string {
				return fmt.Sprintf("%s [%s]", e.Claim, e.InsightID)
			}),
			Source: p.Source,
		})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		}
		return 0
	})

	res.TotalMatches = len(matches)
	res.Results = append(res.Results, lo.Slice(matches, 0, maxResults)...)
	res.Message = fmt.Sprintf("Found %d matching propositions (showing top %d). For semantic search, use search_argument_map.",
		len(matches), len(res.Results))
	return res, nil
}

type Gap struct {
	Proposition   string `json:"proposition"`
	PropositionID string `json:"proposition_id"`
	Definition    string `json:"definition"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Suggestion    string `json:"suggestion"`
}

// FindGaps lists AI scaffolding propositions that have no evidence.
func (s *Service) FindGaps(ctx context.Context, project string) ([]Gap, error) {
	props, err := s.store.Gaps(ctx, project)
	if err != nil {
		return nil, err
	}
	return lo.Map(props, func(p store.ProjectProposition, _ int) Gap {
		return Gap{
			Proposition:   p.Name,
			PropositionID: p.ID,
			Definition:    p.Definition,
			Status:        "ungrounded",
			Reason:        "AI scaffolding proposition without evidence from your literature.",
			Suggestion:    fmt.Sprintf("Search for papers about '%s' to ground this proposition in literature.", p.Name),
		}
	}), nil
}

func mermaidLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// Mermaid renders the project's propositions as a mermaid flowchart,
// grouped into subgraphs by primary topic.
func (s *Service) Mermaid(ctx context.Context, project, filterSource string) (string, error) {
	if filterSource != "" {
		if err := checkOneOf("filter_source", filterSource, store.Sources); err != nil {
			return "", err
		}
	}
	props, err := s.store.ProjectPropositions(ctx, project, filterSource)
	if err != nil {
		return "", err
	}
	rels, err := s.store.ProjectRelationships(ctx, project)
	if err != nil {
		return "", err
	}

	type group struct {
		name  string
		nodes []store.ProjectProposition
	}
	var (
		order  []string
		groups = map[string]*group{}
		loose  []store.ProjectProposition
	)
	for _, p := range props {
		topics, err := s.store.PropositionTopics(ctx, p.ID)
		if err != nil {
			return "", err
		}
		primary, ok := lo.Find(topics, func(t store.PropositionTopic) bool { return t.IsPrimary })
		if !ok {
			loose = append(loose, p)
			continue
		}
		g, ok := groups[primary.TopicID]
		if !ok {
			g = &group{name: primary.Name}
			groups[primary.TopicID] = g
			order = append(order, primary.TopicID)
		}
		g.nodes = append(g.nodes, p)
	}

	node := func(b *strings.Builder, indent string, p store.ProjectProposition) {
		if p.Grounded() {
			fmt.Fprintf(b, "%sp_%s[\"%s\"]\n", indent, p.ID, mermaidLabel(p.Name))
		} else {
			fmt.Fprintf(b, "%sp_%s([\"%s\"]):::gap\n", indent, p.ID, mermaidLabel(p.Name))
		}
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, id := range order {
		g := groups[id]
		fmt.Fprintf(&b, "    subgraph t_%s[\"%s\"]\n", id, mermaidLabel(g.name))
		for _, p := range g.nodes {
			node(&b, "        ", p)
		}
		b.WriteString("    end\n")
	}
	for _, p := range loose {
		node(&b, "    ", p)
	}

	shown := lo.SliceToMap(props, func(p store.ProjectProposition) (string, bool) { return p.ID, true })
	for _, r := range rels {
		if !shown[r.FromID] || !shown[r.ToID] {
			continue
		}
		fmt.Fprintf(&b, "    p_%s -->|%s| p_%s\n", r.FromID, r.Type, r.ToID)
	}
	b.WriteString("    classDef gap stroke-dasharray: 5 5\n")
	return b.String(), nil
}
