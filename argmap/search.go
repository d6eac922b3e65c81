package argmap

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ka2n/litrev/api/anthropic"
	"github.com/ka2n/litrev/api/openai"
	"github.com/ka2n/litrev/log"
	"github.com/ka2n/litrev/store"
	"github.com/morikuni/failure/v2"
	"github.com/philippgille/chromem-go"
	"github.com/samber/lo"
)

const (
	embedBatchSize  = 100
	maxSeeds        = 5
	minSeedScore    = 0.3
	expandNeighbors = 15
)

func (s *Service) requireEmbedder() error {
	if s.embedder == nil {
		return failure.New(openai.ErrMissingKey,
			failure.Message("OPENAI_API_KEY environment variable not set. Add to your shell config: export OPENAI_API_KEY='your-key'"),
		)
	}
	return nil
}

type EmbedResult struct {
	Project  string `json:"project"`
	Embedded int    `json:"embedded"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

// EmbedPropositions embeds the propositions of a project whose embedding is
// missing or stale, or all of them when force is set.
func (s *Service) EmbedPropositions(ctx context.Context, project string, force bool) (EmbedResult, error) {
	props, err := s.store.ProjectPropositions(ctx, project, "")
	if err != nil {
		return EmbedResult{}, err
	}
	res := EmbedResult{Project: project}
	if len(props) == 0 {
		res.Message = "No propositions found in project"
		return res, nil
	}
	existing, err := s.store.ProjectEmbeddings(ctx, project)
	if err != nil {
		return EmbedResult{}, err
	}
	texts := lo.SliceToMap(existing, func(e store.Embedding) (string, string) { return e.PropositionID, e.Text })

	var todo []store.Embedding
	for _, p := range props {
		text := store.EmbeddingText(p.Name, p.Definition)
		if old, ok := texts[p.ID]; ok && old == text && !force {
			res.Skipped++
			continue
		}
		todo = append(todo, store.Embedding{PropositionID: p.ID, Text: text})
	}
	if len(todo) == 0 {
		res.Message = "All propositions already embedded"
		return res, nil
	}
	if err := s.requireEmbedder(); err != nil {
		return EmbedResult{}, err
	}

	for _, batch := range lo.Chunk(todo, embedBatchSize) {
		vecs, err := s.embedder.Embed(ctx, lo.Map(batch, func(e store.Embedding, _ int) string { return e.Text }))
		if err != nil {
			return EmbedResult{}, err
		}
		if len(vecs) != len(batch) {
			return EmbedResult{}, failure.New(openai.ErrEmbedding,
				failure.Message(fmt.Sprintf("Expected %d embeddings, got %d", len(batch), len(vecs))),
			)
		}
		for i, e := range batch {
			e.Vector = vecs[i]
			if err := s.store.UpsertEmbedding(ctx, e); err != nil {
				return EmbedResult{}, err
			}
			res.Embedded++
		}
	}
	res.Message = fmt.Sprintf("Embedded %d propositions, skipped %d (already current)", res.Embedded, res.Skipped)
	return res, nil
}

// TraversalParams controls the expansion from seed propositions. A nil
// RelationshipTypes follows every type.
type TraversalParams struct {
	HopDepth          int      `json:"hop_depth"`
	RelationshipTypes []string `json:"relationship_types"`
	MaxNeighbors      int      `json:"max_neighbors_per_hop"`
	Reasoning         string   `json:"reasoning,omitempty"`
}

func defaultParams(reason string) TraversalParams {
	return TraversalParams{HopDepth: 1, MaxNeighbors: 10, Reasoning: "Default parameters (" + reason + ")"}
}

func clamp(v, low, high int) int {
	return max(low, min(high, v))
}

func validTypes(types []string) []string {
	out := lo.Filter(lo.Uniq(types), func(t string, _ int) bool { return lo.Contains(store.RelationshipTypes, t) })
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) judge(ctx context.Context, query string, seeds []store.Proposition) TraversalParams {
	if s.completer == nil {
		return defaultParams("ANTHROPIC_API_KEY not set")
	}
	type seedLine struct{ Name, Definition string }
	prompt, err := render("judge.tmpl", map[string]any{
		"Query": query,
		"Seeds": lo.Map(lo.Slice(seeds, 0, maxSeeds), func(p store.Proposition, _ int) seedLine {
			return seedLine{Name: p.Name, Definition: truncate(lo.CoalesceOrEmpty(p.Definition, "No definition"), 100)}
		}),
		"RelationshipTypes": store.RelationshipTypes,
	})
	if err != nil {
		return defaultParams("LLM call failed: " + truncate(err.Error(), 80))
	}
	reply, err := s.completer.Complete(ctx, anthropic.ModelJudge, 256, prompt)
	if err != nil {
		log.Warn("traversal judge failed", "error", err)
		return defaultParams("LLM call failed: " + truncate(err.Error(), 80))
	}

	var raw struct {
		HopDepth          *int     `json:"hop_depth"`
		RelationshipTypes []string `json:"relationship_types"`
		MaxNeighbors      *int     `json:"max_neighbors_per_hop"`
		Reasoning         string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(anthropic.StripCodeFence(reply)), &raw); err != nil {
		return defaultParams("LLM call failed: " + truncate(err.Error(), 80))
	}
	return TraversalParams{
		HopDepth:          clamp(lo.FromPtrOr(raw.HopDepth, 1), 1, 3),
		RelationshipTypes: validTypes(raw.RelationshipTypes),
		MaxNeighbors:      clamp(lo.FromPtrOr(raw.MaxNeighbors, 10), 5, 20),
		Reasoning:         raw.Reasoning,
	}
}

type graph struct {
	order  []string
	props  map[string]store.Proposition
	rels   []store.Relationship
	layers [][]string
}

// traverse expands breadth first from seeds within the project, keeping at
// most params.MaxNeighbors new propositions per hop.
func (s *Service) traverse(ctx context.Context, seeds []store.Proposition, params TraversalParams, project string) (graph, error) {
	g := graph{props: map[string]store.Proposition{}}
	frontier := make([]string, 0, len(seeds))
	for _, p := range seeds {
		g.props[p.ID] = p
		g.order = append(g.order, p.ID)
		frontier = append(frontier, p.ID)
	}
	g.layers = append(g.layers, frontier)

	type edge struct{ from, to, typ string }
	seen := map[edge]bool{}
	for range params.HopDepth {
		if len(frontier) == 0 {
			break
		}
		nb, err := s.store.Neighbors(ctx, frontier, params.RelationshipTypes, project)
		if err != nil {
			return graph{}, err
		}
		for _, r := range nb.Relationships {
			k := edge{r.FromID, r.ToID, r.Type}
			if !seen[k] {
				seen[k] = true
				g.rels = append(g.rels, r)
			}
		}

		next := []string{}
		for _, p := range nb.Propositions {
			if _, ok := g.props[p.ID]; ok {
				continue
			}
			if len(next) == params.MaxNeighbors {
				break
			}
			g.props[p.ID] = p
			g.order = append(g.order, p.ID)
			next = append(next, p.ID)
		}
		if len(next) > 0 {
			g.layers = append(g.layers, next)
		}
		frontier = next
	}
	if g.rels == nil {
		g.rels = []store.Relationship{}
	}
	return g, nil
}

type EvidenceRef struct {
	Claim     string `json:"claim"`
	InsightID string `json:"insight_id"`
	Pages     string `json:"pages,omitempty"`
}

type Node struct {
	PropositionID string        `json:"proposition_id"`
	Name          string        `json:"name"`
	Definition    string        `json:"definition"`
	Source        string        `json:"source"`
	EvidenceCount int           `json:"evidence_count"`
	Evidence      []EvidenceRef `json:"evidence"`
}

func (s *Service) node(ctx context.Context, p store.Proposition, project string) (Node, error) {
	ev, err := s.store.EvidenceFor(ctx, p.ID, project)
	if err != nil {
		return Node{}, err
	}
	return Node{
		PropositionID: p.ID,
		Name:          p.Name,
		Definition:    p.Definition,
		Source:        p.Source,
		EvidenceCount: len(ev),
		Evidence: lo.Map(lo.Slice(ev, 0, 3), func(e store.Evidence, _ int) EvidenceRef {
			return EvidenceRef{Claim: e.Claim, InsightID: e.InsightID, Pages: e.Pages}
		}),
	}, nil
}

type SearchNode struct {
	Node
	Score  *float64 `json:"score"`
	IsSeed bool     `json:"is_seed"`
	Topics []string `json:"topics"`
}

type Traversal struct {
	SeedsFound         int    `json:"seeds_found"`
	HopDepth           int    `json:"hop_depth"`
	RelationshipTypes  any    `json:"relationship_types"`
	Reasoning          string `json:"reasoning"`
	TotalPropositions  int    `json:"total_propositions_in_subgraph"`
	TotalRelationships int    `json:"total_relationships_in_subgraph"`
}

type Subgraph[N any] struct {
	Propositions  []N                  `json:"propositions"`
	Relationships []store.Relationship `json:"relationships"`
}

type SearchResult struct {
	Project   string               `json:"project"`
	Query     string               `json:"query"`
	Traversal *Traversal           `json:"traversal,omitempty"`
	Subgraph  Subgraph[SearchNode] `json:"subgraph"`
	Message   string               `json:"message"`
	Warning   string               `json:"warning,omitempty"`
}

type seed struct {
	prop  store.Proposition
	score float64
}

func (s *Service) seeds(ctx context.Context, project, query string, n int) ([]seed, error) {
	embs, err := s.store.ProjectEmbeddings(ctx, project)
	if err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(project, nil, s.embedder.EmbedQuery)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrSearch), failure.Message("Failed to build vector index"))
	}
	docs := lo.Map(embs, func(e store.Embedding, _ int) chromem.Document {
		return chromem.Document{ID: e.PropositionID, Content: e.Text, Embedding: e.Vector}
	})
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrSearch), failure.Message("Failed to build vector index"))
	}

	results, err := col.Query(ctx, query, min(n, col.Count()), nil, nil)
	if err != nil {
		if failure.CodeOf(err) != nil {
			return nil, err
		}
		return nil, failure.Wrap(err, failure.WithCode(ErrSearch), failure.Message("Vector search failed"))
	}

	var out []seed
	for _, r := range results {
		if float64(r.Similarity) < minSeedScore {
			continue
		}
		p, err := s.store.Proposition(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, seed{prop: p, score: round(float64(r.Similarity), 4)})
	}
	return out, nil
}

// Search finds the propositions closest to query and expands them along
// relationships chosen by the traversal judge.
func (s *Service) Search(ctx context.Context, project, query string, maxResults int) (SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	status, err := s.store.EmbeddingStatus(ctx, project)
	if err != nil {
		return SearchResult{}, err
	}
	if status.Embedded == 0 {
		return SearchResult{}, failure.New(ErrNoEmbeddings,
			failure.Message(fmt.Sprintf("No proposition embeddings found for project '%s'. Run embed_propositions first to generate embeddings for %d propositions.",
				project, status.TotalPropositions)),
		)
	}
	if err := s.requireEmbedder(); err != nil {
		return SearchResult{}, err
	}

	res := SearchResult{
		Project:  project,
		Query:    query,
		Subgraph: Subgraph[SearchNode]{Propositions: []SearchNode{}, Relationships: []store.Relationship{}},
	}
	if status.NotEmbedded > 0 {
		res.Warning = fmt.Sprintf("%d of %d propositions are not yet embedded. Results may be incomplete.",
			status.NotEmbedded, status.TotalPropositions)
	}

	seeds, err := s.seeds(ctx, project, query, min(maxResults, maxSeeds))
	if err != nil {
		return SearchResult{}, err
	}
	if len(seeds) == 0 {
		res.Message = "No semantically similar propositions found. Try a different query or add more propositions to the map."
		return res, nil
	}

	seedProps := lo.Map(seeds, func(sd seed, _ int) store.Proposition { return sd.prop })
	params := s.judge(ctx, query, seedProps)
	g, err := s.traverse(ctx, seedProps, params, project)
	if err != nil {
		return SearchResult{}, err
	}

	scores := lo.SliceToMap(seeds, func(sd seed) (string, float64) { return sd.prop.ID, sd.score })
	nodes := make([]SearchNode, 0, len(g.order))
	for _, id := range g.order {
		n, err := s.node(ctx, g.props[id], project)
		if err != nil {
			return SearchResult{}, err
		}
		topics, err := s.store.PropositionTopics(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		sn := SearchNode{
			Node:   n,
			Topics: lo.Map(topics, func(t store.PropositionTopic, _ int) string { return t.Name }),
		}
		if score, ok := scores[id]; ok {
			sn.Score = lo.ToPtr(score)
			sn.IsSeed = true
		}
		nodes = append(nodes, sn)
	}
	slices.SortStableFunc(nodes, func(a, b SearchNode) int {
		if a.IsSeed != b.IsSeed {
			if a.IsSeed {
				return -1
			}
			return 1
		}
		sa, sb := lo.FromPtr(a.Score), lo.FromPtr(b.Score)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})

	res.Subgraph = Subgraph[SearchNode]{Propositions: lo.Slice(nodes, 0, maxResults), Relationships: g.rels}
	var types any = "all"
	if params.RelationshipTypes != nil {
		types = params.RelationshipTypes
	}
	res.Traversal = &Traversal{
		SeedsFound:         len(seeds),
		HopDepth:           params.HopDepth,
		RelationshipTypes:  types,
		Reasoning:          params.Reasoning,
		TotalPropositions:  len(g.order),
		TotalRelationships: len(g.rels),
	}
	res.Message = fmt.Sprintf("Found %d seed propositions, expanded to %d via %d-hop traversal. Returning top %d with %d relationships.",
		len(seeds), len(g.order), params.HopDepth, len(res.Subgraph.Propositions), len(g.rels))
	return res, nil
}

type ExpandNode struct {
	Node
	IsOrigin bool `json:"is_origin"`
}

type ExpandResult struct {
	Project            string               `json:"project"`
	OriginPropositions []string             `json:"origin_propositions"`
	Subgraph           Subgraph[ExpandNode] `json:"subgraph"`
	HopLayers          [][]string           `json:"hop_layers"`
	InvalidIDs         []string             `json:"invalid_ids,omitempty"`
	Message            string               `json:"message"`
}

// Expand follows relationships outward from the given propositions without
// any model call.
func (s *Service) Expand(ctx context.Context, project string, ids []string, hopDepth int, types []string) (ExpandResult, error) {
	if hopDepth == 0 {
		hopDepth = 1
	}
	var (
		origins []store.Proposition
		invalid []string
	)
	for _, id := range ids {
		p, err := s.store.Proposition(ctx, id)
		if failure.Is(err, store.ErrPropositionNotFound) {
			invalid = append(invalid, id)
			continue
		}
		if err != nil {
			return ExpandResult{}, err
		}
		origins = append(origins, p)
	}
	if len(origins) == 0 {
		return ExpandResult{}, failure.New(ErrNoValidPropositions,
			failure.Message("No valid proposition IDs provided"),
			failure.Context{"invalid_ids": fmt.Sprint(invalid)},
		)
	}

	params := TraversalParams{
		HopDepth:          clamp(hopDepth, 1, 3),
		RelationshipTypes: validTypes(types),
		MaxNeighbors:      expandNeighbors,
	}
	g, err := s.traverse(ctx, origins, params, project)
	if err != nil {
		return ExpandResult{}, err
	}

	originIDs := lo.Map(origins, func(p store.Proposition, _ int) string { return p.ID })
	nodes := make([]ExpandNode, 0, len(g.order))
	for _, id := range g.order {
		n, err := s.node(ctx, g.props[id], project)
		if err != nil {
			return ExpandResult{}, err
		}
		nodes = append(nodes, ExpandNode{Node: n, IsOrigin: lo.Contains(originIDs, id)})
	}
	return ExpandResult{
		Project:            project,
		OriginPropositions: originIDs,
		Subgraph:           Subgraph[ExpandNode]{Propositions: nodes, Relationships: g.rels},
		HopLayers:          g.layers,
		InvalidIDs:         invalid,
		Message: fmt.Sprintf("Expanded from %d propositions: found %d total propositions and %d relationships across %d layers.",
			len(origins), len(g.order), len(g.rels), len(g.layers)),
	}, nil
}
