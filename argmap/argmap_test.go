package argmap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ka2n/litrev/api/anthropic"
	"github.com/ka2n/litrev/api/openai"
	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/store"
	"github.com/morikuni/failure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idError      = "measurement_error_causes_bias"
	idCorrection = "bias_correction_requires_validation_data"
	idDesign     = "randomized_design_reduces_confounding"
)

// fakeEmbedder maps keywords to axes so similarity is predictable.
type fakeEmbedder struct {
	calls int
}

func keywordVector(text string) []float32 {
	text = strings.ToLower(text)
	v := []float32{0, 0, 0, 0.1}
	for i, w := range []string{"error", "bias", "design"} {
		if strings.Contains(text, w) {
			v[i] = 1
		}
	}
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return keywordVector(text), nil
}

type fakeCompleter struct {
	reply  string
	err    error
	model  string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, model string, _ int, prompt string) (string, error) {
	f.model = model
	f.prompt = prompt
	return f.reply, f.err
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Projects = map[string]config.Project{"MEAS": {Name: "Measurement"}}
	mgr := config.NewManager(t.TempDir(), cfg)
	st, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "litrev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := New(st, mgr, insights.NewStore(mgr), opts...)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return s
}

func seedMap(t *testing.T, s *Service) AddResult {
	t.Helper()
	res, err := s.AddPropositions(t.Context(), AddInput{
		Project: "MEAS",
		Topics: []TopicInput{
			{Name: "Measurement", Description: "Measurement quality"},
			{Name: "Design"},
		},
		TopicRelationships: []TopicRelationshipInput{
			{From: "Measurement", To: "Design", Type: "motivates"},
		},
		Propositions: []PropositionInput{
			{Name: "Measurement error causes bias", Definition: "Noisy exposure measures attenuate effect estimates", Source: store.SourceInsight, SuggestedTopic: "Measurement"},
			{Name: "Bias correction requires validation data", Source: store.SourceAIKnowledge, SuggestedTopic: "Measurement", Aliases: []string{"regression calibration"}},
			{Name: "Randomized design reduces confounding", Source: store.SourceAIKnowledge},
		},
		Relationships: []RelationshipInput{
			{From: "Measurement error causes bias", To: "Bias correction requires validation data", Type: "supports"},
			{FromID: idCorrection, ToID: idDesign, Type: "contrasts_with", Source: store.SourceAIKnowledge},
		},
		Evidence: []EvidenceInput{
			{PropositionName: "Bias correction requires validation data", Claim: "Calibration studies recover true effects (Keogh et al., 2020)", InsightID: "2024-03-05_consensus_attrition"},
		},
	})
	require.NoError(t, err)
	return res
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "measurement_error_causes_bias", Slug("Measurement error causes bias"))
	assert.Equal(t, "x_y", Slug("  X -> Y!! "))
	assert.Equal(t, "", Slug("?!"))
}

func TestAddPropositions(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	res := seedMap(t, s)

	assert.Equal(t, "Added 2 topics, 3 new propositions, updated 0, 2 relationships, 1 evidence entries", res.Message)
	assert.Equal(t, []string{"Measurement -motivates-> Design"}, res.AddedTopicRelationships)
	assert.Equal(t, "Measurement error causes bias -supports-> Bias correction requires validation data", res.AddedRelationships[0])

	stats, err := s.store.Stats(ctx, "MEAS")
	require.NoError(t, err)
	assert.Equal(t, store.Stats{TotalPropositions: 3, Grounded: 1, AIScaffolding: 1, Gaps: 1, Relationships: 2}, stats)

	topics, err := s.ListTopics(ctx, "MEAS")
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Design", topics[0].Name)
	assert.Equal(t, 2, topics[1].PrimaryCount)

	aliases, err := s.store.Aliases(ctx, idCorrection)
	require.NoError(t, err)
	assert.Equal(t, []string{"regression calibration"}, aliases)

	again, err := s.AddPropositions(ctx, AddInput{
		Project:      "MEAS",
		Propositions: []PropositionInput{{Name: "Randomized design reduces confounding", Definition: "Random assignment balances confounders", Source: store.SourceAIKnowledge}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Randomized design reduces confounding"}, again.UpdatedPropositions)
	assert.Empty(t, again.AddedPropositions)
}

func TestAddPropositionsRollsBack(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)

	_, err := s.AddPropositions(ctx, AddInput{
		Project:       "MEAS",
		Propositions:  []PropositionInput{{Name: "A", Source: store.SourceInsight}},
		Relationships: []RelationshipInput{{From: "A", To: "Missing", Type: "supports"}},
	})
	require.Error(t, err)
	assert.True(t, failure.Is(err, store.ErrPropositionNotFound))

	props, err := s.store.ProjectPropositions(ctx, "MEAS", "")
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestAddPropositionsValidates(t *testing.T) {
	s := newTestService(t)
	tests := []struct {
		name string
		in   AddInput
	}{
		{"source", AddInput{Propositions: []PropositionInput{{Name: "A", Source: "guess"}}}},
		{"relationship type", AddInput{Relationships: []RelationshipInput{{From: "A", To: "B", Type: "causes"}}}},
		{"topic relationship type", AddInput{TopicRelationships: []TopicRelationshipInput{{From: "A", To: "B", Type: "supports"}}}},
		{"empty slug", AddInput{Propositions: []PropositionInput{{Name: "??", Source: store.SourceInsight}}}},
		{"empty topic slug", AddInput{Topics: []TopicInput{{Name: "???"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Project = "MEAS"
			_, err := s.AddPropositions(t.Context(), tt.in)
			assert.True(t, failure.Is(err, ErrInvalidInput), "got %v", err)
		})
	}

	topics, err := s.ListTopics(t.Context(), "MEAS")
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestTopicOperations(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	_, err := s.CreateTopic(ctx, "MEAS", "!!", "")
	assert.True(t, failure.Is(err, ErrInvalidInput))

	name := "Measurement Error"
	topic, err := s.UpdateTopic(ctx, "MEAS", "measurement", &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "Measurement Error", topic.Name)
	assert.Equal(t, "Measurement quality", topic.Description)

	require.NoError(t, s.AssignTopic(ctx, idDesign, "design", true))
	err = s.AssignTopic(ctx, idDesign, "nope", true)
	assert.True(t, failure.Is(err, store.ErrTopicNotFound))

	_, err = s.DeleteTopic(ctx, "design", false)
	assert.True(t, failure.Is(err, ErrConfirmationRequired))
	deleted, err := s.DeleteTopic(ctx, "design", true)
	require.NoError(t, err)
	assert.Equal(t, "Design", deleted.Name)

	topics, err := s.store.PropositionTopics(ctx, idDesign)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestShowMap(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	m, err := s.ShowMap(ctx, "MEAS", "", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Text, "=== Argument Map: MEAS ===\n\nTotal propositions: 3\n"))
	assert.Contains(t, m.Text, "  Gaps (AI knowledge, no evidence): 1")
	assert.NotContains(t, m.Text, "--- Propositions ---")

	m, err = s.ShowMap(ctx, "MEAS", FormatDetailed, "")
	require.NoError(t, err)
	for _, want := range []string{
		"✓ Measurement error causes bias [no evidence]",
		"    Noisy exposure measures attenuate effect estimates...",
		"    -> supports: Bias correction requires validation data",
		"⚠ Bias correction requires validation data [1 evidence]",
		"    <- supports: Measurement error causes bias",
		"    Evidence [2024-03-05_consensus_attrition]: Calibration studies recover true effects (Keogh et al., 2020)...",
	} {
		assert.Contains(t, m.Text, want)
	}

	m, err = s.ShowMap(ctx, "MEAS", FormatDetailed, store.SourceInsight)
	require.NoError(t, err)
	assert.NotContains(t, m.Text, "⚠")

	_, err = s.ShowMap(ctx, "MEAS", "graph", "")
	assert.True(t, failure.Is(err, ErrInvalidInput))
}

func TestQueryPropositions(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)

	res, err := s.QueryPropositions(ctx, "MEAS", "bias", 10)
	require.NoError(t, err)
	assert.Equal(t, "No propositions found in argument map for this project", res.Message)

	seedMap(t, s)
	res, err = s.QueryPropositions(ctx, "MEAS", "Validation", 10)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalMatches, "ungrounded non-matches are skipped")
	assert.Equal(t, idCorrection, res.Results[0].PropositionID)
	assert.Equal(t, 0.8, res.Results[0].Relevance)
	assert.Equal(t, []string{"Calibration studies recover true effects (Keogh et al., 2020) [2024-03-05_consensus_attrition]"}, res.Results[0].Evidence)
	assert.Equal(t, 0.5, res.Results[1].Relevance)

	res, err = s.QueryPropositions(ctx, "MEAS", "confounding", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalMatches)
	require.Len(t, res.Results, 1)
	assert.Equal(t, idDesign, res.Results[0].PropositionID)
	assert.Equal(t, 0.6, res.Results[0].Relevance)
	assert.False(t, res.Results[0].Grounded)
}

func TestFindGaps(t *testing.T) {
	s := newTestService(t)
	seedMap(t, s)

	gaps, err := s.FindGaps(t.Context(), "MEAS")
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, idDesign, gaps[0].PropositionID)
	assert.Equal(t, "Search for papers about 'Randomized design reduces confounding' to ground this proposition in literature.", gaps[0].Suggestion)
}

func TestUpdateProposition(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	def := "Random assignment balances confounders"
	res, err := s.UpdateProposition(ctx, "MEAS", idDesign, Updates{
		Definition:      &def,
		AddAlias:        "RCT",
		AddRelationship: &RelationshipUpdate{Target: "Measurement error causes bias", Type: "contrasts_with"},
		AddEvidence:     &EvidenceUpdate{InsightID: "note_1", Claim: "Trials avoid confounding"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Updated definition",
		"Added alias: RCT",
		"Added relationship: contrasts_with -> Measurement error causes bias",
		"Added evidence from note_1",
	}, res.Changes)
	assert.Equal(t, def, res.Proposition.Definition)

	gaps, err := s.FindGaps(ctx, "MEAS")
	require.NoError(t, err)
	assert.Empty(t, gaps)

	_, err = s.UpdateProposition(ctx, "MEAS", idDesign, Updates{AddRelationship: &RelationshipUpdate{Target: "Nobody", Type: "supports"}})
	assert.True(t, failure.Is(err, store.ErrPropositionNotFound))
	_, err = s.UpdateProposition(ctx, "MEAS", "nope", Updates{})
	assert.True(t, failure.Is(err, store.ErrPropositionNotFound))
}

func TestDeleteOperations(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	_, err := s.DeleteProposition(ctx, "MEAS", idDesign, false)
	assert.True(t, failure.Is(err, ErrConfirmationRequired))
	_, err = s.DeleteProposition(ctx, "MEAS", idDesign, true)
	require.NoError(t, err)
	_, err = s.DeleteProposition(ctx, "MEAS", idDesign, true)
	assert.True(t, failure.Is(err, ErrNotInProject))

	ok, err := s.store.PropositionExists(ctx, idDesign)
	require.NoError(t, err)
	assert.True(t, ok, "the global proposition is kept")

	require.NoError(t, s.DeleteRelationship(ctx, "Measurement error causes bias", "Bias correction requires validation data", "supports"))
	err = s.DeleteRelationship(ctx, "Measurement error causes bias", "Bias correction requires validation data", "supports")
	assert.True(t, failure.Is(err, store.ErrRelationshipNotFound))
	err = s.DeleteRelationship(ctx, "Ghost", "Bias correction requires validation data", "supports")
	assert.True(t, failure.Is(err, store.ErrPropositionNotFound))

	list, err := s.ListEvidence(ctx, idCorrection, "MEAS")
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	_, err = s.DeleteEvidence(ctx, list.Evidence[0].ID, false)
	assert.True(t, failure.Is(err, ErrConfirmationRequired))
	ev, err := s.DeleteEvidence(ctx, list.Evidence[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05_consensus_attrition", ev.InsightID)
	_, err = s.DeleteEvidence(ctx, ev.ID, true)
	assert.True(t, failure.Is(err, store.ErrEvidenceNotFound))
}

func TestConflicts(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	c, err := s.FlagConflict(ctx, ConflictInput{
		Project:       "MEAS",
		PropositionID: idCorrection,
		AIClaim:       "Validation data is always needed",
		EvidenceClaim: "Replicates can substitute for validation data",
		InsightID:     "note_2",
	})
	require.NoError(t, err)
	assert.Equal(t, store.ConflictUnresolved, c.Status)
	assert.Equal(t, "Bias correction requires validation data", c.PropositionName)

	open, err := s.ListConflicts(ctx, "MEAS", "")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = s.ResolveConflict(ctx, c.ID, "maybe", "")
	assert.True(t, failure.Is(err, ErrInvalidInput))
	resolved, err := s.ResolveConflict(ctx, c.ID, "both_valid", "Depends on design")
	require.NoError(t, err)
	assert.Equal(t, "both_valid", resolved.Status)

	open, err = s.ListConflicts(ctx, "MEAS", "")
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := s.ListConflicts(ctx, "MEAS", "all")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.FlagConflict(ctx, ConflictInput{Project: "MEAS", PropositionID: "nope"})
	assert.True(t, failure.Is(err, store.ErrPropositionNotFound))
}

func TestIssues(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	_, err := s.CreateIssue(ctx, "MEAS", idDesign, "typo", "")
	assert.True(t, failure.Is(err, ErrInvalidInput))

	first, err := s.CreateIssue(ctx, "MEAS", idDesign, "needs_evidence", "Find an RCT review")
	require.NoError(t, err)
	assert.Equal(t, "issue_001", first.ID)
	assert.Equal(t, "2024-03-05T10:00:00.000000Z", first.CreatedAt)
	second, err := s.CreateIssue(ctx, "MEAS", idError, "rephrase", "Too broad")
	require.NoError(t, err)
	assert.Equal(t, "issue_002", second.ID)

	resolved, err := s.ResolveIssue("MEAS", first.ID, "Added Smith 2021")
	require.NoError(t, err)
	assert.Equal(t, IssueResolved, resolved.Status)
	assert.Equal(t, "Added Smith 2021", *resolved.Resolution)
	_, err = s.ResolveIssue("MEAS", first.ID, "again")
	assert.True(t, failure.Is(err, ErrIssueResolved))
	_, err = s.ResolveIssue("MEAS", "issue_999", "")
	assert.True(t, failure.Is(err, ErrIssueNotFound))

	list, err := s.ListIssues("MEAS", IssueOpen, "")
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, map[string]int{"rephrase": 1}, list.ByType)

	list, err = s.ListIssues("MEAS", "", idDesign)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)

	assert.True(t, failure.Is(s.DeleteIssue("MEAS", second.ID, false), ErrConfirmationRequired))
	require.NoError(t, s.DeleteIssue("MEAS", second.ID, true))
	assert.True(t, failure.Is(s.DeleteIssue("MEAS", second.ID, true), ErrIssueNotFound))

	third, err := s.CreateIssue(ctx, "MEAS", idError, "question", "")
	require.NoError(t, err)
	assert.Equal(t, "issue_002", third.ID, "ids continue from the highest remaining number")

	path, err := s.issuesPath("MEAS")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	_, err = s.ListIssues("MEAS", "", "")
	assert.True(t, failure.Is(err, ErrIssuesFile))
}

func TestIssues_UnknownProject(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	for _, project := range []string{"NOPE", "../../escaped"} {
		_, err := s.CreateIssue(ctx, project, idDesign, "needs_evidence", "x")
		assert.True(t, failure.Is(err, config.ErrProjectNotFound), "CreateIssue(%q) error = %v", project, err)
		_, err = s.ListIssues(project, "", "")
		assert.True(t, failure.Is(err, config.ErrProjectNotFound), "ListIssues(%q) error = %v", project, err)
	}
	escaped := filepath.Join(s.cfg.LiteraturePath(), "../../escaped", IssuesFile)
	_, err := os.Stat(escaped)
	assert.True(t, os.IsNotExist(err), "issues file written outside the Literature folder")
}

func TestExtractConcepts(t *testing.T) {
	ctx := t.Context()

	t.Run("provided data", func(t *testing.T) {
		s := newTestService(t)
		ex, err := s.ExtractConcepts(ctx, ExtractInput{Project: "MEAS", InsightID: "x", Data: &Extracted{
			Propositions: []PropositionInput{{Name: "A", Source: store.SourceInsight}},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, ex.PropositionsCount)
		assert.Equal(t, "Extracted 0 topics, 1 propositions, 0 relationships, 0 evidence entries. Review and use add_propositions to confirm.", ex.Message)
	})

	t.Run("no key", func(t *testing.T) {
		s := newTestService(t)
		_, err := s.ExtractConcepts(ctx, ExtractInput{Project: "MEAS", InsightID: "x"})
		assert.True(t, failure.Is(err, anthropic.ErrMissingKey))
	})

	t.Run("reads the insight", func(t *testing.T) {
		fc := &fakeCompleter{reply: "Here it is:\n```json\n{\"suggested_topics\":[{\"name\":\"Measurement\"}],\"propositions\":[{\"name\":\"Error attenuates effects\",\"source\":\"insight\"}],\"evidence\":[],\"relationships\":[]}\n```"}
		s := newTestService(t, WithCompleter(fc))
		_, err := s.notes.Save(insights.SaveInput{Project: "MEAS", Source: "consensus", Topic: "Attrition", Content: "Attrition biases estimates."})
		require.NoError(t, err)

		ex, err := s.ExtractConcepts(ctx, ExtractInput{Project: "MEAS", InsightID: "attrition"})
		require.NoError(t, err)
		assert.Equal(t, anthropic.ModelExtract, fc.model)
		assert.Contains(t, fc.prompt, "Attrition biases estimates.")
		assert.Contains(t, fc.prompt, "contrasts_with")
		assert.Equal(t, 1, ex.TopicsCount)
		assert.Equal(t, "Error attenuates effects", ex.Extracted.Propositions[0].Name)
	})

	t.Run("missing insight", func(t *testing.T) {
		s := newTestService(t, WithCompleter(&fakeCompleter{}))
		_, err := s.ExtractConcepts(ctx, ExtractInput{Project: "MEAS", InsightID: "nothing"})
		assert.True(t, failure.Is(err, insights.ErrNotFound))
	})

	t.Run("bad json", func(t *testing.T) {
		s := newTestService(t, WithCompleter(&fakeCompleter{reply: "not json"}))
		_, err := s.ExtractConcepts(ctx, ExtractInput{Project: "MEAS", InsightID: "x", Content: "text"})
		assert.True(t, failure.Is(err, ErrExtraction))
	})
}

func TestEmbedPropositions(t *testing.T) {
	ctx := t.Context()

	s := newTestService(t)
	seedMap(t, s)
	_, err := s.EmbedPropositions(ctx, "MEAS", false)
	assert.True(t, failure.Is(err, openai.ErrMissingKey))

	fe := &fakeEmbedder{}
	s = newTestService(t, WithEmbedder(fe))
	res, err := s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)
	assert.Equal(t, "No propositions found in project", res.Message)

	seedMap(t, s)
	res, err = s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)
	assert.Equal(t, EmbedResult{Project: "MEAS", Embedded: 3, Message: "Embedded 3 propositions, skipped 0 (already current)"}, res)

	res, err = s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)
	assert.Equal(t, "All propositions already embedded", res.Message)
	assert.Equal(t, 3, res.Skipped)

	def := "Random assignment balances confounders"
	_, err = s.UpdateProposition(ctx, "MEAS", idDesign, Updates{Definition: &def})
	require.NoError(t, err)
	res, err = s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 2, res.Skipped)

	res, err = s.EmbedPropositions(ctx, "MEAS", true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Embedded)
	assert.Equal(t, 3, fe.calls)
}

func TestSearch(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t, WithEmbedder(&fakeEmbedder{}))
	seedMap(t, s)

	_, err := s.Search(ctx, "MEAS", "measurement error", 10)
	assert.True(t, failure.Is(err, ErrNoEmbeddings))

	_, err = s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)

	res, err := s.Search(ctx, "MEAS", "measurement error", 10)
	require.NoError(t, err)
	require.NotNil(t, res.Traversal)
	assert.Equal(t, 1, res.Traversal.SeedsFound)
	assert.Equal(t, 1, res.Traversal.HopDepth)
	assert.Equal(t, "all", res.Traversal.RelationshipTypes)
	assert.Equal(t, "Default parameters (ANTHROPIC_API_KEY not set)", res.Traversal.Reasoning)
	assert.Empty(t, res.Warning)

	nodes := res.Subgraph.Propositions
	require.Len(t, nodes, 2)
	assert.Equal(t, idError, nodes[0].PropositionID)
	assert.True(t, nodes[0].IsSeed)
	require.NotNil(t, nodes[0].Score)
	assert.InDelta(t, 0.7089, *nodes[0].Score, 0.001)
	assert.Equal(t, []string{"Measurement"}, nodes[0].Topics)
	assert.Equal(t, idCorrection, nodes[1].PropositionID)
	assert.False(t, nodes[1].IsSeed)
	assert.Nil(t, nodes[1].Score)
	assert.Equal(t, 1, nodes[1].EvidenceCount)
	require.Len(t, res.Subgraph.Relationships, 1)
	assert.Equal(t, "supports", res.Subgraph.Relationships[0].Type)

	res, err = s.Search(ctx, "MEAS", "qualitative interviews", 10)
	require.NoError(t, err)
	assert.Nil(t, res.Traversal)
	assert.Empty(t, res.Subgraph.Propositions)

	_, err = s.AddPropositions(ctx, AddInput{Project: "MEAS", Propositions: []PropositionInput{{Name: "New idea", Source: store.SourceInsight}}})
	require.NoError(t, err)
	res, err = s.Search(ctx, "MEAS", "measurement error", 10)
	require.NoError(t, err)
	assert.Equal(t, "1 of 4 propositions are not yet embedded. Results may be incomplete.", res.Warning)
}

func TestSearchJudge(t *testing.T) {
	ctx := t.Context()
	fc := &fakeCompleter{reply: `{"hop_depth": 5, "relationship_types": ["supports", "bogus"], "max_neighbors_per_hop": 1, "reasoning": "focused"}`}
	s := newTestService(t, WithEmbedder(&fakeEmbedder{}), WithCompleter(fc))
	seedMap(t, s)
	_, err := s.EmbedPropositions(ctx, "MEAS", false)
	require.NoError(t, err)

	res, err := s.Search(ctx, "MEAS", "measurement error", 10)
	require.NoError(t, err)
	assert.Equal(t, anthropic.ModelJudge, fc.model)
	assert.Contains(t, fc.prompt, "- Measurement error causes bias: Noisy exposure")
	assert.Equal(t, 3, res.Traversal.HopDepth)
	assert.Equal(t, []string{"supports"}, res.Traversal.RelationshipTypes)
	assert.Equal(t, "focused", res.Traversal.Reasoning)
	assert.Len(t, res.Subgraph.Propositions, 2, "contrasts_with is not followed")

	fc.reply, fc.err = "", errors.New("overloaded")
	res, err = s.Search(ctx, "MEAS", "measurement error", 10)
	require.NoError(t, err)
	assert.Equal(t, "Default parameters (LLM call failed: overloaded)", res.Traversal.Reasoning)
}

func TestExpand(t *testing.T) {
	ctx := t.Context()
	s := newTestService(t)
	seedMap(t, s)

	res, err := s.Expand(ctx, "MEAS", []string{idCorrection, "missing"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{idCorrection}, res.OriginPropositions)
	assert.Equal(t, []string{"missing"}, res.InvalidIDs)
	assert.Equal(t, [][]string{{idCorrection}, {idError, idDesign}}, res.HopLayers)
	require.Len(t, res.Subgraph.Propositions, 3)
	assert.True(t, res.Subgraph.Propositions[0].IsOrigin)
	assert.False(t, res.Subgraph.Propositions[1].IsOrigin)
	assert.Len(t, res.Subgraph.Relationships, 2)

	res, err = s.Expand(ctx, "MEAS", []string{idError}, 9, []string{"supports"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{idError}, {idCorrection}}, res.HopLayers)

	_, err = s.Expand(ctx, "MEAS", []string{"missing"}, 1, nil)
	assert.True(t, failure.Is(err, ErrNoValidPropositions))
}

func TestMermaid(t *testing.T) {
	s := newTestService(t)
	seedMap(t, s)

	out, err := s.Mermaid(t.Context(), "MEAS", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n    subgraph t_measurement[\"Measurement\"]\n"))
	assert.Contains(t, out, "        p_"+idCorrection+"[\"Bias correction requires validation data\"]\n")
	assert.Contains(t, out, "    p_"+idDesign+"([\"Randomized design reduces confounding\"]):::gap\n")
	assert.Contains(t, out, "    p_"+idError+" -->|supports| p_"+idCorrection+"\n")

	out, err = s.Mermaid(t.Context(), "MEAS", store.SourceInsight)
	require.NoError(t, err)
	assert.NotContains(t, out, "-->", "edges need both ends shown")
}
