package argmap

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/ka2n/litrev/api/anthropic"
	"github.com/ka2n/litrev/store"
	"github.com/morikuni/failure/v2"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(
	template.New("").Funcs(template.FuncMap{"join": strings.Join}).ParseFS(promptFS, "prompts/*.tmpl"),
)

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", failure.Wrap(err, failure.Message("Failed to render prompt"))
	}
	return buf.String(), nil
}

// Extracted is the argument structure proposed for one insight. It has the
// shape accepted by AddPropositions.
type Extracted struct {
	SuggestedTopics []TopicInput        `json:"suggested_topics" mapstructure:"suggested_topics"`
	Propositions    []PropositionInput  `json:"propositions" mapstructure:"propositions"`
	Evidence        []EvidenceInput     `json:"evidence" mapstructure:"evidence"`
	Relationships   []RelationshipInput `json:"relationships" mapstructure:"relationships"`
}

type Extraction struct {
	Project            string    `json:"project"`
	InsightID          string    `json:"insight_id"`
	Extracted          Extracted `json:"extracted"`
	TopicsCount        int       `json:"topics_count"`
	PropositionsCount  int       `json:"propositions_count"`
	RelationshipsCount int       `json:"relationships_count"`
	EvidenceCount      int       `json:"evidence_count"`
	Message            string    `json:"message"`
}

type ExtractInput struct {
	Project   string
	InsightID string
	// Content replaces reading the insight file when set.
	Content string
	// Data skips the model call when set.
	Data *Extracted
}

// ExtractConcepts proposes topics, propositions, evidence and relationships
// for an insight. Nothing is stored.
func (s *Service) ExtractConcepts(ctx context.Context, in ExtractInput) (Extraction, error) {
	if in.Data != nil {
		return newExtraction(in, *in.Data), nil
	}
	if s.completer == nil {
		return Extraction{}, failure.New(anthropic.ErrMissingKey,
			failure.Message("ANTHROPIC_API_KEY environment variable not set"),
		)
	}

	content := in.Content
	if content == "" {
		note, err := s.notes.Find(in.Project, in.InsightID)
		if err != nil {
			return Extraction{}, err
		}
		content = note.Content
	}

	prompt, err := render("extract.tmpl", map[string]any{
		"Content":                content,
		"InsightID":              in.InsightID,
		"RelationshipTypes":      store.RelationshipTypes,
		"TopicRelationshipTypes": store.TopicRelationshipTypes,
	})
	if err != nil {
		return Extraction{}, err
	}
	reply, err := s.completer.Complete(ctx, anthropic.ModelExtract, 4096, prompt)
	if err != nil {
		return Extraction{}, err
	}

	var ex Extracted
	if err := json.Unmarshal([]byte(anthropic.StripCodeFence(reply)), &ex); err != nil {
		return Extraction{}, failure.Wrap(err, failure.WithCode(ErrExtraction),
			failure.Message(fmt.Sprintf("Failed to parse JSON from model response: %v", err)),
		)
	}
	return newExtraction(in, ex), nil
}

func newExtraction(in ExtractInput, ex Extracted) Extraction {
	out := Extraction{
		Project:            in.Project,
		InsightID:          in.InsightID,
		Extracted:          ex,
		TopicsCount:        len(ex.SuggestedTopics),
		PropositionsCount:  len(ex.Propositions),
		RelationshipsCount: len(ex.Relationships),
		EvidenceCount:      len(ex.Evidence),
	}
	out.Message = fmt.Sprintf("Extracted %d topics, %d propositions, %d relationships, %d evidence entries. Review and use add_propositions to confirm.",
		out.TopicsCount, out.PropositionsCount, out.RelationshipsCount, out.EvidenceCount)
	return out
}
