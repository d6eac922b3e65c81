// Package argmap builds the argument map of a review: topics group
// propositions, propositions are linked by typed relationships and grounded
// by evidence from saved insights.
package argmap

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/store"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

type ErrorCode string

const (
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	ErrNotInProject         ErrorCode = "PROPOSITION_NOT_IN_PROJECT"
	ErrNoEmbeddings         ErrorCode = "NO_EMBEDDINGS"
	ErrSearch               ErrorCode = "SEARCH_ERROR"
	ErrExtraction           ErrorCode = "EXTRACTION_ERROR"
	ErrNoValidPropositions  ErrorCode = "NO_VALID_PROPOSITIONS"
	ErrIssueNotFound        ErrorCode = "ISSUE_NOT_FOUND"
	ErrIssueResolved        ErrorCode = "ISSUE_ALREADY_RESOLVED"
	ErrIssuesFile           ErrorCode = "ISSUES_FILE_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer answers a single prompt.
type Completer interface {
	Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error)
}

type Service struct {
	store     *store.Store
	cfg       *config.Manager
	notes     *insights.Store
	embedder  Embedder
	completer Completer
	now       func() time.Time
}

type Option func(*Service)

// WithEmbedder enables embedding and semantic search.
func WithEmbedder(e Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithCompleter enables concept extraction and the traversal judge.
func WithCompleter(c Completer) Option {
	return func(s *Service) { s.completer = c }
}

func New(st *store.Store, cfg *config.Manager, notes *insights.Store, opts ...Option) *Service {
	s := &Service{store: st, cfg: cfg, notes: notes, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives topic and proposition ids from names.
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func invalid(msg string, ctx failure.Context) error {
	return failure.New(ErrInvalidInput, failure.Message(msg), ctx)
}

func confirmRequired(msg string) error {
	return failure.New(ErrConfirmationRequired, failure.Message(msg))
}

func checkOneOf(field, value string, allowed []string) error {
	if lo.Contains(allowed, value) {
		return nil
	}
	return invalid(
		fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")),
		failure.Context{field: value},
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CreateTopic adds a topic, or updates the one with the same slug.
func (s *Service) CreateTopic(ctx context.Context, project, name, description string) (store.Topic, error) {
	id := Slug(name)
	if id == "" {
		return store.Topic{}, invalid("Topic name must contain letters or digits", failure.Context{"name": name})
	}
	return s.store.UpsertTopic(ctx, id, name, description, project)
}

func (s *Service) ListTopics(ctx context.Context, project string) ([]store.TopicSummary, error) {
	return s.store.ProjectTopics(ctx, project)
}

// UpdateTopic changes the fields that are non-nil.
func (s *Service) UpdateTopic(ctx context.Context, project, id string, name, description *string) (store.Topic, error) {
	t, err := s.store.Topic(ctx, id)
	if err != nil {
		return store.Topic{}, err
	}
	return s.store.UpsertTopic(ctx, id,
		lo.FromPtrOr(name, t.Name),
		lo.FromPtrOr(description, t.Description),
		project,
	)
}

// DeleteTopic removes a topic and unlinks its propositions.
func (s *Service) DeleteTopic(ctx context.Context, id string, confirm bool) (store.Topic, error) {
	if !confirm {
		return store.Topic{}, confirmRequired("Must set confirm=true to delete a topic. This will unlink all propositions from this topic.")
	}
	t, err := s.store.Topic(ctx, id)
	if err != nil {
		return store.Topic{}, err
	}
	if err := s.store.DeleteTopic(ctx, id); err != nil {
		return store.Topic{}, err
	}
	return t, nil
}

func (s *Service) AssignTopic(ctx context.Context, propositionID, topicID string, primary bool) error {
	if _, err := s.store.Proposition(ctx, propositionID); err != nil {
		return err
	}
	if _, err := s.store.Topic(ctx, topicID); err != nil {
		return err
	}
	return s.store.LinkTopic(ctx, propositionID, topicID, primary)
}
