package argmap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ka2n/litrev/store"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

type TopicInput struct {
	Name        string `json:"name" mapstructure:"name" validate:"required"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

type PropositionInput struct {
	ID             string   `json:"id,omitempty" mapstructure:"id"`
	Name           string   `json:"name" mapstructure:"name" validate:"required"`
	Definition     string   `json:"definition,omitempty" mapstructure:"definition"`
	Source         string   `json:"source" mapstructure:"source" validate:"required"`
	SuggestedTopic string   `json:"suggested_topic,omitempty" mapstructure:"suggested_topic"`
	Aliases        []string `json:"aliases,omitempty" mapstructure:"aliases"`
}

type RelationshipInput struct {
	From       string `json:"from,omitempty" mapstructure:"from"`
	To         string `json:"to,omitempty" mapstructure:"to"`
	FromID     string `json:"from_id,omitempty" mapstructure:"from_id"`
	ToID       string `json:"to_id,omitempty" mapstructure:"to_id"`
	Type       string `json:"type" mapstructure:"type" validate:"required"`
	Source     string `json:"source" mapstructure:"source"`
	GroundedIn string `json:"grounded_in,omitempty" mapstructure:"grounded_in"`
}

type EvidenceInput struct {
	PropositionID   string `json:"proposition_id,omitempty" mapstructure:"proposition_id"`
	PropositionName string `json:"proposition_name,omitempty" mapstructure:"proposition_name"`
	Claim           string `json:"claim" mapstructure:"claim" validate:"required"`
	InsightID       string `json:"insight_id" mapstructure:"insight_id" validate:"required"`
	Pages           string `json:"pages,omitempty" mapstructure:"pages"`
	ContestedBy     string `json:"contested_by,omitempty" mapstructure:"contested_by"`
}

type TopicRelationshipInput struct {
	From string `json:"from" mapstructure:"from" validate:"required"`
	To   string `json:"to" mapstructure:"to" validate:"required"`
	Type string `json:"type" mapstructure:"type" validate:"required"`
}

type AddInput struct {
	Project            string
	Propositions       []PropositionInput
	Topics             []TopicInput
	Relationships      []RelationshipInput
	Evidence           []EvidenceInput
	TopicRelationships []TopicRelationshipInput
}

type AddResult struct {
	Project                 string   `json:"project"`
	AddedTopics             []string `json:"added_topics"`
	AddedPropositions       []string `json:"added_propositions"`
	UpdatedPropositions     []string `json:"updated_propositions"`
	AddedRelationships      []string `json:"added_relationships"`
	AddedEvidence           []string `json:"added_evidence"`
	AddedTopicRelationships []string `json:"added_topic_relationships,omitempty"`
	Message                 string   `json:"message"`
}

func idOrSlug(id, name string) string {
	if id != "" {
		return id
	}
	return Slug(name)
}

func (r RelationshipInput) ids() (string, string) {
	return idOrSlug(r.FromID, r.From), idOrSlug(r.ToID, r.To)
}

func (r RelationshipInput) label() string {
	from, to := r.ids()
	return fmt.Sprintf("%s -%s-> %s", lo.CoalesceOrEmpty(r.From, from), r.Type, lo.CoalesceOrEmpty(r.To, to))
}

func (in AddInput) validate() error {
	for _, t := range in.Topics {
		if Slug(t.Name) == "" {
			return invalid("Topic name must contain letters or digits", failure.Context{"name": t.Name})
		}
	}
	for _, p := range in.Propositions {
		if err := checkOneOf("source", p.Source, store.Sources); err != nil {
			return err
		}
		if idOrSlug(p.ID, p.Name) == "" {
			return invalid("Proposition name must contain letters or digits", failure.Context{"name": p.Name})
		}
	}
	for _, r := range in.Relationships {
		if err := checkOneOf("relationship_type", r.Type, store.RelationshipTypes); err != nil {
			return err
		}
		if r.Source != "" {
			if err := checkOneOf("source", r.Source, store.Sources); err != nil {
				return err
			}
		}
	}
	for _, r := range in.TopicRelationships {
		if err := checkOneOf("topic_relationship_type", r.Type, store.TopicRelationshipTypes); err != nil {
			return err
		}
	}
	return nil
}

// AddPropositions upserts topics and propositions and records their
// relationships and evidence in one transaction. Relationships and evidence
// may refer to propositions by id or by name.
func (s *Service) AddPropositions(ctx context.Context, in AddInput) (AddResult, error) {
	if err := in.validate(); err != nil {
		return AddResult{}, err
	}
	res := AddResult{
		Project:             in.Project,
		AddedTopics:         []string{},
		AddedPropositions:   []string{},
		UpdatedPropositions: []string{},
		AddedRelationships:  []string{},
		AddedEvidence:       []string{},
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		existing, err := tx.ProjectTopics(ctx, in.Project)
		if err != nil {
			return err
		}
		topicIDs := lo.SliceToMap(existing, func(t store.TopicSummary) (string, string) { return t.Name, t.ID })

		for _, t := range in.Topics {
			topic, err := tx.UpsertTopic(ctx, Slug(t.Name), t.Name, t.Description, in.Project)
			if err != nil {
				return err
			}
			topicIDs[t.Name] = topic.ID
			res.AddedTopics = append(res.AddedTopics, t.Name)
		}

		for _, t := range in.TopicRelationships {
			from, okFrom := topicIDs[t.From]
			to, okTo := topicIDs[t.To]
			if !okFrom || !okTo {
				return failure.New(store.ErrTopicNotFound,
					failure.Message(fmt.Sprintf("Topic relationship refers to unknown topic: %s -> %s", t.From, t.To)),
				)
			}
			if err := tx.AddTopicRelationship(ctx, from, to, t.Type); err != nil {
				return err
			}
			res.AddedTopicRelationships = append(res.AddedTopicRelationships, fmt.Sprintf("%s -%s-> %s", t.From, t.Type, t.To))
		}

		for _, p := range in.Propositions {
			id := idOrSlug(p.ID, p.Name)
			created, err := tx.UpsertProposition(ctx, id, p.Name, p.Definition, p.Source)
			if err != nil {
				return err
			}
			if created {
				res.AddedPropositions = append(res.AddedPropositions, p.Name)
			} else {
				res.UpdatedPropositions = append(res.UpdatedPropositions, p.Name)
			}
			if err := tx.LinkProject(ctx, in.Project, id); err != nil {
				return err
			}
			if topicID, ok := topicIDs[p.SuggestedTopic]; ok && p.SuggestedTopic != "" {
				if err := tx.LinkTopic(ctx, id, topicID, true); err != nil {
					return err
				}
			}
			for _, alias := range p.Aliases {
				if err := tx.AddAlias(ctx, id, alias); err != nil {
					return err
				}
			}
		}

		for _, r := range in.Relationships {
			from, to := r.ids()
			for _, id := range []string{from, to} {
				if err := mustExist(ctx, tx, id); err != nil {
					return err
				}
			}
			source := lo.CoalesceOrEmpty(r.Source, store.SourceInsight)
			if err := tx.AddRelationship(ctx, from, to, r.Type, source, r.GroundedIn); err != nil {
				return err
			}
			res.AddedRelationships = append(res.AddedRelationships, r.label())
		}

		for _, e := range in.Evidence {
			id := idOrSlug(e.PropositionID, e.PropositionName)
			if err := mustExist(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.AddEvidence(ctx, store.NewEvidence{
				PropositionID: id,
				Project:       in.Project,
				InsightID:     e.InsightID,
				Claim:         e.Claim,
				Pages:         e.Pages,
				ContestedBy:   e.ContestedBy,
			}); err != nil {
				return err
			}
			res.AddedEvidence = append(res.AddedEvidence, fmt.Sprintf("%s: %s...", lo.CoalesceOrEmpty(e.PropositionName, id), truncate(e.Claim, 50)))
		}
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}

	res.Message = fmt.Sprintf("Added %d topics, %d new propositions, updated %d, %d relationships, %d evidence entries",
		len(res.AddedTopics), len(res.AddedPropositions), len(res.UpdatedPropositions),
		len(res.AddedRelationships), len(res.AddedEvidence))
	return res, nil
}

func mustExist(ctx context.Context, st *store.Store, id string) error {
	ok, err := st.PropositionExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return failure.New(store.ErrPropositionNotFound,
			failure.Message("Proposition '"+id+"' not found. Add it in the propositions list first."),
			failure.Context{"proposition_id": id},
		)
	}
	return nil
}

type RelationshipUpdate struct {
	Target     string `json:"target,omitempty" mapstructure:"target"`
	TargetID   string `json:"target_id,omitempty" mapstructure:"target_id"`
	Type       string `json:"type" mapstructure:"type" validate:"required"`
	Source     string `json:"source,omitempty" mapstructure:"source"`
	GroundedIn string `json:"grounded_in,omitempty" mapstructure:"grounded_in"`
}

type EvidenceUpdate struct {
	InsightID string `json:"insight_id" mapstructure:"insight_id" validate:"required"`
	Claim     string `json:"claim" mapstructure:"claim" validate:"required"`
	Pages     string `json:"pages,omitempty" mapstructure:"pages"`
}

type Updates struct {
	Definition      *string             `mapstructure:"definition"`
	AddAlias        string              `mapstructure:"add_alias"`
	AddRelationship *RelationshipUpdate `mapstructure:"add_relationship"`
	AddEvidence     *EvidenceUpdate     `mapstructure:"add_evidence"`
}

type UpdateResult struct {
	PropositionID string            `json:"proposition_id"`
	Changes       []string          `json:"changes"`
	Proposition   store.Proposition `json:"proposition"`
}

// UpdateProposition applies each non-empty field of u.
func (s *Service) UpdateProposition(ctx context.Context, project, id string, u Updates) (UpdateResult, error) {
	prop, err := s.store.Proposition(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	if r := u.AddRelationship; r != nil {
		if err := checkOneOf("relationship_type", r.Type, store.RelationshipTypes); err != nil {
			return UpdateResult{}, err
		}
		if idOrSlug(r.TargetID, r.Target) == "" {
			return UpdateResult{}, invalid("add_relationship needs target or target_id", nil)
		}
	}

	changes := []string{}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if u.Definition != nil {
			if _, err := tx.UpsertProposition(ctx, id, prop.Name, *u.Definition, prop.Source); err != nil {
				return err
			}
			changes = append(changes, "Updated definition")
		}
		if u.AddAlias != "" {
			if err := tx.AddAlias(ctx, id, u.AddAlias); err != nil {
				return err
			}
			changes = append(changes, "Added alias: "+u.AddAlias)
		}
		if r := u.AddRelationship; r != nil {
			to := idOrSlug(r.TargetID, r.Target)
			if err := mustExist(ctx, tx, to); err != nil {
				return err
			}
			if err := tx.AddRelationship(ctx, id, to, r.Type, lo.CoalesceOrEmpty(r.Source, store.SourceInsight), r.GroundedIn); err != nil {
				return err
			}
			changes = append(changes, fmt.Sprintf("Added relationship: %s -> %s", r.Type, lo.CoalesceOrEmpty(r.Target, to)))
		}
		if e := u.AddEvidence; e != nil {
			if _, err := tx.AddEvidence(ctx, store.NewEvidence{
				PropositionID: id,
				Project:       project,
				InsightID:     e.InsightID,
				Claim:         e.Claim,
				Pages:         e.Pages,
			}); err != nil {
				return err
			}
			changes = append(changes, "Added evidence from "+e.InsightID)
		}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}

	updated, err := s.store.Proposition(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{PropositionID: id, Changes: changes, Proposition: updated}, nil
}

// DeleteProposition removes a proposition from a project. The global
// proposition and its relationships are kept.
func (s *Service) DeleteProposition(ctx context.Context, project, id string, confirm bool) (store.Proposition, error) {
	if !confirm {
		return store.Proposition{}, confirmRequired("Must set confirm=true to delete a proposition. This action cannot be undone.")
	}
	prop, err := s.store.Proposition(ctx, id)
	if err != nil {
		return store.Proposition{}, err
	}
	in, err := s.store.InProject(ctx, project, id)
	if err != nil {
		return store.Proposition{}, err
	}
	if !in {
		return store.Proposition{}, failure.New(ErrNotInProject,
			failure.Message(fmt.Sprintf("Proposition '%s' is not linked to project '%s'", id, project)),
		)
	}
	if err := s.store.UnlinkProject(ctx, project, id); err != nil {
		return store.Proposition{}, err
	}
	return prop, nil
}

// DeleteRelationship removes the edge between two propositions named by
// name or id.
func (s *Service) DeleteRelationship(ctx context.Context, from, to, typ string) error {
	fromID, toID := Slug(from), Slug(to)
	for _, id := range []string{fromID, toID} {
		if err := mustExist(ctx, s.store, id); err != nil {
			return err
		}
	}
	return s.store.DeleteRelationship(ctx, fromID, toID, typ)
}

type EvidenceList struct {
	PropositionID   string           `json:"proposition_id"`
	PropositionName string           `json:"proposition_name"`
	ProjectFilter   string           `json:"project_filter,omitempty"`
	Evidence        []store.Evidence `json:"evidence"`
	Count           int              `json:"count"`
}

func (s *Service) ListEvidence(ctx context.Context, propositionID, project string) (EvidenceList, error) {
	prop, err := s.store.Proposition(ctx, propositionID)
	if err != nil {
		return EvidenceList{}, err
	}
	ev, err := s.store.EvidenceFor(ctx, propositionID, project)
	if err != nil {
		return EvidenceList{}, err
	}
	return EvidenceList{
		PropositionID:   propositionID,
		PropositionName: prop.Name,
		ProjectFilter:   project,
		Evidence:        ev,
		Count:           len(ev),
	}, nil
}

func (s *Service) DeleteEvidence(ctx context.Context, id int64, confirm bool) (store.Evidence, error) {
	if !confirm {
		return store.Evidence{}, confirmRequired("Must set confirm=true to delete evidence. This action cannot be undone.")
	}
	ev, err := s.store.EvidenceByID(ctx, id)
	if err != nil {
		return store.Evidence{}, err
	}
	if err := s.store.DeleteEvidence(ctx, id); err != nil {
		return store.Evidence{}, err
	}
	return ev, nil
}

type ConflictInput struct {
	Project       string
	PropositionID string
	AIClaim       string
	EvidenceClaim string
	InsightID     string
}

// FlagConflict records a contradiction between an AI proposition and
// evidence from the literature.
func (s *Service) FlagConflict(ctx context.Context, in ConflictInput) (store.Conflict, error) {
	if _, err := s.store.Proposition(ctx, in.PropositionID); err != nil {
		return store.Conflict{}, err
	}
	id, err := s.store.AddConflict(ctx, store.NewConflict{
		PropositionID: in.PropositionID,
		Project:       in.Project,
		AIClaim:       in.AIClaim,
		EvidenceClaim: in.EvidenceClaim,
		InsightID:     in.InsightID,
	})
	if err != nil {
		return store.Conflict{}, err
	}
	return s.store.Conflict(ctx, id)
}

func (s *Service) ListConflicts(ctx context.Context, project, status string) ([]store.Conflict, error) {
	if status == "" {
		status = store.ConflictUnresolved
	}
	return s.store.Conflicts(ctx, project, status)
}

func (s *Service) ResolveConflict(ctx context.Context, id int64, resolution, note string) (store.Conflict, error) {
	if err := checkOneOf("resolution", resolution, store.Resolutions); err != nil {
		return store.Conflict{}, err
	}
	c, err := s.store.ResolveConflict(ctx, id, resolution, note)
	if err != nil {
		return store.Conflict{}, failure.Wrap(err, failure.Context{"conflict_id": strconv.FormatInt(id, 10)})
	}
	return c, nil
}
