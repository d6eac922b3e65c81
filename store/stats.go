package store

import (
	"context"
)

type Stats struct {
	TotalPropositions int `json:"total_propositions"`
	Grounded          int `json:"grounded"`
	AIScaffolding     int `json:"ai_scaffolding"`
	Gaps              int `json:"gaps"`
	Relationships     int `json:"relationships"`
}

// Stats summarizes the argument map of a project. Grounded counts insight
// propositions, AIScaffolding counts AI propositions that have evidence and
// Gaps counts those that do not.
func (s *Store) Stats(ctx context.Context, project string) (Stats, error) {
	props, err := s.ProjectPropositions(ctx, project, "")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalPropositions: len(props)}
	for _, p := range props {
		switch {
		case p.Source == SourceInsight:
			st.Grounded++
		case p.EvidenceCount > 0:
			st.AIScaffolding++
		default:
			st.Gaps++
		}
	}
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT r.id)
		FROM proposition_relationships r
		JOIN project_propositions pp1 ON r.from_proposition_id = pp1.proposition_id AND pp1.project = ?1
		JOIN project_propositions pp2 ON r.to_proposition_id = pp2.proposition_id AND pp2.project = ?1`,
		project,
	).Scan(&st.Relationships); err != nil {
		return Stats{}, dbError(err, "Failed to count relationships")
	}
	return st, nil
}

// Gaps returns AI-sourced propositions of a project without evidence.
func (s *Store) Gaps(ctx context.Context, project string) ([]ProjectProposition, error) {
	props, err := s.ProjectPropositions(ctx, project, SourceAIKnowledge)
	if err != nil {
		return nil, err
	}
	out := []ProjectProposition{}
	for _, p := range props {
		if p.EvidenceCount == 0 {
			out = append(out, p)
		}
	}
	return out, nil
}
