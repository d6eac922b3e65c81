package store

import (
	"context"

	"github.com/morikuni/failure/v2"
)

type Relationship struct {
	ID         int64  `json:"id"`
	FromID     string `json:"from_proposition_id"`
	FromName   string `json:"from_name"`
	ToID       string `json:"to_proposition_id"`
	ToName     string `json:"to_name"`
	Type       string `json:"relationship_type"`
	Source     string `json:"source"`
	GroundedIn string `json:"grounded_in,omitempty"`
}

const relationshipColumns = `
	SELECT r.id, r.from_proposition_id, p1.name, r.to_proposition_id, p2.name,
		r.relationship_type, r.source, COALESCE(r.grounded_in_insight_id, '')
	FROM proposition_relationships r
	JOIN propositions p1 ON r.from_proposition_id = p1.id
	JOIN propositions p2 ON r.to_proposition_id = p2.id`

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]Relationship, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Failed to list relationships")
	}
	defer rows.Close()

	out := []Relationship{}
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.FromID, &r.FromName, &r.ToID, &r.ToName, &r.Type, &r.Source, &r.GroundedIn); err != nil {
			return nil, dbError(err, "Failed to read relationship")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list relationships")
	}
	return out, nil
}

// AddRelationship records an edge. Re-adding an existing edge updates its
// source and grounding.
func (s *Store) AddRelationship(ctx context.Context, fromID, toID, typ, source, groundedIn string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO proposition_relationships
			(from_proposition_id, to_proposition_id, relationship_type, source, grounded_in_insight_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_proposition_id, to_proposition_id, relationship_type) DO UPDATE SET
			source = excluded.source,
			grounded_in_insight_id = excluded.grounded_in_insight_id`,
		fromID, toID, typ, source, nullString(groundedIn), s.timestamp())
	if err != nil {
		return dbError(err, "Failed to save relationship")
	}
	return nil
}

// Relationships returns every edge touching a proposition.
func (s *Store) Relationships(ctx context.Context, id string) ([]Relationship, error) {
	return s.queryRelationships(ctx,
		relationshipColumns+" WHERE r.from_proposition_id = ?1 OR r.to_proposition_id = ?1 ORDER BY r.id", id)
}

// ProjectRelationships returns the edges whose endpoints both belong to the
// project.
func (s *Store) ProjectRelationships(ctx context.Context, project string) ([]Relationship, error) {
	return s.queryRelationships(ctx, relationshipColumns+`
		JOIN project_propositions pp1 ON r.from_proposition_id = pp1.proposition_id AND pp1.project = ?1
		JOIN project_propositions pp2 ON r.to_proposition_id = pp2.proposition_id AND pp2.project = ?1
		ORDER BY r.id`, project)
}

func (s *Store) DeleteRelationship(ctx context.Context, fromID, toID, typ string) error {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM proposition_relationships
		WHERE from_proposition_id = ? AND to_proposition_id = ? AND relationship_type = ?`,
		fromID, toID, typ)
	if err != nil {
		return dbError(err, "Failed to delete relationship")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return failure.New(ErrRelationshipNotFound,
			failure.Message("Relationship not found"),
			failure.Context{"from": fromID, "to": toID, "type": typ},
		)
	}
	return nil
}

type Neighbors struct {
	Propositions  []Proposition
	Relationships []Relationship
}

// Neighbors returns the edges touching ids, restricted to types when given
// and to propositions of project, plus the propositions at the other end
// that are not in ids.
func (s *Store) Neighbors(ctx context.Context, ids, types []string, project string) (Neighbors, error) {
	if len(ids) == 0 {
		return Neighbors{}, nil
	}
	ph := placeholders(len(ids))
	query := relationshipColumns + " WHERE (r.from_proposition_id IN (" + ph + ") OR r.to_proposition_id IN (" + ph + "))"
	args := append(anySlice(ids), anySlice(ids)...)
	if len(types) > 0 {
		query += " AND r.relationship_type IN (" + placeholders(len(types)) + ")"
		args = append(args, anySlice(types)...)
	}
	if project != "" {
		query += `
			AND r.from_proposition_id IN (SELECT proposition_id FROM project_propositions WHERE project = ?)
			AND r.to_proposition_id IN (SELECT proposition_id FROM project_propositions WHERE project = ?)`
		args = append(args, project, project)
	}
	query += " ORDER BY r.id"

	rels, err := s.queryRelationships(ctx, query, args...)
	if err != nil {
		return Neighbors{}, err
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var next []string
	for _, r := range rels {
		for _, id := range []string{r.FromID, r.ToID} {
			if !known[id] {
				known[id] = true
				next = append(next, id)
			}
		}
	}

	props := make([]Proposition, 0, len(next))
	for _, id := range next {
		p, err := s.Proposition(ctx, id)
		if err != nil {
			return Neighbors{}, err
		}
		props = append(props, p)
	}
	return Neighbors{Propositions: props, Relationships: rels}, nil
}
