package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/morikuni/failure/v2"
)

type Proposition struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
	Source     string `json:"source"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// ProjectProposition is a proposition linked to a project with the number
// of evidence rows recorded for it in that project.
type ProjectProposition struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Definition    string `json:"definition"`
	Source        string `json:"source"`
	EvidenceCount int    `json:"evidence_count"`
}

// Grounded reports whether the proposition came from an insight or has
// evidence.
func (p ProjectProposition) Grounded() bool {
	return p.Source == SourceInsight || p.EvidenceCount > 0
}

type PropositionTopic struct {
	TopicID     string `json:"topic_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrimary   bool   `json:"is_primary"`
}

func propositionNotFound(id string) error {
	return failure.New(ErrPropositionNotFound,
		failure.Message("Proposition '"+id+"' not found"),
		failure.Context{"proposition_id": id},
	)
}

func (s *Store) Proposition(ctx context.Context, id string) (Proposition, error) {
	var p Proposition
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(definition, ''), source, created_at, updated_at
		FROM propositions WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Definition, &p.Source, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposition{}, propositionNotFound(id)
	}
	if err != nil {
		return Proposition{}, dbError(err, "Failed to read proposition")
	}
	return p, nil
}

func (s *Store) PropositionExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM propositions WHERE id = ?", id).Scan(&n); err != nil {
		return false, dbError(err, "Failed to read proposition")
	}
	return n > 0, nil
}

// UpsertProposition inserts or updates a proposition and reports whether it
// was newly created.
func (s *Store) UpsertProposition(ctx context.Context, id, name, definition, source string) (bool, error) {
	exists, err := s.PropositionExists(ctx, id)
	if err != nil {
		return false, err
	}
	now := s.timestamp()
	if exists {
		_, err = s.q.ExecContext(ctx, `
			UPDATE propositions SET name = ?, definition = ?, source = ?, updated_at = ?
			WHERE id = ?`, name, nullString(definition), source, now, id)
	} else {
		_, err = s.q.ExecContext(ctx, `
			INSERT INTO propositions (id, name, definition, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, id, name, nullString(definition), source, now, now)
	}
	if err != nil {
		return false, dbError(err, "Failed to save proposition")
	}
	return !exists, nil
}

// ProjectPropositions lists the propositions linked to a project by name.
// An empty source returns every source.
func (s *Store) ProjectPropositions(ctx context.Context, project, source string) ([]ProjectProposition, error) {
	query := `
		SELECT p.id, p.name, COALESCE(p.definition, ''), p.source, COUNT(DISTINCT e.id)
		FROM propositions p
		JOIN project_propositions pp ON p.id = pp.proposition_id
		LEFT JOIN proposition_evidence e ON p.id = e.proposition_id AND e.project = pp.project
		WHERE pp.project = ?`
	args := []any{project}
	if source != "" {
		query += " AND p.source = ?"
		args = append(args, source)
	}
	query += " GROUP BY p.id, p.name, p.definition, p.source ORDER BY p.name"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Failed to list propositions")
	}
	defer rows.Close()

	out := []ProjectProposition{}
	for rows.Next() {
		var p ProjectProposition
		if err := rows.Scan(&p.ID, &p.Name, &p.Definition, &p.Source, &p.EvidenceCount); err != nil {
			return nil, dbError(err, "Failed to read proposition")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list propositions")
	}
	return out, nil
}

func (s *Store) InProject(ctx context.Context, project, id string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM project_propositions WHERE project = ? AND proposition_id = ?", project, id,
	).Scan(&n)
	if err != nil {
		return false, dbError(err, "Failed to read project link")
	}
	return n > 0, nil
}

func (s *Store) LinkProject(ctx context.Context, project, id string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO project_propositions (project, proposition_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT (project, proposition_id) DO NOTHING`, project, id, s.timestamp())
	if err != nil {
		return dbError(err, "Failed to link proposition to project")
	}
	return nil
}

// UnlinkProject removes a proposition from a project. The proposition and
// its relationships stay in the global library.
func (s *Store) UnlinkProject(ctx context.Context, project, id string) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM project_propositions WHERE project = ? AND proposition_id = ?", project, id)
	if err != nil {
		return dbError(err, "Failed to unlink proposition")
	}
	return nil
}

func (s *Store) LinkTopic(ctx context.Context, propositionID, topicID string, primary bool) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO proposition_topics (proposition_id, topic_id, is_primary, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (proposition_id, topic_id) DO UPDATE SET is_primary = excluded.is_primary`,
		propositionID, topicID, primary, s.timestamp())
	if err != nil {
		return dbError(err, "Failed to link proposition to topic")
	}
	return nil
}

// PropositionTopics returns the topics of a proposition, primary first.
func (s *Store) PropositionTopics(ctx context.Context, id string) ([]PropositionTopic, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT pt.topic_id, t.name, COALESCE(t.description, ''), pt.is_primary
		FROM proposition_topics pt
		JOIN topics t ON pt.topic_id = t.id
		WHERE pt.proposition_id = ?
		ORDER BY pt.is_primary DESC, t.name`, id)
	if err != nil {
		return nil, dbError(err, "Failed to list proposition topics")
	}
	defer rows.Close()

	out := []PropositionTopic{}
	for rows.Next() {
		var t PropositionTopic
		if err := rows.Scan(&t.TopicID, &t.Name, &t.Description, &t.IsPrimary); err != nil {
			return nil, dbError(err, "Failed to read proposition topic")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list proposition topics")
	}
	return out, nil
}

func (s *Store) AddAlias(ctx context.Context, id, alias string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO proposition_aliases (proposition_id, alias) VALUES (?, ?)", id, alias)
	if err != nil {
		return dbError(err, "Failed to save alias")
	}
	return nil
}

func (s *Store) Aliases(ctx context.Context, id string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT alias FROM proposition_aliases WHERE proposition_id = ? ORDER BY alias", id)
	if err != nil {
		return nil, dbError(err, "Failed to list aliases")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, dbError(err, "Failed to read alias")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list aliases")
	}
	return out, nil
}
