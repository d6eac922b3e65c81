package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/morikuni/failure/v2"
)

type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Project     string `json:"project"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type TopicSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PropositionCount int    `json:"proposition_count"`
	PrimaryCount     int    `json:"primary_count"`
}

type TopicRelationship struct {
	ID          int64  `json:"id"`
	FromTopicID string `json:"from_topic_id"`
	FromName    string `json:"from_name"`
	ToTopicID   string `json:"to_topic_id"`
	ToName      string `json:"to_name"`
	Type        string `json:"relationship_type"`
}

func (s *Store) Topic(ctx context.Context, id string) (Topic, error) {
	var t Topic
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), project, created_at, updated_at
		FROM topics WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.Project, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, failure.New(ErrTopicNotFound,
			failure.Message("Topic not found: "+id),
			failure.Context{"topic_id": id},
		)
	}
	if err != nil {
		return Topic{}, dbError(err, "Failed to read topic")
	}
	return t, nil
}

// UpsertTopic inserts a topic or updates the name and description of an
// existing one. The owning project of an existing topic is kept.
func (s *Store) UpsertTopic(ctx context.Context, id, name, description, project string) (Topic, error) {
	now := s.timestamp()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO topics (id, name, description, project, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		id, name, nullString(description), project, now, now,
	)
	if err != nil {
		return Topic{}, dbError(err, "Failed to save topic")
	}
	return s.Topic(ctx, id)
}

// DeleteTopic removes a topic with its relationships and proposition links.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		for _, stmt := range []string{
			"DELETE FROM topic_relationships WHERE from_topic_id = ?1 OR to_topic_id = ?1",
			"DELETE FROM proposition_topics WHERE topic_id = ?1",
			"DELETE FROM topics WHERE id = ?1",
		} {
			if _, err := tx.q.ExecContext(ctx, stmt, id); err != nil {
				return dbError(err, "Failed to delete topic")
			}
		}
		return nil
	})
}

// ProjectTopics lists the topics of a project by name with their
// proposition counts.
func (s *Store) ProjectTopics(ctx context.Context, project string) ([]TopicSummary, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT t.id, t.name, COALESCE(t.description, ''),
			COUNT(DISTINCT pt.proposition_id),
			COUNT(DISTINCT CASE WHEN pt.is_primary = 1 THEN pt.proposition_id END)
		FROM topics t
		LEFT JOIN proposition_topics pt ON t.id = pt.topic_id
		WHERE t.project = ?
		GROUP BY t.id, t.name, t.description
		ORDER BY t.name`, project)
	if err != nil {
		return nil, dbError(err, "Failed to list topics")
	}
	defer rows.Close()

	out := []TopicSummary{}
	for rows.Next() {
		var t TopicSummary
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.PropositionCount, &t.PrimaryCount); err != nil {
			return nil, dbError(err, "Failed to read topic")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list topics")
	}
	return out, nil
}

func (s *Store) AddTopicRelationship(ctx context.Context, fromID, toID, typ string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO topic_relationships (from_topic_id, to_topic_id, relationship_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (from_topic_id, to_topic_id, relationship_type) DO NOTHING`,
		fromID, toID, typ, s.timestamp(),
	)
	if err != nil {
		return dbError(err, "Failed to save topic relationship")
	}
	return nil
}

// TopicRelationships returns the relationships between topics of a project.
func (s *Store) TopicRelationships(ctx context.Context, project string) ([]TopicRelationship, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT r.id, r.from_topic_id, t1.name, r.to_topic_id, t2.name, r.relationship_type
		FROM topic_relationships r
		JOIN topics t1 ON r.from_topic_id = t1.id
		JOIN topics t2 ON r.to_topic_id = t2.id
		WHERE t1.project = ?
		ORDER BY r.id`, project)
	if err != nil {
		return nil, dbError(err, "Failed to list topic relationships")
	}
	defer rows.Close()

	out := []TopicRelationship{}
	for rows.Next() {
		var r TopicRelationship
		if err := rows.Scan(&r.ID, &r.FromTopicID, &r.FromName, &r.ToTopicID, &r.ToName, &r.Type); err != nil {
			return nil, dbError(err, "Failed to read topic relationship")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list topic relationships")
	}
	return out, nil
}
