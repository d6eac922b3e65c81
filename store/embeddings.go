package store

import (
	"context"
)

type Embedding struct {
	PropositionID string
	Vector        []float32
	Text          string
}

type EmbeddingStatus struct {
	TotalPropositions int `json:"total_propositions"`
	Embedded          int `json:"embedded"`
	NotEmbedded       int `json:"not_embedded"`
	Stale             int `json:"stale"`
}

// EmbeddingText is the text embedded for a proposition.
func EmbeddingText(name, definition string) string {
	if definition == "" {
		return name
	}
	return name + ": " + definition
}

func (s *Store) UpsertEmbedding(ctx context.Context, e Embedding) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO proposition_embeddings (proposition_id, embedding, embedded_text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (proposition_id) DO UPDATE SET
			embedding = excluded.embedding,
			embedded_text = excluded.embedded_text,
			updated_at = excluded.updated_at`,
		e.PropositionID, EncodeVector(e.Vector), e.Text, s.timestamp())
	if err != nil {
		return dbError(err, "Failed to save embedding")
	}
	return nil
}

// ProjectEmbeddings returns the stored embeddings of a project's
// propositions.
func (s *Store) ProjectEmbeddings(ctx context.Context, project string) ([]Embedding, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT pe.proposition_id, pe.embedding, pe.embedded_text
		FROM proposition_embeddings pe
		JOIN project_propositions pp ON pe.proposition_id = pp.proposition_id
		WHERE pp.project = ?
		ORDER BY pe.proposition_id`, project)
	if err != nil {
		return nil, dbError(err, "Failed to list embeddings")
	}
	defer rows.Close()

	out := []Embedding{}
	for rows.Next() {
		var (
			e    Embedding
			blob []byte
		)
		if err := rows.Scan(&e.PropositionID, &blob, &e.Text); err != nil {
			return nil, dbError(err, "Failed to read embedding")
		}
		e.Vector = DecodeVector(blob)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list embeddings")
	}
	return out, nil
}

// EmbeddingStatus counts embedded and stale propositions of a project. An
// embedding is stale when its text no longer matches the proposition.
func (s *Store) EmbeddingStatus(ctx context.Context, project string) (EmbeddingStatus, error) {
	props, err := s.ProjectPropositions(ctx, project, "")
	if err != nil {
		return EmbeddingStatus{}, err
	}
	embs, err := s.ProjectEmbeddings(ctx, project)
	if err != nil {
		return EmbeddingStatus{}, err
	}
	texts := make(map[string]string, len(embs))
	for _, e := range embs {
		texts[e.PropositionID] = e.Text
	}
	st := EmbeddingStatus{TotalPropositions: len(props), Embedded: len(embs)}
	for _, p := range props {
		if text, ok := texts[p.ID]; ok && text != EmbeddingText(p.Name, p.Definition) {
			st.Stale++
		}
	}
	st.NotEmbedded = st.TotalPropositions - st.Embedded
	return st, nil
}
