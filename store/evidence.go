package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/morikuni/failure/v2"
)

type Evidence struct {
	ID            int64  `json:"id"`
	PropositionID string `json:"proposition_id"`
	Project       string `json:"project"`
	InsightID     string `json:"insight_id"`
	Claim         string `json:"claim"`
	Pages         string `json:"pages,omitempty"`
	ContestedBy   string `json:"contested_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type NewEvidence struct {
	PropositionID string
	Project       string
	InsightID     string
	Claim         string
	Pages         string
	ContestedBy   string
}

func (s *Store) AddEvidence(ctx context.Context, e NewEvidence) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO proposition_evidence
			(proposition_id, project, insight_id, claim, pages, contested_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.PropositionID, e.Project, e.InsightID, e.Claim, nullString(e.Pages), nullString(e.ContestedBy), s.timestamp())
	if err != nil {
		return 0, dbError(err, "Failed to save evidence")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbError(err, "Failed to save evidence")
	}
	return id, nil
}

const evidenceColumns = `
	SELECT id, proposition_id, project, insight_id, claim,
		COALESCE(pages, ''), COALESCE(contested_by, ''), created_at
	FROM proposition_evidence`

func scanEvidence(sc interface{ Scan(...any) error }) (Evidence, error) {
	var e Evidence
	err := sc.Scan(&e.ID, &e.PropositionID, &e.Project, &e.InsightID, &e.Claim, &e.Pages, &e.ContestedBy, &e.CreatedAt)
	return e, err
}

// EvidenceFor returns the evidence of a proposition, newest first. An empty
// project returns evidence from every project.
func (s *Store) EvidenceFor(ctx context.Context, propositionID, project string) ([]Evidence, error) {
	query := evidenceColumns + " WHERE proposition_id = ?"
	args := []any{propositionID}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Failed to list evidence")
	}
	defer rows.Close()

	out := []Evidence{}
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, dbError(err, "Failed to read evidence")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list evidence")
	}
	return out, nil
}

func (s *Store) EvidenceByID(ctx context.Context, id int64) (Evidence, error) {
	e, err := scanEvidence(s.q.QueryRowContext(ctx, evidenceColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Evidence{}, failure.New(ErrEvidenceNotFound,
			failure.Message("Evidence entry with id="+strconv.FormatInt(id, 10)+" not found"),
		)
	}
	if err != nil {
		return Evidence{}, dbError(err, "Failed to read evidence")
	}
	return e, nil
}

func (s *Store) DeleteEvidence(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM proposition_evidence WHERE id = ?", id); err != nil {
		return dbError(err, "Failed to delete evidence")
	}
	return nil
}

type Conflict struct {
	ID              int64  `json:"id"`
	PropositionName string `json:"proposition_name"`
	PropositionID   string `json:"proposition_id"`
	Project         string `json:"project"`
	AIClaim         string `json:"ai_claim"`
	EvidenceClaim   string `json:"evidence_claim"`
	InsightID       string `json:"insight_id"`
	Status          string `json:"status"`
	ResolutionNote  string `json:"resolution_note,omitempty"`
	CreatedAt       string `json:"created_at"`
	ResolvedAt      string `json:"resolved_at,omitempty"`
}

const ConflictUnresolved = "unresolved"

// Resolutions accepted by ResolveConflict.
var Resolutions = []string{"ai_correct", "evidence_correct", "both_valid"}

type NewConflict struct {
	PropositionID string
	Project       string
	AIClaim       string
	EvidenceClaim string
	InsightID     string
}

func (s *Store) AddConflict(ctx context.Context, c NewConflict) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO proposition_conflicts
			(proposition_id, project, ai_claim, evidence_claim, insight_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.PropositionID, c.Project, c.AIClaim, c.EvidenceClaim, c.InsightID, ConflictUnresolved, s.timestamp())
	if err != nil {
		return 0, dbError(err, "Failed to save conflict")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbError(err, "Failed to save conflict")
	}
	return id, nil
}

const conflictColumns = `
	SELECT c.id, p.name, c.proposition_id, c.project, c.ai_claim, c.evidence_claim, c.insight_id,
		c.status, COALESCE(c.resolution_note, ''), c.created_at, COALESCE(c.resolved_at, '')
	FROM proposition_conflicts c
	JOIN propositions p ON c.proposition_id = p.id`

func scanConflict(sc interface{ Scan(...any) error }) (Conflict, error) {
	var c Conflict
	err := sc.Scan(&c.ID, &c.PropositionName, &c.PropositionID, &c.Project, &c.AIClaim, &c.EvidenceClaim,
		&c.InsightID, &c.Status, &c.ResolutionNote, &c.CreatedAt, &c.ResolvedAt)
	return c, err
}

// Conflicts lists the conflicts of a project, newest first. The status
// "all" disables the status filter.
func (s *Store) Conflicts(ctx context.Context, project, status string) ([]Conflict, error) {
	query := conflictColumns + " WHERE c.project = ?"
	args := []any{project}
	if status != "all" {
		query += " AND c.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Failed to list conflicts")
	}
	defer rows.Close()

	out := []Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, dbError(err, "Failed to read conflict")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Failed to list conflicts")
	}
	return out, nil
}

func (s *Store) Conflict(ctx context.Context, id int64) (Conflict, error) {
	c, err := scanConflict(s.q.QueryRowContext(ctx, conflictColumns+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Conflict{}, failure.New(ErrConflictNotFound,
			failure.Message("Conflict "+strconv.FormatInt(id, 10)+" not found"),
		)
	}
	if err != nil {
		return Conflict{}, dbError(err, "Failed to read conflict")
	}
	return c, nil
}

func (s *Store) ResolveConflict(ctx context.Context, id int64, resolution, note string) (Conflict, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE proposition_conflicts SET status = ?, resolution_note = ?, resolved_at = ?
		WHERE id = ?`, resolution, nullString(note), s.timestamp(), id)
	if err != nil {
		return Conflict{}, dbError(err, "Failed to resolve conflict")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Conflict{}, failure.New(ErrConflictNotFound,
			failure.Message("Conflict "+strconv.FormatInt(id, 10)+" not found"),
		)
	}
	return s.Conflict(ctx, id)
}
