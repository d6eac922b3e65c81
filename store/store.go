// Package store persists the argument map in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
	_ "modernc.org/sqlite"
)

type ErrorCode string

const (
	ErrDatabase             ErrorCode = "DATABASE_ERROR"
	ErrTopicNotFound        ErrorCode = "TOPIC_NOT_FOUND"
	ErrPropositionNotFound  ErrorCode = "PROPOSITION_NOT_FOUND"
	ErrRelationshipNotFound ErrorCode = "RELATIONSHIP_NOT_FOUND"
	ErrEvidenceNotFound     ErrorCode = "EVIDENCE_NOT_FOUND"
	ErrConflictNotFound     ErrorCode = "CONFLICT_NOT_FOUND"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Topic relationship types.
var TopicRelationshipTypes = []string{"motivates", "contextualizes", "contrasts_with", "builds_on"}

// Proposition relationship types.
var RelationshipTypes = []string{
	"supports", "contradicts", "extends", "requires", "enables",
	"bridges", "equivalent_to", "refines", "contrasts_with",
}

// Proposition sources.
const (
	SourceInsight     = "insight"
	SourceAIKnowledge = "ai_knowledge"
)

var Sources = []string{SourceInsight, SourceAIKnowledge}

const schema = `
CREATE TABLE IF NOT EXISTS topics (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	project     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	UNIQUE (project, name)
);
CREATE TABLE IF NOT EXISTS topic_relationships (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	from_topic_id     TEXT NOT NULL REFERENCES topics(id),
	to_topic_id       TEXT NOT NULL REFERENCES topics(id),
	relationship_type TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	UNIQUE (from_topic_id, to_topic_id, relationship_type)
);
CREATE TABLE IF NOT EXISTS propositions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	definition TEXT,
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS proposition_aliases (
	proposition_id TEXT NOT NULL REFERENCES propositions(id),
	alias          TEXT NOT NULL,
	PRIMARY KEY (proposition_id, alias)
);
CREATE TABLE IF NOT EXISTS project_propositions (
	project        TEXT NOT NULL,
	proposition_id TEXT NOT NULL REFERENCES propositions(id),
	added_at       TEXT NOT NULL,
	PRIMARY KEY (project, proposition_id)
);
CREATE TABLE IF NOT EXISTS proposition_relationships (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	from_proposition_id    TEXT NOT NULL REFERENCES propositions(id),
	to_proposition_id      TEXT NOT NULL REFERENCES propositions(id),
	relationship_type      TEXT NOT NULL,
	source                 TEXT NOT NULL,
	grounded_in_insight_id TEXT,
	created_at             TEXT NOT NULL,
	UNIQUE (from_proposition_id, to_proposition_id, relationship_type)
);
CREATE TABLE IF NOT EXISTS proposition_topics (
	proposition_id TEXT NOT NULL REFERENCES propositions(id),
	topic_id       TEXT NOT NULL REFERENCES topics(id),
	is_primary     INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	PRIMARY KEY (proposition_id, topic_id)
);
CREATE TABLE IF NOT EXISTS proposition_evidence (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	proposition_id TEXT NOT NULL REFERENCES propositions(id),
	project        TEXT NOT NULL,
	insight_id     TEXT NOT NULL,
	claim          TEXT NOT NULL,
	pages          TEXT,
	contested_by   TEXT,
	created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS proposition_conflicts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	proposition_id  TEXT NOT NULL REFERENCES propositions(id),
	project         TEXT NOT NULL,
	ai_claim        TEXT NOT NULL,
	evidence_claim  TEXT NOT NULL,
	insight_id      TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'unresolved',
	resolution_note TEXT,
	created_at      TEXT NOT NULL,
	resolved_at     TEXT
);
CREATE TABLE IF NOT EXISTS proposition_embeddings (
	proposition_id TEXT PRIMARY KEY REFERENCES propositions(id),
	embedding      BLOB NOT NULL,
	embedded_text  TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_topics_project ON topics(project);
CREATE INDEX IF NOT EXISTS idx_project_propositions_project ON project_propositions(project);
CREATE INDEX IF NOT EXISTS idx_proposition_relationships_from ON proposition_relationships(from_proposition_id);
CREATE INDEX IF NOT EXISTS idx_proposition_relationships_to ON proposition_relationships(to_proposition_id);
CREATE INDEX IF NOT EXISTS idx_proposition_topics_topic ON proposition_topics(topic_id);
CREATE INDEX IF NOT EXISTS idx_proposition_evidence_proposition ON proposition_evidence(proposition_id);
CREATE INDEX IF NOT EXISTS idx_proposition_conflicts_project ON proposition_conflicts(project);
`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is safe for concurrent use. Inside WithTx the Store passed to the
// callback runs every statement in one transaction.
type Store struct {
	db  *sql.DB
	q   queryer
	now func() time.Time
}

// Open creates the database file and its parent directory if needed and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, dbError(err, "Failed to create database directory")
	}
	// Pragmas go in the DSN so they apply to every pooled connection.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbError(err, "Failed to open database")
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, dbError(err, "Failed to initialize schema")
	}
	return &Store{db: db, q: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbError(err, "Database not reachable")
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back when it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(err, "Failed to begin transaction")
	}
	if err := fn(&Store{db: s.db, q: tx, now: s.now}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError(err, "Failed to commit transaction")
	}
	return nil
}

const timeLayout = "2006-01-02 15:04:05.000000"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func dbError(err error, msg string) error {
	return failure.Wrap(err, failure.WithCode(ErrDatabase), failure.Message(msg+": "+err.Error()))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// EncodeVector packs a vector as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
