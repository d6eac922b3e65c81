// Package projectctx manages the per-project _context.md file describing the
// goal, audience and style of a review.
package projectctx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrNoLiteraturePath ErrorCode = "NO_LITERATURE_PATH"
	ErrWrite            ErrorCode = "CONTEXT_WRITE_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const Filename = "_context.md"

const template = `# %s Context

## Goal
[What is this literature review trying to accomplish?]

## Audience
[Who will read/use this work? What's their background?]

## Style
[Writing style, tone, format preferences]

## Key Questions
[Core questions driving the review]

## Notes
[Additional context, constraints, or evolution notes]

---
*Last updated: %s*
`

// Template returns the starter content for a project.
func Template(project string, now time.Time) string {
	return fmt.Sprintf(template, project, now.Format("2006-01-02"))
}

type Context struct {
	Exists   bool    `json:"exists"`
	Context  *string `json:"context"`
	Path     string  `json:"path"`
	Template string  `json:"template,omitempty"`
}

type Store struct {
	cfg *config.Manager
	now func() time.Time
}

func NewStore(cfg *config.Manager) *Store {
	return &Store{cfg: cfg, now: time.Now}
}

func (s *Store) path(project string) (string, error) {
	lit := s.cfg.LiteraturePath()
	if lit == "" {
		return "", failure.New(ErrNoLiteraturePath,
			failure.Message("Literature path not configured. Run litrev_hello to check the setup."),
		)
	}
	if _, err := s.cfg.Config().Project(project); err != nil {
		return "", err
	}
	return filepath.Join(lit, project, Filename), nil
}

// Get reads the context file. A missing file is not an error; the result
// carries a template instead.
func (s *Store) Get(project string) (Context, error) {
	p, err := s.path(project)
	if err != nil {
		return Context{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return Context{Path: p, Template: Template(project, s.now())}, nil
	}
	if err != nil {
		return Context{}, failure.Wrap(err, failure.Message("Failed to read "+Filename))
	}
	text := string(data)
	return Context{Exists: true, Context: &text, Path: p}, nil
}

// Text returns the context markdown, or "" when there is none.
func (s *Store) Text(project string) string {
	c, err := s.Get(project)
	if err != nil || c.Context == nil {
		return ""
	}
	return *c.Context
}

// Update replaces the context file, creating the project folder if needed.
func (s *Store) Update(project, content string) (string, error) {
	p, err := s.path(project)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrWrite), failure.Message(err.Error()))
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrWrite), failure.Message(err.Error()))
	}
	return p, nil
}
