// Package workflow keeps the review audit trail: gap, pivot, search and
// session markdown files in each project folder.
package workflow

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrNoDrivePath ErrorCode = "NO_DRIVE_PATH"
	ErrSave        ErrorCode = "SAVE_FAILED"
	ErrQuery       ErrorCode = "QUERY_FAILED"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	WorkflowFile = "_workflow.md"
	GapsFile     = "_gaps.md"
	PivotsFile   = "_pivots.md"
	SearchesFile = "_searches.md"
)

// GapStatuses are the accepted gap states.
var GapStatuses = []string{"searched", "partially_found", "not_found"}

//go:embed templates/*.md
var templates embed.FS

var templateFor = map[string]string{
	WorkflowFile: "templates/workflow.md",
	GapsFile:     "templates/gaps.md",
	PivotsFile:   "templates/pivots.md",
	SearchesFile: "templates/searches.md",
}

type Store struct {
	cfg *config.Manager
	now func() time.Time
}

func NewStore(cfg *config.Manager) *Store {
	return &Store{cfg: cfg, now: time.Now}
}

func (s *Store) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Store) projectDir(project string) (string, error) {
	if _, err := s.cfg.Config().Project(project); err != nil {
		return "", err
	}
	lit := s.cfg.LiteraturePath()
	if lit == "" {
		return "", failure.New(ErrNoDrivePath, failure.Message("Google Drive path not found"))
	}
	return filepath.Join(lit, project), nil
}

// appendEntry appends entry to name in the project folder, creating the
// file from its template first.
func (s *Store) appendEntry(project, name, entry string) (string, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}
	path := filepath.Join(dir, name)

	current, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if s.cfg.Config().Workflow.AutoGenerateTemplates {
			current, err = templates.ReadFile(templateFor[name])
			if err != nil {
				return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
			}
		}
	case err != nil:
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}

	if err := os.WriteFile(path, append(current, entry...), 0o644); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}
	return path, nil
}

type GapInput struct {
	Project        string
	Topic          string
	WhyMatters     string
	SearchStrategy string
	Status         string
}

type Gap struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
	File   string `json:"file"`
}

func (s *Store) SaveGap(in GapInput) (Gap, error) {
	if in.Status == "" {
		in.Status = "searched"
	}
	today := s.today()
	entry := fmt.Sprintf(`
### Gap: %s
- **Status**: %s
- **Why it matters**: %s
- **Search strategy**: %s
- **Date opened**: %s
- **Last updated**: %s

---

`, in.Topic, in.Status, in.WhyMatters, in.SearchStrategy, today, today)

	path, err := s.appendEntry(in.Project, GapsFile, entry)
	if err != nil {
		return Gap{}, err
	}
	return Gap{Topic: in.Topic, Status: in.Status, File: path}, nil
}

type SessionInput struct {
	Project   string
	Status    string
	Completed []string
	Pivots    []string
	Questions []string
	NextSteps []string
	Blocked   string
}

type Session struct {
	Date           string `json:"date"`
	Status         string `json:"status"`
	CompletedCount int    `json:"completed_count"`
}

func (s *Store) SaveSessionLog(in SessionInput) (Session, error) {
	today := s.today()
	var b strings.Builder
	fmt.Fprintf(&b, "\n### Session %s\n**Status**: %s\n\n**Completed**:\n", today, in.Status)
	for _, item := range in.Completed {
		fmt.Fprintf(&b, "- ✓ %s\n", item)
	}
	if len(in.Pivots) > 0 {
		b.WriteString("\n**Conceptual shifts documented**:\n")
		for _, p := range in.Pivots {
			fmt.Fprintf(&b, "- **PIVOT**: %s\n", p)
		}
	}
	if len(in.Questions) > 0 {
		b.WriteString("\n**Active questions**:\n")
		for _, q := range in.Questions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	if len(in.NextSteps) > 0 {
		b.WriteString("\n**Next steps**:\n")
		for _, step := range in.NextSteps {
			fmt.Fprintf(&b, "- [ ] %s\n", step)
		}
	}
	if in.Blocked != "" {
		fmt.Fprintf(&b, "\n**Blocked**: %s\n", in.Blocked)
	}
	b.WriteString("\n---\n")

	if _, err := s.appendEntry(in.Project, WorkflowFile, b.String()); err != nil {
		return Session{}, err
	}
	return Session{Date: today, Status: in.Status, CompletedCount: len(in.Completed)}, nil
}

type PivotInput struct {
	Project   string
	Topic     string
	Before    string
	After     string
	Rationale string
	Source    string
	Impact    string
}

type Pivot struct {
	Topic string `json:"topic"`
	Date  string `json:"date"`
	File  string `json:"file"`
}

func (s *Store) SavePivot(in PivotInput) (Pivot, error) {
	today := s.today()
	var b strings.Builder
	fmt.Fprintf(&b, "\n### Pivot: %s\n**Date**: %s\n\n", in.Topic, today)
	fmt.Fprintf(&b, "**What we thought before**: %s\n\n", in.Before)
	fmt.Fprintf(&b, "**What we learned**: %s\n\n", in.After)
	fmt.Fprintf(&b, "**Rationale for change**: %s\n", in.Rationale)
	if in.Source != "" {
		fmt.Fprintf(&b, "- Source: %s\n", in.Source)
	}
	if in.Impact != "" {
		fmt.Fprintf(&b, "- Impact on manuscript: %s\n", in.Impact)
	}
	b.WriteString("\n---\n")

	path, err := s.appendEntry(in.Project, PivotsFile, b.String())
	if err != nil {
		return Pivot{}, err
	}
	return Pivot{Topic: in.Topic, Date: today, File: path}, nil
}

type Query struct {
	Query    string `json:"query" mapstructure:"query" validate:"required"`
	Database string `json:"database,omitempty" mapstructure:"database"`
	Result   string `json:"result" mapstructure:"result" validate:"required"`
}

type SearchInput struct {
	Project    string
	Goal       string
	Queries    []Query
	Conclusion string
}

type Search struct {
	Goal       string `json:"goal"`
	Date       string `json:"date"`
	QueryCount int    `json:"query_count"`
}

func (s *Store) SaveSearchStrategy(in SearchInput) (Search, error) {
	today := s.today()
	var b strings.Builder
	fmt.Fprintf(&b, "\n### Search: %s\n**Date**: %s\n\n", in.Goal, today)
	for i, q := range in.Queries {
		db := q.Database
		if db == "" {
			db = "Not specified"
		}
		fmt.Fprintf(&b, "**Query %d**: %s\n- Database: %s\n- Result: %s\n\n", i+1, q.Query, db, q.Result)
	}
	fmt.Fprintf(&b, "**Conclusion**: %s\n\n---\n", in.Conclusion)

	if _, err := s.appendEntry(in.Project, SearchesFile, b.String()); err != nil {
		return Search{}, err
	}
	return Search{Goal: in.Goal, Date: today, QueryCount: len(in.Queries)}, nil
}
