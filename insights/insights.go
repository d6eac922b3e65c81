// Package insights stores synthesized findings as markdown notes with YAML
// frontmatter under Literature/{project}/_notes.
package insights

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"go.yaml.in/yaml/v3"
)

type ErrorCode string

const (
	ErrInvalidSource ErrorCode = "INVALID_SOURCE"
	ErrSave          ErrorCode = "SAVE_ERROR"
	ErrSearch        ErrorCode = "SEARCH_ERROR"
	ErrAnalyze       ErrorCode = "ANALYZE_ERROR"
	ErrList          ErrorCode = "LIST_ERROR"
	ErrNotFound      ErrorCode = "INSIGHT_NOT_FOUND"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Sources are the accepted values of the source frontmatter field.
var Sources = []string{"consensus", "notebooklm", "synthesis", "reading_notes"}

const (
	notesDir    = "_notes"
	dateLayout  = "2006-01-02"
	frontDelim  = "---\n"
	maxSlugSize = 50
)

type Frontmatter struct {
	Date             string   `yaml:"date"`
	Source           string   `yaml:"source"`
	Topic            string   `yaml:"topic"`
	Query            string   `yaml:"query,omitempty"`
	PapersReferenced []string `yaml:"papers_referenced,omitempty"`
}

type Insight struct {
	Path        string
	Filename    string
	Project     string
	Frontmatter Frontmatter
	Content     string
}

var (
	slugStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}-]`)
	slugSpace = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Slug turns a topic into a filename component.
func Slug(topic string) string {
	s := slugStrip.ReplaceAllString(topic, "")
	s = slugSpace.ReplaceAllString(s, "_")
	s = strings.ToLower(s)
	if r := []rune(s); len(r) > maxSlugSize {
		s = string(r[:maxSlugSize])
	}
	return s
}

// Format renders frontmatter and body as a note file.
func Format(fm Frontmatter, content string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontDelim)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(frontDelim)
	buf.WriteString("\n")
	buf.WriteString(content)
	return buf.Bytes(), nil
}

// Parse splits a note into frontmatter and body. Files without a leading
// "---" line are all body.
func Parse(data []byte) (Frontmatter, string, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontDelim) {
		return Frontmatter{}, text, nil
	}
	parts := strings.SplitN(text, frontDelim, 3)
	if len(parts) < 3 {
		return Frontmatter{}, text, nil
	}
	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return Frontmatter{}, "", err
	}
	return fm, strings.TrimSpace(parts[2]), nil
}

type Store struct {
	cfg *config.Manager
	now func() time.Time
}

func NewStore(cfg *config.Manager) *Store {
	return &Store{cfg: cfg, now: time.Now}
}

// NotesPath returns the _notes folder of a project.
func (s *Store) NotesPath(project string) (string, error) {
	dir, err := s.cfg.ProjectPath(project)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, notesDir), nil
}

type SaveInput struct {
	Project          string
	Source           string
	Topic            string
	Content          string
	Query            string
	PapersReferenced []string
}

// Save writes a new note and returns its path. A note saved twice on the
// same day with the same topic overwrites the first one.
func (s *Store) Save(in SaveInput) (string, error) {
	if _, err := s.cfg.Config().Project(in.Project); err != nil {
		return "", err
	}
	if !lo.Contains(Sources, in.Source) {
		return "", failure.New(ErrInvalidSource,
			failure.Message("Source must be one of: "+strings.Join(Sources, ", ")),
			failure.Context{"source": in.Source},
		)
	}
	dir, err := s.NotesPath(in.Project)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}

	date := s.now().Format(dateLayout)
	fm := Frontmatter{
		Date:             date,
		Source:           in.Source,
		Topic:            in.Topic,
		Query:            in.Query,
		PapersReferenced: in.PapersReferenced,
	}
	data, err := Format(fm, in.Content)
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.md", date, in.Source, Slug(in.Topic)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrSave), failure.Message(err.Error()))
	}
	return path, nil
}

// Load reads every note of a project, newest filename first. A missing
// folder yields no notes. Unparseable files are skipped.
func (s *Store) Load(project string) ([]Insight, error) {
	dir, err := s.NotesPath(project)
	if err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, failure.Wrap(err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	out := make([]Insight, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		fm, body, err := Parse(data)
		if err != nil {
			continue
		}
		out = append(out, Insight{
			Path:        p,
			Filename:    filepath.Base(p),
			Project:     project,
			Frontmatter: fm,
			Content:     body,
		})
	}
	return out, nil
}

// Find returns the first note of a project whose filename contains id.
func (s *Store) Find(project, id string) (Insight, error) {
	all, err := s.Load(project)
	if err != nil {
		return Insight{}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Filename < all[j].Filename })
	for _, in := range all {
		if strings.Contains(strings.TrimSuffix(in.Filename, ".md"), id) {
			return in, nil
		}
	}
	return Insight{}, failure.New(ErrNotFound,
		failure.Message(fmt.Sprintf("Insight file not found for ID: %s", id)),
		failure.Context{"project": project, "insight_id": id},
	)
}
