package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

const (
	snippetRadius  = 100
	snippetDefault = 200
	analyzeLimit   = 20
	answerTop      = 5
	compareTop     = 3
)

// withCode attaches code to err unless it already carries one.
func withCode(err error, code ErrorCode) error {
	if failure.CodeOf(err) != nil {
		return err
	}
	return failure.Wrap(err, failure.WithCode(code), failure.Message(err.Error()))
}

type Match struct {
	Filepath         string   `json:"filepath"`
	Project          string   `json:"project"`
	Source           string   `json:"source"`
	Date             string   `json:"date"`
	Topic            string   `json:"topic"`
	OriginalQuery    string   `json:"original_query,omitempty"`
	Content          string   `json:"content"`
	PapersReferenced []string `json:"papers_referenced"`
	RelevanceSnippet string   `json:"relevance_snippet"`
}

type SearchResult struct {
	Query        string  `json:"query"`
	TotalMatches int     `json:"total_matches"`
	Matches      []Match `json:"matches"`
}

// Search matches query case-insensitively against note content, topic and
// original query. An empty project searches every configured project.
func (s *Store) Search(query, project, source string, maxResults int) (SearchResult, error) {
	projects := s.cfg.Config().ProjectCodes()
	if project != "" {
		if _, err := s.cfg.Config().Project(project); err != nil {
			return SearchResult{}, err
		}
		projects = []string{project}
	}

	q := strings.ToLower(query)
	matches := []Match{}
	for _, code := range projects {
		notes, err := s.Load(code)
		if err != nil {
			return SearchResult{}, withCode(err, ErrSearch)
		}
		for _, n := range notes {
			if source != "" && n.Frontmatter.Source != source {
				continue
			}
			lower := strings.ToLower(n.Content)
			if !strings.Contains(lower, q) &&
				!strings.Contains(strings.ToLower(n.Frontmatter.Topic), q) &&
				!strings.Contains(strings.ToLower(n.Frontmatter.Query), q) {
				continue
			}
			matches = append(matches, Match{
				Filepath:         n.Path,
				Project:          code,
				Source:           n.Frontmatter.Source,
				Date:             n.Frontmatter.Date,
				Topic:            n.Frontmatter.Topic,
				OriginalQuery:    n.Frontmatter.Query,
				Content:          n.Content,
				PapersReferenced: lo.Ternary(n.Frontmatter.PapersReferenced == nil, []string{}, n.Frontmatter.PapersReferenced),
				RelevanceSnippet: snippet(lower, q),
			})
		}
	}
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return SearchResult{Query: query, TotalMatches: len(matches), Matches: matches}, nil
}

// snippet returns up to snippetRadius characters on each side of the first
// occurrence of q within its line, or the head of the text.
func snippet(lower, q string) string {
	r := []rune(lower)
	idx := strings.Index(lower, q)
	if q == "" || idx < 0 {
		return string(r[:min(len(r), snippetDefault)])
	}
	start := len([]rune(lower[:idx]))
	end := start + len([]rune(q))
	from := start
	for from > 0 && start-from < snippetRadius && r[from-1] != '\n' {
		from--
	}
	to := end
	for to < len(r) && to-end < snippetRadius && r[to] != '\n' {
		to++
	}
	return string(r[from:to])
}

type SourceRef struct {
	Filepath string `json:"filepath"`
	Source   string `json:"source"`
	Date     string `json:"date"`
	Topic    string `json:"topic"`
}

type Analysis struct {
	Question         string      `json:"question"`
	Mode             string      `json:"mode"`
	InsightsAnalyzed int         `json:"insights_analyzed"`
	Synthesis        string      `json:"synthesis"`
	SourcesUsed      []SourceRef `json:"sources_used"`
	TensionsDetected []string    `json:"tensions_detected"`
	GapsIdentified   []string    `json:"gaps_identified"`
}

// Modes accepted by Analyze.
var Modes = []string{"answer", "compare", "tensions"}

// Analyze builds a plain-text synthesis from the notes matching question.
func (s *Store) Analyze(question, project, mode string) (Analysis, error) {
	res, err := s.Search(question, project, "", analyzeLimit)
	if err != nil {
		return Analysis{}, withCode(err, ErrAnalyze)
	}
	out := Analysis{
		Question:         question,
		Mode:             mode,
		InsightsAnalyzed: len(res.Matches),
		SourcesUsed:      []SourceRef{},
		TensionsDetected: []string{},
		GapsIdentified:   []string{},
	}
	if len(res.Matches) == 0 {
		out.Synthesis = "No relevant insights found for this question."
		return out, nil
	}
	out.SourcesUsed = lo.Map(res.Matches, func(m Match, _ int) SourceRef {
		return SourceRef{Filepath: m.Filepath, Source: m.Source, Date: m.Date, Topic: m.Topic}
	})

	var parts []string
	switch mode {
	case "compare":
		parts = append(parts, fmt.Sprintf("Comparing insights from %d sources:\n", len(res.Matches)))
		order := lo.Uniq(lo.Map(res.Matches, func(m Match, _ int) string { return m.Source }))
		groups := lo.GroupBy(res.Matches, func(m Match) string { return m.Source })
		for _, src := range order {
			group := groups[src]
			parts = append(parts, fmt.Sprintf("\n%s (%d notes):", strings.ToUpper(src), len(group)))
			for _, m := range group[:min(len(group), compareTop)] {
				parts = append(parts, fmt.Sprintf("  - %s (%s)", m.Topic, m.Date))
			}
		}
	case "tensions":
		parts = append(parts, "Analyzing for potential tensions/contradictions:\n")
		for _, m := range res.Matches {
			parts = append(parts, fmt.Sprintf("  - %s: %s (%s)", m.Source, m.Topic, m.Date))
		}
		parts = append(parts, "(Manual review of content needed to detect contradictions)")
	default:
		parts = append(parts, fmt.Sprintf("Based on %d saved insights:\n", len(res.Matches)))
		for i, m := range res.Matches[:min(len(res.Matches), answerTop)] {
			parts = append(parts, fmt.Sprintf("\n%d. From %s (%s):", i+1, m.Source, m.Date))
			parts = append(parts, "   Topic: "+m.Topic)
			if m.OriginalQuery != "" {
				parts = append(parts, "   Original query: "+m.OriginalQuery)
			}
			snip := []rune(m.RelevanceSnippet)
			parts = append(parts, "   Snippet: "+string(snip[:min(len(snip), snippetDefault)])+"...")
		}
	}
	out.Synthesis = strings.Join(parts, "\n")
	return out, nil
}

type Entry struct {
	Filepath         string   `json:"filepath"`
	Filename         string   `json:"filename"`
	Source           string   `json:"source"`
	Date             string   `json:"date"`
	Topic            string   `json:"topic"`
	PapersReferenced []string `json:"papers_referenced"`
}

type Listing struct {
	Project       string         `json:"project"`
	TotalInsights int            `json:"total_insights"`
	Insights      []Entry        `json:"insights"`
	BySource      map[string]int `json:"by_source"`
}

// List returns the notes of a project, newest date first.
func (s *Store) List(project, source string) (Listing, error) {
	if _, err := s.cfg.Config().Project(project); err != nil {
		return Listing{}, err
	}
	notes, err := s.Load(project)
	if err != nil {
		return Listing{}, withCode(err, ErrList)
	}
	entries := []Entry{}
	for _, n := range notes {
		if source != "" && n.Frontmatter.Source != source {
			continue
		}
		entries = append(entries, Entry{
			Filepath:         n.Path,
			Filename:         n.Filename,
			Source:           lo.CoalesceOrEmpty(n.Frontmatter.Source, "unknown"),
			Date:             n.Frontmatter.Date,
			Topic:            n.Frontmatter.Topic,
			PapersReferenced: lo.Ternary(n.Frontmatter.PapersReferenced == nil, []string{}, n.Frontmatter.PapersReferenced),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
	bySource := lo.CountValuesBy(entries, func(e Entry) string { return e.Source })
	return Listing{
		Project:       project,
		TotalInsights: len(entries),
		Insights:      entries,
		BySource:      bySource,
	}, nil
}
