package insights

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Projects = map[string]config.Project{
		"MEAS": {Name: "Measurement"},
		"EDU":  {Name: "Education"},
	}
	s := NewStore(config.NewManager(t.TempDir(), cfg))
	s.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Regression to the Mean", "regression_to_the_mean"},
		{"What's next? (part 2)", "whats_next_part_2"},
		{"multi   space", "multi_space"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"学习动机", "学习动机"},
		{"Café culture", "café_culture"},
		{"Мотивация учащихся!", "мотивация_учащихся"},
		{"動機　理論", "動機_理論"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	data := []byte("---\ndate: 2024-01-02\nsource: consensus\ntopic: Attrition\npapers_referenced:\n- smith_2020\n---\n\n  Body text.\n")
	fm, body, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Frontmatter{Date: "2024-01-02", Source: "consensus", Topic: "Attrition", PapersReferenced: []string{"smith_2020"}}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("frontmatter mismatch (-want +got):\n%s", diff)
	}
	if body != "Body text." {
		t.Errorf("body = %q", body)
	}

	fm, body, err = Parse([]byte("plain note"))
	if err != nil || fm.Source != "" || body != "plain note" {
		t.Errorf("Parse(plain) = %+v, %q, %v", fm, body, err)
	}
}

func TestSave(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Save(SaveInput{
		Project: "MEAS",
		Source:  "synthesis",
		Topic:   "Regression to the mean",
		Content: "Scores drift toward the mean.",
		Query:   "regression effects",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got, want := filepath.Base(path), "2024-03-05_synthesis_regression_to_the_mean.md"; got != want {
		t.Errorf("filename = %q, want %q", got, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\ndate:") {
		t.Errorf("file does not start with frontmatter:\n%s", text)
	}
	if strings.Contains(text, "papers_referenced") {
		t.Errorf("empty papers_referenced should be omitted:\n%s", text)
	}
	if !strings.HasSuffix(text, "---\n\nScores drift toward the mean.") {
		t.Errorf("unexpected body layout:\n%s", text)
	}
	if strings.Index(text, "source:") > strings.Index(text, "topic:") {
		t.Errorf("source must precede topic:\n%s", text)
	}

	fm, _, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Date != "2024-03-05" || fm.Query != "regression effects" {
		t.Errorf("round trip frontmatter = %+v", fm)
	}
}

func TestSave_NonASCIITopics(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Save(SaveInput{Project: "MEAS", Source: "synthesis", Topic: "学习动机", Content: "first"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := s.Save(SaveInput{Project: "MEAS", Source: "synthesis", Topic: "动机理论", Content: "second"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first == second {
		t.Fatalf("distinct topics saved to the same file %q", first)
	}
	if got, want := filepath.Base(first), "2024-03-05_synthesis_学习动机.md"; got != want {
		t.Errorf("filename = %q, want %q", got, want)
	}
	for path, want := range map[string]string{first: "first", second: "second"} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(strings.TrimSpace(string(data)), want) {
			t.Errorf("%s body = %q, want %q", filepath.Base(path), data, want)
		}
	}
}

func TestSaveErrors(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		name string
		in   SaveInput
		code ErrorCode
	}{
		{"bad source", SaveInput{Project: "MEAS", Source: "twitter", Topic: "x"}, ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Save(tt.in); !failure.Is(err, tt.code) {
				t.Errorf("Save() error = %v, want %s", err, tt.code)
			}
		})
	}

	if _, err := s.Save(SaveInput{Project: "NOPE", Source: "synthesis"}); !failure.Is(err, config.ErrProjectNotFound) {
		t.Errorf("unknown project error = %v", err)
	}

	noDrive := NewStore(config.NewManager("", s.cfg.Config()))
	if _, err := noDrive.Save(SaveInput{Project: "MEAS", Source: "synthesis", Topic: "x"}); !failure.Is(err, config.ErrDriveNotFound) {
		t.Errorf("missing drive error = %v", err)
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	days := []struct {
		date string
		in   SaveInput
	}{
		{"2024-01-10", SaveInput{Project: "MEAS", Source: "consensus", Topic: "Attrition bias", Content: "Dropout was 30 percent.\nAttrition differs by arm.", PapersReferenced: []string{"lee_2019"}}},
		{"2024-02-01", SaveInput{Project: "MEAS", Source: "notebooklm", Topic: "Ceiling effects", Content: "Tests saturate at the top."}},
		{"2024-02-15", SaveInput{Project: "MEAS", Source: "consensus", Topic: "Floor effects", Content: "Low scorers cluster.", Query: "attrition and floors"}},
		{"2024-02-20", SaveInput{Project: "EDU", Source: "synthesis", Topic: "Teacher attrition", Content: "Teachers leave early."}},
	}
	for _, d := range days {
		date, _ := time.Parse(dateLayout, d.date)
		s.now = func() time.Time { return date }
		if _, err := s.Save(d.in); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	res, err := s.Search("ATTRITION", "", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	topics := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		topics = append(topics, m.Topic)
	}
	want := []string{"Teacher attrition", "Floor effects", "Attrition bias"}
	if diff := cmp.Diff(want, topics); diff != "" {
		t.Errorf("matched topics (-want +got):\n%s", diff)
	}
	if res.TotalMatches != 3 {
		t.Errorf("TotalMatches = %d", res.TotalMatches)
	}
	bias := res.Matches[2]
	if bias.RelevanceSnippet != "attrition differs by arm." {
		t.Errorf("snippet = %q", bias.RelevanceSnippet)
	}
	floor := res.Matches[1]
	if floor.RelevanceSnippet != "low scorers cluster." {
		t.Errorf("fallback snippet = %q", floor.RelevanceSnippet)
	}

	res, err = s.Search("attrition", "MEAS", "consensus", 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalMatches != 1 || res.Matches[0].Project != "MEAS" {
		t.Errorf("filtered search = %+v", res)
	}

	if _, err := s.Search("x", "NOPE", "", 10); !failure.Is(err, config.ErrProjectNotFound) {
		t.Errorf("unknown project error = %v", err)
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("x", 150) + "needle" + strings.Repeat("y", 150)
	got := snippet(long, "needle")
	if want := strings.Repeat("x", 100) + "needle" + strings.Repeat("y", 100); got != want {
		t.Errorf("snippet length = %d, want %d", len(got), len(want))
	}
	if got := snippet(strings.Repeat("z", 300), "q"); len(got) != 200 {
		t.Errorf("default snippet length = %d", len(got))
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	tests := []struct {
		mode     string
		contains []string
	}{
		{"answer", []string{"Based on 2 saved insights:\n", "1. From consensus (2024-02-15):", "   Original query: attrition and floors"}},
		{"compare", []string{"Comparing insights from 2 sources:\n", "CONSENSUS (2 notes):", "  - Attrition bias (2024-01-10)"}},
		{"tensions", []string{"Analyzing for potential tensions/contradictions:", "(Manual review of content needed to detect contradictions)"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			a, err := s.Analyze("attrition", "MEAS", tt.mode)
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if a.InsightsAnalyzed != 2 || len(a.SourcesUsed) != 2 {
				t.Errorf("analyzed = %d, sources = %d", a.InsightsAnalyzed, len(a.SourcesUsed))
			}
			for _, c := range tt.contains {
				if !strings.Contains(a.Synthesis, c) {
					t.Errorf("synthesis missing %q:\n%s", c, a.Synthesis)
				}
			}
		})
	}

	a, err := s.Analyze("quantum", "", "answer")
	if err != nil {
		t.Fatal(err)
	}
	if a.Synthesis != "No relevant insights found for this question." || a.InsightsAnalyzed != 0 {
		t.Errorf("empty analysis = %+v", a)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	l, err := s.List("MEAS", "")
	if err != nil {
		t.Fatalf("List() on missing dir error = %v", err)
	}
	if l.TotalInsights != 0 || len(l.Insights) != 0 {
		t.Errorf("empty listing = %+v", l)
	}

	seed(t, s)
	l, err = s.List("MEAS", "")
	if err != nil {
		t.Fatal(err)
	}
	dates := []string{}
	for _, e := range l.Insights {
		dates = append(dates, e.Date)
	}
	if diff := cmp.Diff([]string{"2024-02-15", "2024-02-01", "2024-01-10"}, dates); diff != "" {
		t.Errorf("dates (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"consensus": 2, "notebooklm": 1}, l.BySource); diff != "" {
		t.Errorf("by_source (-want +got):\n%s", diff)
	}

	l, err = s.List("MEAS", "notebooklm")
	if err != nil {
		t.Fatal(err)
	}
	if l.TotalInsights != 1 {
		t.Errorf("source filter total = %d", l.TotalInsights)
	}

	if _, err := s.List("NOPE", ""); !failure.Is(err, config.ErrProjectNotFound) {
		t.Errorf("unknown project error = %v", err)
	}
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	in, err := s.Find("MEAS", "ceiling_effects")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if in.Frontmatter.Topic != "Ceiling effects" || in.Content != "Tests saturate at the top." {
		t.Errorf("Find() = %+v", in)
	}
	if _, err := s.Find("MEAS", "missing"); !failure.Is(err, ErrNotFound) {
		t.Errorf("missing insight error = %v", err)
	}
}
