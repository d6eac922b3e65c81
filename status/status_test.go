package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ka2n/litrev/api/zotero"
	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/morikuni/failure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePapers struct {
	byProject map[string][]zotero.Paper
	fail      map[string]bool
}

func (f *fakePapers) ProjectPapers(_ context.Context, project string, _ int) ([]zotero.Paper, error) {
	if f.fail[project] {
		return nil, errors.New("zotero unavailable")
	}
	return f.byProject[project], nil
}

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, papers Papers) (*Service, string) {
	t.Helper()
	drive := t.TempDir()
	cfg := config.Default()
	cfg.Projects = map[string]config.Project{
		"MEAS":  {Name: "Measurement", ZoteroCollectionKey: "COLL1", NotebookLMNotebooks: []string{"MEAS - Methods - Bias"}},
		"EDU":   {Name: "Education", ZoteroCollectionKey: "COLL2"},
		"DRAFT": {Name: "Draft"},
	}
	mgr := config.NewManager(drive, cfg)
	s := New(mgr, papers, insights.NewStore(mgr))
	s.now = func() time.Time { return testNow }
	return s, drive
}

func writeNote(t *testing.T, drive, project, name string, fm insights.Frontmatter) {
	t.Helper()
	dir := filepath.Join(drive, "Literature", project, "_notes")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := insights.Format(fm, "body")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func measPapers() []zotero.Paper {
	return []zotero.Paper{
		{ItemKey: "A", CitationKey: "lee_bias_2019", Title: "Bias", Authors: "Lee", Year: "2019", DOI: "10.1/a", Status: "needs_pdf", PDFFilename: "lee_bias_2019.pdf", DateAdded: "2024-03-10T09:00:00Z"},
		{ItemKey: "B", Title: "Old", Authors: "Kim", Status: "complete", DateAdded: "2023-01-01T00:00:00Z"},
		{ItemKey: "C", CitationKey: "park_tests_2020", Title: "Tests", Status: "needs_notebooklm", PDFFilename: "park_tests_2020.pdf", DateAdded: "2024-03-15T00:00:00Z"},
		{ItemKey: "D", Title: "No key", Status: "needs_notebooklm"},
		{ItemKey: "E", Title: "Untagged", Status: ""},
	}
}

func TestProjectStatus(t *testing.T) {
	s, drive := newTestService(t, &fakePapers{byProject: map[string][]zotero.Paper{"MEAS": measPapers()}})
	writeNote(t, drive, "MEAS", "2024-03-18_consensus_a.md", insights.Frontmatter{Date: "2024-03-18", Source: "consensus", Topic: "Recent"})
	writeNote(t, drive, "MEAS", "2024-01-02_notebooklm_b.md", insights.Frontmatter{Date: "2024-01-02", Source: "notebooklm", Topic: "Old"})

	got, err := s.ProjectStatus(context.Background(), "MEAS")
	require.NoError(t, err)

	assert.Equal(t, "Measurement", got.Name)
	assert.Equal(t, zotero.StatusCounts{Total: 5, NeedsPDF: 1, NeedsNotebookLM: 2, Complete: 1, Untagged: 1}, got.Summary)
	require.Len(t, got.RecentAdditions, 2)
	assert.Equal(t, "Tests", got.RecentAdditions[0].Title)
	assert.Equal(t, "2024-03-15", got.RecentAdditions[0].Added)

	assert.Equal(t, 2, got.Insights.Total)
	assert.Equal(t, map[string]int{"consensus": 1, "notebooklm": 1}, got.Insights.BySource)
	require.Len(t, got.RecentInsights, 1)
	assert.Equal(t, "Recent", got.RecentInsights[0].Topic)

	require.NotNil(t, got.DriveFolder)
	assert.Equal(t, "Literature/MEAS", *got.DriveFolder)
	assert.Equal(t, []string{"MEAS - Methods - Bias"}, got.NotebookLMNotebooks)
}

func TestProjectStatus_ZoteroFailureIgnored(t *testing.T) {
	s, _ := newTestService(t, &fakePapers{fail: map[string]bool{"MEAS": true}})

	got, err := s.ProjectStatus(context.Background(), "MEAS")
	require.NoError(t, err)
	assert.Zero(t, got.Summary.Total)
	assert.Empty(t, got.RecentAdditions)
	assert.Zero(t, got.Insights.Total)
}

func TestProjectStatus_UnknownProject(t *testing.T) {
	s, _ := newTestService(t, nil)
	_, err := s.ProjectStatus(context.Background(), "NOPE")
	assert.True(t, failure.Is(err, config.ErrProjectNotFound), "err = %v", err)
}

func TestPendingActions(t *testing.T) {
	s, _ := newTestService(t, &fakePapers{
		byProject: map[string][]zotero.Paper{"MEAS": measPapers()},
		fail:      map[string]bool{"EDU": true},
	})

	got, err := s.PendingActions(context.Background())
	require.NoError(t, err)

	require.Len(t, got.PDFsToAcquire, 1)
	pdf := got.PDFsToAcquire[0]
	assert.Equal(t, "MEAS", pdf.Project)
	require.NotNil(t, pdf.DOIURL)
	assert.Equal(t, "https://doi.org/10.1/a", *pdf.DOIURL)
	assert.Equal(t, "Literature/MEAS/", pdf.DriveFolder)

	require.Len(t, got.PapersToAddToNotebookLM, 1)
	nb := got.PapersToAddToNotebookLM[0]
	assert.Equal(t, "Literature/MEAS/park_tests_2020.pdf", nb.DriveFullPath)
	require.NotNil(t, nb.SuggestedNotebook)
	assert.Equal(t, "MEAS - Methods - Bias", *nb.SuggestedNotebook)

	assert.Equal(t, 1, got.TotalPDFs)
	assert.Equal(t, 1, got.TotalNotebookLM)
	assert.Equal(t, []string{"EDU"}, got.SkippedProjects)
}

func TestPendingActions_NoZotero(t *testing.T) {
	s, _ := newTestService(t, nil)
	got, err := s.PendingActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.PDFsToAcquire)
	assert.Empty(t, got.PapersToAddToNotebookLM)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHello(t *testing.T) {
	s, _ := newTestService(t, nil)
	out := s.Hello(context.Background(), config.Secrets{ZoteroAPIKey: "abcd", ZoteroUserID: "42"}, pinger{})

	for _, want := range []string{
		"litrev is running!",
		"Literature folder: ",
		"(does not exist)",
		"Projects defined: 3",
		"ZOTERO_API_KEY: set (4 chars)",
		"ZOTERO_USER_ID: 42",
		"OPENAI_API_KEY: not set",
		"Database: ",
	} {
		assert.Contains(t, out, want)
	}

	out = s.Hello(context.Background(), config.Secrets{}, pinger{err: errors.New("locked")})
	assert.True(t, strings.Contains(out, "Database: unreachable (locked)"), out)
}
