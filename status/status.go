// Package status builds the cross-cutting dashboards: the per-project
// status view, the list of pending user actions, and the health check.
package status

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ka2n/litrev/api/zotero"
	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/log"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type ErrorCode string

const (
	ErrStatus         ErrorCode = "STATUS_ERROR"
	ErrPendingActions ErrorCode = "PENDING_ACTIONS_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	recentWindow = 30 * 24 * time.Hour
	recentLimit  = 10
	// project_status only looks at the first page of the collection.
	statusItemLimit = 100
	// pendingConcurrency bounds parallel Zotero listings.
	pendingConcurrency = 4
)

// Papers lists the papers of a project collection.
type Papers interface {
	ProjectPapers(ctx context.Context, project string, limit int) ([]zotero.Paper, error)
}

type Service struct {
	cfg    *config.Manager
	papers Papers
	notes  *insights.Store
	now    func() time.Time
}

// New returns a status service. papers may be nil when Zotero credentials
// are missing; the Zotero parts of every view are then left empty.
func New(cfg *config.Manager, papers Papers, notes *insights.Store) *Service {
	return &Service{cfg: cfg, papers: papers, notes: notes, now: time.Now}
}

type RecentPaper struct {
	Title   string `json:"title"`
	Authors string `json:"authors"`
	Added   string `json:"added"`
	Status  string `json:"status"`
}

type InsightStats struct {
	Total    int            `json:"total"`
	BySource map[string]int `json:"by_source"`
}

type RecentInsight struct {
	Topic  string `json:"topic"`
	Source string `json:"source"`
	Date   string `json:"date"`
}

type ProjectStatus struct {
	Project             string              `json:"project"`
	Name                string              `json:"name"`
	Summary             zotero.StatusCounts `json:"summary"`
	Insights            InsightStats        `json:"insights"`
	RecentAdditions     []RecentPaper       `json:"recent_additions"`
	RecentInsights      []RecentInsight     `json:"recent_insights"`
	DriveFolder         *string             `json:"drive_folder"`
	NotebookLMNotebooks []string            `json:"notebooklm_notebooks"`
}

// ProjectStatus summarizes the papers and insights of a project. The Zotero
// and insight lookups run concurrently; a Zotero failure only empties the
// paper summary.
func (s *Service) ProjectStatus(ctx context.Context, project string) (ProjectStatus, error) {
	p, err := s.cfg.Config().Project(project)
	if err != nil {
		return ProjectStatus{}, err
	}
	out := ProjectStatus{
		Project:             project,
		Name:                p.Name,
		Insights:            InsightStats{BySource: map[string]int{}},
		RecentAdditions:     []RecentPaper{},
		RecentInsights:      []RecentInsight{},
		NotebookLMNotebooks: lo.Ternary(p.NotebookLMNotebooks == nil, []string{}, p.NotebookLMNotebooks),
	}
	if s.cfg.LiteraturePath() != "" {
		out.DriveFolder = lo.ToPtr("Literature/" + project)
	}
	cutoff := s.now().Add(-recentWindow)

	eg, ctx := errgroup.WithContext(ctx)
	if s.papers != nil && p.ZoteroCollectionKey != "" {
		eg.Go(func() error {
			papers, err := s.papers.ProjectPapers(ctx, project, statusItemLimit)
			if err != nil {
				log.Warn("project_status: Zotero lookup failed", "project", project, "error", err)
				return nil
			}
			out.Summary = zotero.CountStatuses(papers)
			out.RecentAdditions = recentPapers(papers, cutoff)
			return nil
		})
	}
	eg.Go(func() error {
		notes, err := s.notes.Load(project)
		if err != nil {
			if failure.Is(err, config.ErrDriveNotFound) {
				return nil
			}
			return err
		}
		out.Insights, out.RecentInsights = insightStats(notes, cutoff)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return ProjectStatus{}, failure.Wrap(err, failure.WithCode(ErrStatus), failure.Message(err.Error()))
	}
	return out, nil
}

func recentPapers(papers []zotero.Paper, cutoff time.Time) []RecentPaper {
	recent := lo.FilterMap(papers, func(p zotero.Paper, _ int) (RecentPaper, bool) {
		added, err := time.Parse(time.RFC3339, p.DateAdded)
		if err != nil || added.Before(cutoff) {
			return RecentPaper{}, false
		}
		return RecentPaper{Title: p.Title, Authors: p.Authors, Added: p.DateAdded[:10], Status: p.Status}, true
	})
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Added > recent[j].Added })
	return lo.Slice(recent, 0, recentLimit)
}

func insightStats(notes []insights.Insight, cutoff time.Time) (InsightStats, []RecentInsight) {
	stats := InsightStats{Total: len(notes), BySource: map[string]int{}}
	since := cutoff.Format("2006-01-02")
	recent := []RecentInsight{}
	for _, n := range notes {
		source := lo.CoalesceOrEmpty(n.Frontmatter.Source, "unknown")
		stats.BySource[source]++
		if n.Frontmatter.Date >= since {
			recent = append(recent, RecentInsight{Topic: n.Frontmatter.Topic, Source: source, Date: n.Frontmatter.Date})
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date > recent[j].Date })
	return stats, lo.Slice(recent, 0, recentLimit)
}

type PDFAction struct {
	Project         string  `json:"project"`
	CitationKey     string  `json:"citation_key"`
	Title           string  `json:"title"`
	Authors         string  `json:"authors"`
	Year            string  `json:"year"`
	DOI             string  `json:"doi"`
	DOIURL          *string `json:"doi_url"`
	ItemKey         string  `json:"item_key"`
	ZoteroItemTitle string  `json:"zotero_item_title"`
	DriveFilename   string  `json:"drive_filename"`
	DriveFolder     string  `json:"drive_folder"`
}

type NotebookLMAction struct {
	Project           string  `json:"project"`
	CitationKey       string  `json:"citation_key"`
	Title             string  `json:"title"`
	DriveFilename     string  `json:"drive_filename"`
	DriveFolder       string  `json:"drive_folder"`
	DriveFullPath     string  `json:"drive_full_path"`
	SuggestedNotebook *string `json:"suggested_notebook"`
}

type Pending struct {
	PDFsToAcquire           []PDFAction        `json:"pdfs_to_acquire"`
	PapersToAddToNotebookLM []NotebookLMAction `json:"papers_to_add_to_notebooklm"`
	TotalPDFs               int                `json:"total_pdfs"`
	TotalNotebookLM         int                `json:"total_notebooklm"`
	SkippedProjects         []string           `json:"skipped_projects,omitempty"`
}

type projectActions struct {
	pdfs      []PDFAction
	notebooks []NotebookLMAction
	skipped   bool
}

// PendingActions collects what the user has to do by hand across every
// project: acquire PDFs and add finished PDFs to NotebookLM. A project whose
// listing fails is skipped and reported in SkippedProjects.
func (s *Service) PendingActions(ctx context.Context) (Pending, error) {
	out := Pending{PDFsToAcquire: []PDFAction{}, PapersToAddToNotebookLM: []NotebookLMAction{}}
	if s.papers == nil {
		return out, nil
	}
	cfg := s.cfg.Config()
	codes := lo.Filter(cfg.ProjectCodes(), func(code string, _ int) bool {
		return cfg.Projects[code].ZoteroCollectionKey != ""
	})

	results := make([]projectActions, len(codes))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(pendingConcurrency)
	for i, code := range codes {
		eg.Go(func() error {
			papers, err := s.papers.ProjectPapers(gctx, code, 0)
			if err != nil {
				results[i].skipped = true
				log.Warn("pending_actions: skipping project", "project", code, "error", err)
				return nil
			}
			results[i] = actionsFor(code, cfg.Projects[code], papers)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Pending{}, failure.Wrap(err, failure.WithCode(ErrPendingActions), failure.Message(err.Error()))
	}
	if err := ctx.Err(); err != nil {
		return Pending{}, failure.Wrap(err, failure.WithCode(ErrPendingActions), failure.Message(err.Error()))
	}

	for i, r := range results {
		if r.skipped {
			out.SkippedProjects = append(out.SkippedProjects, codes[i])
			continue
		}
		out.PDFsToAcquire = append(out.PDFsToAcquire, r.pdfs...)
		out.PapersToAddToNotebookLM = append(out.PapersToAddToNotebookLM, r.notebooks...)
	}
	out.TotalPDFs = len(out.PDFsToAcquire)
	out.TotalNotebookLM = len(out.PapersToAddToNotebookLM)
	return out, nil
}

func actionsFor(code string, p config.Project, papers []zotero.Paper) projectActions {
	folder := fmt.Sprintf("Literature/%s/", code)
	var notebook *string
	if len(p.NotebookLMNotebooks) > 0 {
		notebook = lo.ToPtr(p.NotebookLMNotebooks[0])
	}
	var a projectActions
	for _, paper := range papers {
		switch paper.Status {
		case "needs_pdf":
			var doiURL *string
			if paper.DOI != "" {
				doiURL = lo.ToPtr("https://doi.org/" + paper.DOI)
			}
			a.pdfs = append(a.pdfs, PDFAction{
				Project:         code,
				CitationKey:     paper.CitationKey,
				Title:           paper.Title,
				Authors:         paper.Authors,
				Year:            paper.Year,
				DOI:             paper.DOI,
				DOIURL:          doiURL,
				ItemKey:         paper.ItemKey,
				ZoteroItemTitle: paper.Title,
				DriveFilename:   paper.PDFFilename,
				DriveFolder:     folder,
			})
		case "needs_notebooklm":
			if paper.CitationKey == "" {
				continue
			}
			a.notebooks = append(a.notebooks, NotebookLMAction{
				Project:           code,
				CitationKey:       paper.CitationKey,
				Title:             paper.Title,
				DriveFilename:     paper.PDFFilename,
				DriveFolder:       folder,
				DriveFullPath:     folder + paper.PDFFilename,
				SuggestedNotebook: notebook,
			})
		}
	}
	return a
}

// Pinger reports whether the argument map database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Hello describes the local setup as a few human readable lines.
func (s *Service) Hello(ctx context.Context, secrets config.Secrets, db Pinger) string {
	lines := []string{"litrev is running!", ""}

	if drive := s.cfg.DrivePath(); drive != "" {
		lines = append(lines, "Google Drive: "+drive)
	} else {
		lines = append(lines, "Google Drive: not detected")
	}
	lines = append(lines, describePath("Literature folder", s.cfg.LiteraturePath()))
	lines = append(lines, describePath("Config file", s.cfg.ConfigPath()))
	lines = append(lines, fmt.Sprintf("  Projects defined: %d", len(s.cfg.Config().Projects)))

	lines = append(lines, "")
	lines = append(lines, describeKey("ZOTERO_API_KEY", secrets.ZoteroAPIKey))
	if secrets.ZoteroUserID != "" {
		lines = append(lines, "ZOTERO_USER_ID: "+secrets.ZoteroUserID)
	} else {
		lines = append(lines, "ZOTERO_USER_ID: not set")
	}
	lines = append(lines,
		describeKey("NCBI_API_KEY", secrets.NCBIAPIKey),
		describeKey("SEMANTIC_SCHOLAR_API_KEY", secrets.SemanticScholarAPIKey),
		describeKey("OPENAI_API_KEY", secrets.OpenAIAPIKey),
		describeKey("ANTHROPIC_API_KEY", secrets.AnthropicAPIKey),
	)

	lines = append(lines, "")
	switch {
	case db == nil:
		lines = append(lines, "Database: not opened")
	default:
		if err := db.Ping(ctx); err != nil {
			lines = append(lines, "Database: unreachable ("+err.Error()+")")
		} else {
			lines = append(lines, "Database: "+s.cfg.DatabasePath())
		}
	}
	return strings.Join(lines, "\n")
}

func describePath(label, p string) string {
	if p == "" {
		return label + ": not configured"
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Sprintf("%s: %s (does not exist)", label, p)
	}
	return label + ": " + p
}

func describeKey(name, value string) string {
	if value == "" {
		return name + ": not set"
	}
	return fmt.Sprintf("%s: set (%d chars)", name, len(value))
}
