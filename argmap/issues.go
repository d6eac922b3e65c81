package argmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

const IssuesFile = "_issues.json"

// IssueTypes accepted by CreateIssue.
var IssueTypes = []string{
	"needs_evidence",
	"rephrase",
	"wrong_topic",
	"merge",
	"split",
	"delete",
	"question",
	"other",
}

const (
	IssueOpen     = "open"
	IssueResolved = "resolved"
)

type Issue struct {
	ID              string  `json:"id"`
	PropositionID   string  `json:"proposition_id"`
	PropositionName string  `json:"proposition_name"`
	Type            string  `json:"type"`
	Description     string  `json:"description"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	ResolvedAt      *string `json:"resolved_at"`
	Resolution      *string `json:"resolution"`
}

type issueFile struct {
	Issues []Issue `json:"issues"`
}

const issueTimeLayout = "2006-01-02T15:04:05.000000Z"

func (s *Service) issuesPath(project string) (string, error) {
	dir, err := s.cfg.ProjectPath(project)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, IssuesFile), nil
}

func (s *Service) loadIssues(project string) (issueFile, error) {
	path, err := s.issuesPath(project)
	if err != nil {
		return issueFile{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return issueFile{Issues: []Issue{}}, nil
	}
	if err != nil {
		return issueFile{}, failure.Wrap(err, failure.WithCode(ErrIssuesFile), failure.Message("Failed to read issues file"))
	}
	var f issueFile
	if err := json.Unmarshal(data, &f); err != nil {
		return issueFile{}, failure.Wrap(err, failure.WithCode(ErrIssuesFile),
			failure.Message("Issues file is not valid JSON"),
			failure.Context{"path": path},
		)
	}
	if f.Issues == nil {
		f.Issues = []Issue{}
	}
	return f, nil
}

func (s *Service) saveIssues(project string, f issueFile) error {
	path, err := s.issuesPath(project)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrIssuesFile), failure.Message("Failed to save issues file"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrIssuesFile), failure.Message("Failed to save issues file"))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrIssuesFile), failure.Message("Failed to save issues file"))
	}
	return nil
}

func nextIssueID(issues []Issue) string {
	n := 0
	for _, i := range issues {
		num, ok := strings.CutPrefix(i.ID, "issue_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(num); err == nil {
			n = max(n, v)
		}
	}
	return fmt.Sprintf("issue_%03d", n+1)
}

func issueNotFound(id string) error {
	return failure.New(ErrIssueNotFound,
		failure.Message("Issue not found: "+id),
		failure.Context{"issue_id": id},
	)
}

// CreateIssue attaches a review note to a proposition.
func (s *Service) CreateIssue(ctx context.Context, project, propositionID, issueType, description string) (Issue, error) {
	if err := checkOneOf("issue_type", issueType, IssueTypes); err != nil {
		return Issue{}, err
	}
	prop, err := s.store.Proposition(ctx, propositionID)
	if err != nil {
		return Issue{}, err
	}
	f, err := s.loadIssues(project)
	if err != nil {
		return Issue{}, err
	}
	issue := Issue{
		ID:              nextIssueID(f.Issues),
		PropositionID:   propositionID,
		PropositionName: prop.Name,
		Type:            issueType,
		Description:     description,
		Status:          IssueOpen,
		CreatedAt:       s.now().UTC().Format(issueTimeLayout),
	}
	f.Issues = append(f.Issues, issue)
	if err := s.saveIssues(project, f); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

type IssueList struct {
	Project      string         `json:"project"`
	StatusFilter string         `json:"status_filter"`
	Issues       []Issue        `json:"issues"`
	Count        int            `json:"count"`
	ByType       map[string]int `json:"by_type"`
}

// ListIssues filters by status (all, open or resolved) and, when given, by
// proposition.
func (s *Service) ListIssues(project, status, propositionID string) (IssueList, error) {
	if status == "" {
		status = "all"
	}
	if err := checkOneOf("status", status, []string{"all", IssueOpen, IssueResolved}); err != nil {
		return IssueList{}, err
	}
	f, err := s.loadIssues(project)
	if err != nil {
		return IssueList{}, err
	}
	issues := lo.Filter(f.Issues, func(i Issue, _ int) bool {
		if status != "all" && i.Status != status {
			return false
		}
		return propositionID == "" || i.PropositionID == propositionID
	})
	return IssueList{
		Project:      project,
		StatusFilter: status,
		Issues:       issues,
		Count:        len(issues),
		ByType:       lo.CountValuesBy(issues, func(i Issue) string { return lo.CoalesceOrEmpty(i.Type, "unknown") }),
	}, nil
}

func (s *Service) ResolveIssue(project, id, resolution string) (Issue, error) {
	f, err := s.loadIssues(project)
	if err != nil {
		return Issue{}, err
	}
	_, idx, ok := lo.FindIndexOf(f.Issues, func(i Issue) bool { return i.ID == id })
	if !ok {
		return Issue{}, issueNotFound(id)
	}
	issue := &f.Issues[idx]
	if issue.Status == IssueResolved {
		return Issue{}, failure.New(ErrIssueResolved,
			failure.Message(fmt.Sprintf("Issue %s is already resolved", id)),
		)
	}
	issue.Status = IssueResolved
	issue.ResolvedAt = lo.ToPtr(s.now().UTC().Format(issueTimeLayout))
	issue.Resolution = lo.ToPtr(resolution)
	if err := s.saveIssues(project, f); err != nil {
		return Issue{}, err
	}
	return *issue, nil
}

func (s *Service) DeleteIssue(project, id string, confirm bool) error {
	if !confirm {
		return confirmRequired("Must set confirm=true to delete an issue")
	}
	f, err := s.loadIssues(project)
	if err != nil {
		return err
	}
	kept := lo.Reject(f.Issues, func(i Issue, _ int) bool { return i.ID == id })
	if len(kept) == len(f.Issues) {
		return issueNotFound(id)
	}
	f.Issues = kept
	return s.saveIssues(project, f)
}
