package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/morikuni/failure/v2"
)

var (
	sessionRe = regexp.MustCompile(`### Session (\d{4}-\d{2}-\d{2})`)
	phaseRe   = regexp.MustCompile(`(?s)## Phase (\d+):.*?\*\*Status\*\*: (\w+)`)
)

type GapCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type Status struct {
	Gaps         GapCounts `json:"gaps"`
	Pivots       int       `json:"pivots"`
	Searches     int       `json:"searches"`
	LastSession  *string   `json:"last_session"`
	CurrentPhase string    `json:"current_phase"`
}

// stripFences drops fenced code blocks so format examples in the templates
// do not count as entries.
func stripFences(text string) string {
	var b strings.Builder
	inFence := false
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			b.WriteString(line)
		}
	}
	return b.String()
}

// read returns the unfenced content of a workflow file, or "" when it does
// not exist.
func read(dir, name string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, failure.Wrap(err, failure.WithCode(ErrQuery), failure.Message(err.Error()))
	}
	return stripFences(string(data)), true, nil
}

// Status counts the entries of each workflow file.
func (s *Store) Status(project string) (Status, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Gaps:         GapCounts{ByStatus: make(map[string]int, len(GapStatuses))},
		CurrentPhase: "Not started",
	}
	for _, gs := range GapStatuses {
		st.Gaps.ByStatus[gs] = 0
	}

	gaps, _, err := read(dir, GapsFile)
	if err != nil {
		return Status{}, err
	}
	st.Gaps.Total = strings.Count(gaps, "### Gap:")
	for _, gs := range GapStatuses {
		st.Gaps.ByStatus[gs] = strings.Count(gaps, "**Status**: "+gs+"\n")
	}

	pivots, _, err := read(dir, PivotsFile)
	if err != nil {
		return Status{}, err
	}
	st.Pivots = strings.Count(pivots, "### Pivot:")

	searches, _, err := read(dir, SearchesFile)
	if err != nil {
		return Status{}, err
	}
	st.Searches = strings.Count(searches, "### Search:")

	wf, ok, err := read(dir, WorkflowFile)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return st, nil
	}
	if sessions := sessionRe.FindAllStringSubmatch(wf, -1); len(sessions) > 0 {
		last := sessions[len(sessions)-1][1]
		st.LastSession = &last
	}
	if phases := phaseRe.FindAllStringSubmatch(wf, -1); len(phases) > 0 {
		st.CurrentPhase = "All phases complete"
		for _, p := range phases {
			if p[2] != "complete" {
				st.CurrentPhase = fmt.Sprintf("Phase %s", p[1])
				break
			}
		}
	}
	return st, nil
}
