package projectctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Projects = map[string]config.Project{"MEAS": {Name: "Measurement"}}
	return cfg
}

func TestGetUpdate(t *testing.T) {
	drive := t.TempDir()
	s := NewStore(config.NewManager(drive, testConfig()))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	c, err := s.Get("MEAS")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Exists || c.Context != nil {
		t.Errorf("missing file reported as existing: %+v", c)
	}
	if want := filepath.Join(drive, "Literature", "MEAS", Filename); c.Path != want {
		t.Errorf("Path = %q, want %q", c.Path, want)
	}
	for _, section := range []string{"# MEAS Context", "## Goal", "## Key Questions", "*Last updated: 2024-05-01*"} {
		if !strings.Contains(c.Template, section) {
			t.Errorf("template missing %q", section)
		}
	}
	if got := s.Text("MEAS"); got != "" {
		t.Errorf("Text() = %q, want empty", got)
	}

	if _, err := s.Update("MEAS", "# MEAS\nGoal: dosing"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	c, err = s.Get("MEAS")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Exists || *c.Context != "# MEAS\nGoal: dosing" || c.Template != "" {
		t.Errorf("Get() after update = %+v", c)
	}
}

func TestNoLiteraturePath(t *testing.T) {
	s := NewStore(config.NewManager("", testConfig()))
	if _, err := s.Get("MEAS"); !failure.Is(err, ErrNoLiteraturePath) {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := s.Update("MEAS", "x"); !failure.Is(err, ErrNoLiteraturePath) {
		t.Errorf("Update() error = %v", err)
	}
}

func TestUnknownProject(t *testing.T) {
	drive := t.TempDir()
	s := NewStore(config.NewManager(drive, testConfig()))
	for _, project := range []string{"NOPE", "../../escaped", "../MEAS"} {
		if _, err := s.Update(project, "x"); !failure.Is(err, config.ErrProjectNotFound) {
			t.Errorf("Update(%q) error = %v, want %v", project, err, config.ErrProjectNotFound)
		}
		if _, err := s.Get(project); !failure.Is(err, config.ErrProjectNotFound) {
			t.Errorf("Get(%q) error = %v, want %v", project, err, config.ErrProjectNotFound)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(drive), "escaped", Filename)); !os.IsNotExist(err) {
		t.Errorf("context file written outside the Literature folder: %v", err)
	}
}
