// Package config loads the litrev configuration stored next to the
// literature folder on Google Drive.
package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/morikuni/failure/v2"
	yamlv3 "go.yaml.in/yaml/v3"
)

type ErrorCode string

const (
	ErrDriveNotFound   ErrorCode = "DRIVE_PATH_NOT_FOUND"
	ErrProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix marks environment variables that override config values.
// Nested keys are separated by a double underscore:
//
//	LITREV_RAG__EMBEDDING_DIMENSIONS -> rag.embedding_dimensions
const EnvPrefix = "LITREV_"

type Project struct {
	Name                string   `koanf:"name" yaml:"name" validate:"required"`
	ZoteroCollectionKey string   `koanf:"zotero_collection_key" yaml:"zotero_collection_key,omitempty"`
	DriveFolder         string   `koanf:"drive_folder" yaml:"drive_folder"`
	NotebookLMNotebooks []string `koanf:"notebooklm_notebooks" yaml:"notebooklm_notebooks"`
}

// StatusTags are the Zotero tags used to track a paper through the pipeline.
type StatusTags struct {
	NeedsPDF        string `koanf:"needs_pdf" yaml:"needs_pdf" validate:"required"`
	NeedsNotebookLM string `koanf:"needs_notebooklm" yaml:"needs_notebooklm" validate:"required"`
	Complete        string `koanf:"complete" yaml:"complete" validate:"required"`
}

// ByStatus returns the tag for a status name (needs_pdf, needs_notebooklm, complete).
func (t StatusTags) ByStatus(status string) (string, bool) {
	switch status {
	case "needs_pdf":
		return t.NeedsPDF, true
	case "needs_notebooklm":
		return t.NeedsNotebookLM, true
	case "complete":
		return t.Complete, true
	}
	return "", false
}

// All returns every status tag.
func (t StatusTags) All() []string {
	return []string{t.NeedsPDF, t.NeedsNotebookLM, t.Complete}
}

type BetterBibTeX struct {
	CitationKeyPattern string `koanf:"citation_key_pattern" yaml:"citation_key_pattern"`
}

type RAG struct {
	EmbeddingDimensions int `koanf:"embedding_dimensions" yaml:"embedding_dimensions" validate:"min=256,max=1536"`
}

type Workflow struct {
	Enabled               bool `koanf:"enabled" yaml:"enabled"`
	ShowGuidance          bool `koanf:"show_guidance" yaml:"show_guidance"`
	PhaseTracking         bool `koanf:"phase_tracking" yaml:"phase_tracking"`
	AutoGenerateTemplates bool `koanf:"auto_generate_templates" yaml:"auto_generate_templates"`
}

type ArgumentMap struct {
	Enabled         bool `koanf:"enabled" yaml:"enabled"`
	AutoExtract     bool `koanf:"auto_extract" yaml:"auto_extract"`
	ShowScaffolding bool `koanf:"show_scaffolding" yaml:"show_scaffolding"`
}

type Database struct {
	// Path of the sqlite file. Relative paths are resolved against the
	// .litrev directory.
	Path string `koanf:"path" yaml:"path"`
}

type Config struct {
	Projects          map[string]Project `koanf:"projects" yaml:"projects" validate:"dive"`
	StatusTags        StatusTags         `koanf:"status_tags" yaml:"status_tags"`
	NotebookLMPattern string             `koanf:"notebooklm_pattern" yaml:"notebooklm_pattern"`
	BetterBibTeX      BetterBibTeX       `koanf:"better_bibtex" yaml:"better_bibtex"`
	RAG               RAG                `koanf:"rag" yaml:"rag"`
	Workflow          Workflow           `koanf:"workflow" yaml:"workflow"`
	ArgumentMap       ArgumentMap        `koanf:"argument_map" yaml:"argument_map"`
	Database          Database           `koanf:"database" yaml:"database"`
}

var validate = validator.New()

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		// defaults.yaml is embedded and must always parse
		panic(err)
	}
	return cfg
}

// parse layers the embedded defaults, the given file content and LITREV_
// environment overrides, in that order.
func parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Failed to load default configuration"))
	}
	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Failed to parse config.yaml"))
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Failed to read environment overrides"))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Failed to decode configuration"))
	}
	if cfg.Projects == nil {
		cfg.Projects = map[string]Project{}
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Invalid configuration: "+err.Error()))
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// ProjectCodes returns the configured project codes in sorted order.
func (c *Config) ProjectCodes() []string {
	codes := make([]string, 0, len(c.Projects))
	for code := range c.Projects {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Project looks up a project by code.
func (c *Config) Project(code string) (Project, error) {
	p, ok := c.Projects[code]
	if !ok {
		return Project{}, failure.New(ErrProjectNotFound,
			failure.Message("Project '"+code+"' not found in config"),
			failure.Context{"project": code},
		)
	}
	return p, nil
}

// Manager ties a configuration to the drive it was loaded from.
type Manager struct {
	drivePath string
	cfg       *Config
}

// Load detects the Google Drive folder and reads its config file.
// A missing drive or config file yields the defaults.
func Load() (*Manager, error) {
	return LoadFrom(DetectDrivePath())
}

// LoadFrom reads the config below drivePath. An empty drivePath means no
// drive was found.
func LoadFrom(drivePath string) (*Manager, error) {
	m := &Manager{drivePath: drivePath}
	var content []byte
	if p := m.ConfigPath(); p != "" {
		b, err := os.ReadFile(p)
		if err != nil && !os.IsNotExist(err) {
			return nil, failure.Wrap(err, failure.WithCode(ErrInvalidConfig),
				failure.Message("Failed to read config file"),
				failure.Context{"path": p},
			)
		}
		content = b
	}
	cfg, err := parse(content)
	if err != nil {
		return nil, err
	}
	m.cfg = cfg
	return m, nil
}

// NewManager wraps an already built configuration.
func NewManager(drivePath string, cfg *Config) *Manager {
	return &Manager{drivePath: drivePath, cfg: cfg}
}

func (m *Manager) Config() *Config {
	return m.cfg
}

// DrivePath returns the detected drive root, or "" when none was found.
func (m *Manager) DrivePath() string {
	return m.drivePath
}

// LiteraturePath returns {drive}/Literature, or "".
func (m *Manager) LiteraturePath() string {
	if m.drivePath == "" {
		return ""
	}
	return filepath.Join(m.drivePath, "Literature")
}

// ConfigPath returns {drive}/Literature/.litrev/config.yaml, or "".
func (m *Manager) ConfigPath() string {
	lit := m.LiteraturePath()
	if lit == "" {
		return ""
	}
	return filepath.Join(lit, ".litrev", "config.yaml")
}

// ProjectPath returns the folder of a project below the literature root.
func (m *Manager) ProjectPath(code string) (string, error) {
	lit := m.LiteraturePath()
	if lit == "" {
		return "", failure.New(ErrDriveNotFound,
			failure.Message("Google Drive path not found"),
		)
	}
	if _, err := m.Config().Project(code); err != nil {
		return "", err
	}
	return filepath.Join(lit, code), nil
}

// DatabasePath resolves the sqlite file location.
func (m *Manager) DatabasePath() string {
	p := m.cfg.Database.Path
	if filepath.IsAbs(p) {
		return p
	}
	if lit := m.LiteraturePath(); lit != "" {
		return filepath.Join(lit, ".litrev", p)
	}
	return filepath.Join(".litrev", p)
}

// Save writes the configuration back to config.yaml.
func (m *Manager) Save(cfg *Config) error {
	p := m.ConfigPath()
	if p == "" {
		return failure.New(ErrDriveNotFound, failure.Message("Google Drive path not found"))
	}
	if err := validate.Struct(cfg); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInvalidConfig), failure.Message("Invalid configuration: "+err.Error()))
	}
	b, err := yamlv3.Marshal(cfg)
	if err != nil {
		return failure.Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return failure.Wrap(err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return failure.Wrap(err, failure.Context{"path": p})
	}
	m.cfg = cfg
	return nil
}
