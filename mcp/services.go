package mcp

import (
	"context"
	"net/http"

	"github.com/ka2n/litrev/api/anthropic"
	"github.com/ka2n/litrev/api/cache"
	"github.com/ka2n/litrev/api/eric"
	"github.com/ka2n/litrev/api/openai"
	"github.com/ka2n/litrev/api/paperpage"
	"github.com/ka2n/litrev/api/pubmed"
	"github.com/ka2n/litrev/api/semanticscholar"
	"github.com/ka2n/litrev/api/zotero"
	"github.com/ka2n/litrev/argmap"
	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/log"
	"github.com/ka2n/litrev/projectctx"
	"github.com/ka2n/litrev/status"
	"github.com/ka2n/litrev/store"
	"github.com/ka2n/litrev/workflow"
)

// Services holds everything the tool handlers call into. Optional
// collaborators that could not be built keep the reason in the matching
// *Err field so the tools can report it.
type Services struct {
	Config  *config.Manager
	Secrets config.Secrets

	Zotero    *zotero.Library
	ZoteroErr error

	PubMed  *pubmed.Client
	Scholar *semanticscholar.Client
	ERIC    *eric.Client
	Pages   *paperpage.Reader

	Insights *insights.Store
	Context  *projectctx.Store
	Workflow *workflow.Store
	Status   *status.Service

	Store    *store.Store
	StoreErr error
	ArgMap   *argmap.Service
}

// NewServices wires the clients and stores for one configuration. A nil
// httpClient uses http.DefaultClient.
func NewServices(ctx context.Context, cfg *config.Manager, secrets config.Secrets, httpClient *http.Client) *Services {
	s := &Services{
		Config:   cfg,
		Secrets:  secrets,
		PubMed:   pubmed.NewClient(secrets.NCBIAPIKey, httpClient),
		Scholar:  semanticscholar.NewClient(secrets.SemanticScholarAPIKey, httpClient),
		ERIC:     eric.NewClient(httpClient),
		Pages:    paperpage.NewReader(httpClient).WithCache(cache.New[paperpage.Page]("pages")),
		Insights: insights.NewStore(cfg),
		Context:  projectctx.NewStore(cfg),
		Workflow: workflow.NewStore(cfg),
	}

	client, err := zotero.NewClient(secrets.ZoteroUserID, secrets.ZoteroAPIKey, httpClient)
	if err != nil {
		s.ZoteroErr = err
		log.Warn("Zotero tools disabled", "error", err)
	} else {
		s.Zotero = zotero.NewLibrary(client, cfg.Config())
	}
	if s.Zotero != nil {
		s.Status = status.New(cfg, s.Zotero, s.Insights)
	} else {
		s.Status = status.New(cfg, nil, s.Insights)
	}

	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		s.StoreErr = err
		log.Warn("argument map disabled", "path", cfg.DatabasePath(), "error", err)
		return s
	}
	s.Store = st

	var opts []argmap.Option
	if e, err := openai.NewClient(secrets.OpenAIAPIKey, cfg.Config().RAG.EmbeddingDimensions, httpClient); err == nil {
		opts = append(opts, argmap.WithEmbedder(e))
	}
	if c, err := anthropic.NewClient(secrets.AnthropicAPIKey, httpClient); err == nil {
		opts = append(opts, argmap.WithCompleter(c))
	}
	s.ArgMap = argmap.New(st, cfg, s.Insights, opts...)
	return s
}

func (s *Services) library() (*zotero.Library, error) {
	if s.Zotero == nil {
		return nil, s.ZoteroErr
	}
	return s.Zotero, nil
}

func (s *Services) argmap() (*argmap.Service, error) {
	if s.ArgMap == nil {
		return nil, s.StoreErr
	}
	return s.ArgMap, nil
}

// pinger returns the store as a status.Pinger, or nil when it is not open.
func (s *Services) pinger() status.Pinger {
	if s.Store == nil {
		return nil
	}
	return s.Store
}

func (s *Services) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
