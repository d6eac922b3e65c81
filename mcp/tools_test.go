package mcp

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ka2n/litrev/api/zotero"
	"github.com/ka2n/litrev/argmap"
	"github.com/ka2n/litrev/config"
	"github.com/ka2n/litrev/insights"
	"github.com/ka2n/litrev/projectctx"
	"github.com/ka2n/litrev/status"
	"github.com/ka2n/litrev/store"
	"github.com/ka2n/litrev/workflow"
	"github.com/morikuni/failure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	drive := t.TempDir()
	cfg := config.Default()
	cfg.Projects = map[string]config.Project{
		"MEAS": {Name: "Measurement", ZoteroCollectionKey: "COLL1"},
	}
	m := config.NewManager(drive, cfg)

	st, err := store.Open(context.Background(), filepath.Join(drive, "litrev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notes := insights.NewStore(m)
	return &Services{
		Config:    m,
		ZoteroErr: failure.New(zotero.ErrAuthFailed, failure.Message("ZOTERO_API_KEY environment variable is not set")),
		Insights:  notes,
		Context:   projectctx.NewStore(m),
		Workflow:  workflow.NewStore(m),
		Status:    status.New(m, nil, notes),
		Store:     st,
		ArgMap:    argmap.New(st, m, notes),
	}
}

func TestInitTools(t *testing.T) {
	tools := InitTools(newTestServices(t))
	seen := map[string]bool{}
	for _, tool := range tools {
		name := tool.Tool.Name
		assert.False(t, seen[name], "duplicate tool %s", name)
		seen[name] = true
		assert.NotEmpty(t, tool.Tool.Description, "tool %s has no description", name)
	}
	for _, name := range []string{"litrev_hello", "zotero_add_paper", "pubmed_search", "save_insight", "save_gap", "search_argument_map"} {
		assert.True(t, seen[name], "missing tool %s", name)
	}
}

func TestInsightTools(t *testing.T) {
	s := newTestServices(t)

	body, isErr := call(t, s.SaveInsight, map[string]any{
		"project":           "MEAS",
		"source":            "consensus",
		"topic":             "Regression calibration",
		"content":           "Regression calibration corrects attenuation when validation data exist.",
		"papers_referenced": []any{"carroll_2006"},
	})
	require.False(t, isErr, body)
	assert.Equal(t, "Saved insight to MEAS notes", body["message"])
	assert.FileExists(t, body["filepath"].(string))

	body, isErr = call(t, s.ListInsights, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	assert.EqualValues(t, 1, body["total_insights"])

	body, isErr = call(t, s.SearchInsights, map[string]any{"query": "ATTENUATION"})
	require.False(t, isErr, body)
	assert.EqualValues(t, 1, body["total_matches"])

	body, isErr = call(t, s.SaveInsight, map[string]any{
		"project": "MEAS", "source": "twitter", "topic": "x", "content": "y",
	})
	require.True(t, isErr)
	assert.Equal(t, "INVALID_SOURCE", errorOf(t, body)["code"])
}

func TestProjectContextTools(t *testing.T) {
	s := newTestServices(t)

	body, isErr := call(t, s.GetProjectContext, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	assert.Equal(t, false, body["exists"])
	assert.Contains(t, body["template"], "MEAS")

	body, isErr = call(t, s.UpdateProjectContext, map[string]any{"project": "MEAS", "content": "# Goal\nFind bias."})
	require.False(t, isErr, body)

	body, isErr = call(t, s.GetProjectContext, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "# Goal\nFind bias.", body["context"])
}

func TestWorkflowTools(t *testing.T) {
	s := newTestServices(t)

	body, isErr := call(t, s.SaveGap, map[string]any{
		"project":         "MEAS",
		"topic":           "Differential error in surveys",
		"why_matters":     "Drives the bias direction",
		"search_strategy": "PubMed MeSH",
	})
	require.False(t, isErr, body)
	assert.Contains(t, body["message"], "_gaps.md")

	body, isErr = call(t, s.SaveSearchStrategy, map[string]any{
		"project": "MEAS",
		"goal":    "Find validation studies",
		"queries": []any{
			map[string]any{"query": "validation substudy", "database": "PubMed", "result": "12 hits"},
			map[string]any{"query": "calibration sample", "result": "nothing new"},
		},
		"conclusion": "Enough to proceed",
	})
	require.False(t, isErr, body)
	assert.EqualValues(t, 2, body["search"].(map[string]any)["query_count"])

	body, isErr = call(t, s.SaveSearchStrategy, map[string]any{
		"project": "MEAS", "goal": "g", "conclusion": "c",
		"queries": []any{map[string]any{"database": "ERIC"}},
	})
	require.True(t, isErr)
	assert.Equal(t, "INVALID_ARGUMENTS", errorOf(t, body)["code"])

	body, isErr = call(t, s.GetWorkflowStatus, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	st := body["status"].(map[string]any)
	assert.EqualValues(t, 1, st["gaps"].(map[string]any)["total"])
	assert.EqualValues(t, 1, st["searches"])
}

func TestArgumentMapTools(t *testing.T) {
	s := newTestServices(t)

	body, isErr := call(t, s.AddPropositions, map[string]any{
		"project": "MEAS",
		"topics":  []any{map[string]any{"name": "Bias"}},
		"propositions": []any{
			map[string]any{"name": "Measurement error causes bias", "source": "insight", "suggested_topic": "Bias"},
			map[string]any{"name": "Bias correction requires validation data", "source": "ai_knowledge"},
		},
		"relationships": []any{
			map[string]any{"from": "Bias correction requires validation data", "to": "Measurement error causes bias", "type": "requires"},
		},
		"evidence": []any{
			map[string]any{"proposition_name": "Measurement error causes bias", "claim": "Attenuation of slopes", "insight_id": "2024-01-01_consensus_bias"},
		},
	})
	require.False(t, isErr, body)
	assert.Equal(t, "Added 1 topics, 2 new propositions, updated 0, 1 relationships, 1 evidence entries", body["message"])

	body, isErr = call(t, s.ShowArgumentMap, map[string]any{"project": "MEAS", "format": "detailed"})
	require.False(t, isErr, body)
	assert.Contains(t, body["text"], "Measurement error causes bias")

	body, isErr = call(t, s.FindArgumentGaps, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	assert.EqualValues(t, 1, body["count"])

	body, isErr = call(t, s.DeleteProposition, map[string]any{"project": "MEAS", "proposition_id": "measurement_error_causes_bias"})
	require.True(t, isErr)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorOf(t, body)["code"])

	body, isErr = call(t, s.ExpandArgumentMap, map[string]any{"project": "MEAS", "proposition_ids": []any{"missing"}})
	require.True(t, isErr)
	assert.Equal(t, "NO_VALID_PROPOSITIONS", errorOf(t, body)["code"])

	body, isErr = call(t, s.ArgumentMapMermaid, map[string]any{"project": "MEAS"})
	require.False(t, isErr, body)
	assert.True(t, strings.HasPrefix(body["mermaid"].(string), "graph TD"), body["mermaid"])
}

func TestArgumentMapUnavailable(t *testing.T) {
	s := newTestServices(t)
	s.ArgMap = nil
	s.StoreErr = failure.New(store.ErrDatabase, failure.Message("Failed to open database"))

	body, isErr := call(t, s.ListTopics, map[string]any{"project": "MEAS"})
	require.True(t, isErr)
	e := errorOf(t, body)
	assert.Equal(t, "DATABASE_ERROR", e["code"])
	assert.NotEmpty(t, e["suggestion"])
}

func TestZoteroUnavailable(t *testing.T) {
	s := newTestServices(t)
	body, isErr := call(t, s.ZoteroListProjects, nil)
	require.True(t, isErr)
	assert.Equal(t, "ZOTERO_AUTH_FAILED", errorOf(t, body)["code"])
}

// itemTransport answers every Zotero item lookup with one canned item.
type itemTransport struct{ body string }

func (tr itemTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !strings.HasPrefix(req.URL.Path, "/users/42/items/") {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader("Not found")), Header: http.Header{}, Request: req}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(tr.body)),
		Request:    req,
	}, nil
}

func TestZoteroDeletePaper_Preview(t *testing.T) {
	s := newTestServices(t)
	client, err := zotero.NewClient("42", "secret", &http.Client{Transport: itemTransport{body: `{
		"key": "ITEM1", "version": 4,
		"data": {"key": "ITEM1", "version": 4, "itemType": "journalArticle",
			"title": "Regression calibration revisited", "DOI": "10.1000/rc.2006",
			"tags": [{"tag": "_needs-pdf"}]}
	}`}})
	require.NoError(t, err)
	s.Zotero = zotero.NewLibrary(client, s.Config.Config())

	body, isErr := call(t, s.ZoteroDeletePaper, map[string]any{"item_key": "ITEM1"})
	require.True(t, isErr)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorOf(t, body)["code"])
	item := body["item"].(map[string]any)
	assert.Equal(t, "Regression calibration revisited", item["title"])
}
