// Package semanticscholar wraps the Semantic Scholar Graph API for search
// and citation snowballing.
package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type ErrorCode string

const (
	ErrNotFound        ErrorCode = "SEMANTIC_SCHOLAR_NOT_FOUND"
	ErrSemanticScholar ErrorCode = "SEMANTIC_SCHOLAR_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL  = "https://api.semanticscholar.org/graph/v1"
	MaxSearch       = 100
	searchFields    = "paperId,title,authors,year,externalIds,citationCount,influentialCitationCount,abstract"
	neighbourFields = "paperId,title,authors,year,externalIds,citationCount"
)

type author struct {
	Name string `json:"name"`
}

type apiPaper struct {
	PaperID                  string         `json:"paperId"`
	Title                    string         `json:"title"`
	Authors                  []author       `json:"authors"`
	Year                     *int           `json:"year"`
	ExternalIDs              map[string]any `json:"externalIds"`
	CitationCount            *int           `json:"citationCount"`
	InfluentialCitationCount *int           `json:"influentialCitationCount"`
	ReferenceCount           *int           `json:"referenceCount"`
	Abstract                 *string        `json:"abstract"`
}

type Paper struct {
	S2ID                     string  `json:"s2_id"`
	Title                    string  `json:"title"`
	Authors                  string  `json:"authors"`
	Year                     *int    `json:"year"`
	DOI                      string  `json:"doi"`
	CitationCount            int     `json:"citation_count"`
	InfluentialCitationCount *int    `json:"influential_citation_count"`
	Abstract                 *string `json:"abstract"`
}

// Linked is a paper reached through a reference or citation edge.
type Linked struct {
	S2ID          string `json:"s2_id"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Year          *int   `json:"year"`
	DOI           string `json:"doi"`
	CitationCount int    `json:"citation_count"`
	IsInfluential bool   `json:"is_influential"`
}

type SourcePaper struct {
	Title string `json:"title"`
	S2ID  string `json:"s2_id"`
}

// Snowball is the result of a reference or citation lookup.
type Snowball struct {
	SourcePaper SourcePaper `json:"source_paper"`
	Total       int         `json:"total"`
	Papers      []Linked    `json:"papers"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient returns a client limited to one request per second, the rate
// Semantic Scholar grants to keyed clients.
func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// WithLimiter replaces the request rate limiter.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrSemanticScholar))
	}
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrSemanticScholar))
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrSemanticScholar), failure.Message("Failed to reach Semantic Scholar"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return failure.New(ErrNotFound, failure.Message("Paper not found"), failure.Context{"path": path})
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failure.New(ErrSemanticScholar,
			failure.Message(fmt.Sprintf("Semantic Scholar returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))),
		)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrSemanticScholar), failure.Message("Failed to decode Semantic Scholar response"))
	}
	return nil
}

func formatAuthors(as []author) string {
	names := lo.FilterMap(as, func(a author, _ int) (string, bool) { return a.Name, a.Name != "" })
	if len(names) == 0 {
		return "Unknown"
	}
	return strings.Join(names, ", ")
}

func (p apiPaper) doi() string {
	if v, ok := p.ExternalIDs["DOI"].(string); ok {
		return v
	}
	return ""
}

func (p apiPaper) title() string {
	if p.Title == "" {
		return "Untitled"
	}
	return p.Title
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// Search finds papers by keyword.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	var body struct {
		Data []apiPaper `json:"data"`
	}
	err := c.get(ctx, "/paper/search", url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(min(maxResults, MaxSearch))},
		"fields": {searchFields},
	}, &body)
	if err != nil {
		return nil, err
	}
	return lo.Map(body.Data, func(p apiPaper, _ int) Paper {
		return Paper{
			S2ID:                     p.PaperID,
			Title:                    p.title(),
			Authors:                  formatAuthors(p.Authors),
			Year:                     p.Year,
			DOI:                      p.doi(),
			CitationCount:            deref(p.CitationCount),
			InfluentialCitationCount: p.InfluentialCitationCount,
			Abstract:                 p.Abstract,
		}
	}), nil
}

var s2IDPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// NormalizePaperID accepts an S2 id, a prefixed id such as PMID:123, or a
// bare DOI, which gets the DOI: prefix.
func NormalizePaperID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "https://doi.org/")
	if s2IDPattern.MatchString(id) {
		return id
	}
	if strings.HasPrefix(id, "10.") {
		return "DOI:" + id
	}
	return id
}

// References returns papers cited by paperID (backward snowball).
func (c *Client) References(ctx context.Context, paperID string, maxResults int) (Snowball, error) {
	return c.snowball(ctx, paperID, "references", "citedPaper", maxResults)
}

// Citations returns papers citing paperID (forward snowball).
func (c *Client) Citations(ctx context.Context, paperID string, maxResults int) (Snowball, error) {
	return c.snowball(ctx, paperID, "citations", "citingPaper", maxResults)
}

func (c *Client) snowball(ctx context.Context, paperID, edge, side string, maxResults int) (Snowball, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	id := url.PathEscape(NormalizePaperID(paperID))

	var src apiPaper
	if err := c.get(ctx, "/paper/"+id, url.Values{"fields": {"paperId,title,referenceCount,citationCount"}}, &src); err != nil {
		if failure.Is(err, ErrNotFound) {
			return Snowball{}, failure.New(ErrNotFound, failure.Message("Paper not found: "+paperID))
		}
		return Snowball{}, err
	}

	var body struct {
		Data []map[string]json.RawMessage `json:"data"`
	}
	err := c.get(ctx, "/paper/"+id+"/"+edge, url.Values{
		"fields": {"isInfluential," + neighbourFields},
		"limit":  {strconv.Itoa(min(maxResults, 1000))},
	}, &body)
	if err != nil {
		return Snowball{}, err
	}

	papers := make([]Linked, 0, len(body.Data))
	for _, row := range body.Data {
		var p apiPaper
		if raw, ok := row[side]; ok {
			if err := json.Unmarshal(raw, &p); err != nil {
				return Snowball{}, failure.Wrap(err, failure.WithCode(ErrSemanticScholar))
			}
		}
		if p.PaperID == "" && p.Title == "" {
			continue
		}
		var influential bool
		if raw, ok := row["isInfluential"]; ok {
			_ = json.Unmarshal(raw, &influential)
		}
		papers = append(papers, Linked{
			S2ID:          p.PaperID,
			Title:         p.title(),
			Authors:       formatAuthors(p.Authors),
			Year:          p.Year,
			DOI:           p.doi(),
			CitationCount: deref(p.CitationCount),
			IsInfluential: influential,
		})
	}

	total := deref(src.ReferenceCount)
	if edge == "citations" {
		total = deref(src.CitationCount)
	}
	return Snowball{
		SourcePaper: SourcePaper{Title: src.Title, S2ID: src.PaperID},
		Total:       total,
		Papers:      papers,
	}, nil
}
