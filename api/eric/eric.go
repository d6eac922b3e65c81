// Package eric searches the Education Resources Information Center.
package eric

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrHTTP    ErrorCode = "ERIC_HTTP_ERROR"
	ErrRequest ErrorCode = "ERIC_REQUEST_ERROR"
	ErrERIC    ErrorCode = "ERIC_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL = "https://api.ies.ed.gov/eric/"
	MaxResults     = 50
)

type Paper struct {
	ERICID          string  `json:"eric_id"`
	Title           string  `json:"title"`
	Authors         string  `json:"authors"`
	Year            *int    `json:"year"`
	Source          string  `json:"source"`
	DOI             string  `json:"doi"`
	Abstract        *string `json:"abstract"`
	PublicationType string  `json:"publication_type"`
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*s = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type doc struct {
	ID              string          `json:"id"`
	Title           *string         `json:"title"`
	Author          stringList      `json:"author"`
	PublicationYear json.RawMessage `json:"publicationyear"`
	Source          string          `json:"source"`
	DOI             string          `json:"doi"`
	Description     *string         `json:"description"`
	PublicationType stringList      `json:"publicationtype"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns an ERIC client. A nil httpClient gets a 30 second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: DefaultBaseURL}
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// Search queries ERIC, returning at most 50 results.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{
		"search": {query},
		"rows":   {strconv.Itoa(min(maxResults, MaxResults))},
		"format": {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrERIC))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrRequest), failure.Message("Request failed: "+err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, failure.New(ErrHTTP,
			failure.Message(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))),
		)
	}

	var body struct {
		Response struct {
			Docs []doc `json:"docs"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrERIC), failure.Message("Failed to decode ERIC response"))
	}

	papers := make([]Paper, 0, len(body.Response.Docs))
	for _, d := range body.Response.Docs {
		papers = append(papers, d.toPaper())
	}
	return papers, nil
}

func (d doc) toPaper() Paper {
	title := "Untitled"
	if d.Title != nil {
		title = *d.Title
	}
	authors := "Unknown"
	if len(d.Author) > 0 {
		authors = strings.Join(d.Author, ", ")
	}
	var pubType string
	if len(d.PublicationType) > 0 {
		pubType = d.PublicationType[0]
	}
	return Paper{
		ERICID:          d.ID,
		Title:           title,
		Authors:         authors,
		Year:            parseYear(d.PublicationYear),
		Source:          d.Source,
		DOI:             d.DOI,
		Abstract:        d.Description,
		PublicationType: pubType,
	}
}

// parseYear accepts 2020 or "2020".
func parseYear(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
