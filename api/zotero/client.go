// Package zotero talks to the Zotero Web API v3 and maps library items to
// the paper records used across litrev.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrAuthFailed              ErrorCode = "ZOTERO_AUTH_FAILED"
	ErrNotFound                ErrorCode = "ZOTERO_NOT_FOUND"
	ErrZotero                  ErrorCode = "ZOTERO_ERROR"
	ErrCreateFailed            ErrorCode = "ZOTERO_CREATE_FAILED"
	ErrCollectionNotConfigured ErrorCode = "COLLECTION_NOT_CONFIGURED"
	ErrMissingMetadata         ErrorCode = "MISSING_METADATA"
	ErrInvalidStatus           ErrorCode = "INVALID_STATUS"
	ErrConfirmationRequired    ErrorCode = "CONFIRMATION_REQUIRED"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL = "https://api.zotero.org"
	pageSize       = 100
)

type Creator struct {
	CreatorType string `json:"creatorType"`
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
}

type Tag struct {
	Tag  string `json:"tag"`
	Type int    `json:"type,omitempty"`
}

// ItemData holds the item fields litrev reads or writes. Unknown fields are
// left untouched because updates only PATCH the tags.
type ItemData struct {
	Key         string    `json:"key,omitempty"`
	Version     int       `json:"version,omitempty"`
	ItemType    string    `json:"itemType"`
	Title       string    `json:"title,omitempty"`
	Creators    []Creator `json:"creators,omitempty"`
	Date        string    `json:"date,omitempty"`
	DOI         string    `json:"DOI,omitempty"`
	Extra       string    `json:"extra,omitempty"`
	Tags        []Tag     `json:"tags"`
	Collections []string  `json:"collections,omitempty"`
	DateAdded   string    `json:"dateAdded,omitempty"`
}

type Item struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Data    ItemData `json:"data"`
}

type CollectionData struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	ParentCollection any    `json:"parentCollection,omitempty"`
}

type Collection struct {
	Key  string         `json:"key"`
	Data CollectionData `json:"data"`
	Meta struct {
		NumItems int `json:"numItems"`
	} `json:"meta"`
}

// ParentKey returns the parent collection key. The API reports false for
// top-level collections.
func (c CollectionData) ParentKey() string {
	if s, ok := c.ParentCollection.(string); ok {
		return s
	}
	return ""
}

// Query narrows item listings. Limit 0 fetches every page.
type Query struct {
	Q     string
	Limit int
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	apiKey     string
}

// NewClient returns a client for the given user library. A nil httpClient
// uses http.DefaultClient.
func NewClient(userID, apiKey string, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, failure.New(ErrAuthFailed, failure.Message("ZOTERO_API_KEY environment variable is not set"))
	}
	if userID == "" {
		return nil, failure.New(ErrAuthFailed, failure.Message("ZOTERO_USER_ID environment variable is not set"))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		userID:     userID,
		apiKey:     apiKey,
	}, nil
}

// WithBaseURL points the client at another API host.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	u := fmt.Sprintf("%s/users/%s%s", c.baseURL, c.userID, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, failure.Wrap(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, failure.Wrap(err)
	}
	req.Header.Set("Zotero-API-Key", c.apiKey)
	req.Header.Set("Zotero-API-Version", "3")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrZotero),
			failure.Message("Failed to reach the Zotero API"),
			failure.Context{"url": req.URL.Path},
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := ErrZotero
		if resp.StatusCode == http.StatusForbidden {
			code = ErrAuthFailed
		}
		return resp, failure.New(code,
			failure.Message(fmt.Sprintf("Zotero API returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))),
			failure.Context{"method": req.Method, "url": req.URL.Path},
		)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, failure.Wrap(err, failure.WithCode(ErrZotero), failure.Message("Failed to decode Zotero response"))
		}
	}
	return resp, nil
}

// Collections lists every collection in the library.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	var all []Collection
	for start := 0; ; start += pageSize {
		params := url.Values{"limit": {strconv.Itoa(pageSize)}, "start": {strconv.Itoa(start)}}
		req, err := c.newRequest(ctx, http.MethodGet, "/collections", params, nil)
		if err != nil {
			return nil, err
		}
		var page []Collection
		resp, err := c.do(req, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize || len(all) >= totalResults(resp) {
			return all, nil
		}
	}
}

// Items lists non-attachment items of the whole library.
func (c *Client) Items(ctx context.Context, q Query) ([]Item, error) {
	return c.listItems(ctx, "/items", q)
}

// CollectionItems lists non-attachment items of one collection.
func (c *Client) CollectionItems(ctx context.Context, collectionKey string, q Query) ([]Item, error) {
	return c.listItems(ctx, "/collections/"+url.PathEscape(collectionKey)+"/items", q)
}

func (c *Client) listItems(ctx context.Context, path string, q Query) ([]Item, error) {
	var all []Item
	for start := 0; ; start += pageSize {
		limit := pageSize
		if q.Limit > 0 && q.Limit-len(all) < limit {
			limit = q.Limit - len(all)
		}
		params := url.Values{
			"itemType": {"-attachment"},
			"limit":    {strconv.Itoa(limit)},
			"start":    {strconv.Itoa(start)},
		}
		if q.Q != "" {
			params.Set("q", q.Q)
		}
		req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return nil, err
		}
		var page []Item
		resp, err := c.do(req, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < limit || len(all) >= totalResults(resp) || (q.Limit > 0 && len(all) >= q.Limit) {
			return all, nil
		}
	}
}

func totalResults(resp *http.Response) int {
	n, err := strconv.Atoi(resp.Header.Get("Total-Results"))
	if err != nil {
		return 0
	}
	return n
}

// Item fetches a single item by key.
func (c *Client) Item(ctx context.Context, key string) (Item, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/items/"+url.PathEscape(key), nil, nil)
	if err != nil {
		return Item{}, err
	}
	var item Item
	if _, err := c.do(req, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// writeResponse is the multi-object write response of the Zotero API.
type writeResponse struct {
	Successful map[string]json.RawMessage `json:"successful"`
	Success    map[string]string          `json:"success"`
	Failed     map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

func (w writeResponse) firstKey() (string, error) {
	if k, ok := w.Success["0"]; ok {
		return k, nil
	}
	if f, ok := w.Failed["0"]; ok {
		return "", failure.New(ErrCreateFailed, failure.Message(fmt.Sprintf("%d: %s", f.Code, f.Message)))
	}
	return "", failure.New(ErrCreateFailed, failure.Message("Unknown error creating object"))
}

// CreateCollection creates a collection and returns its key.
func (c *Client) CreateCollection(ctx context.Context, name, parentKey string) (string, error) {
	data := map[string]any{"name": name}
	if parentKey != "" {
		data["parentCollection"] = parentKey
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/collections", nil, []any{data})
	if err != nil {
		return "", err
	}
	var wr writeResponse
	if _, err := c.do(req, &wr); err != nil {
		return "", err
	}
	return wr.firstKey()
}

// CreateItem creates an item and returns its key.
func (c *Client) CreateItem(ctx context.Context, data ItemData) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/items", nil, []ItemData{data})
	if err != nil {
		return "", err
	}
	var wr writeResponse
	if _, err := c.do(req, &wr); err != nil {
		return "", err
	}
	return wr.firstKey()
}

// SetTags replaces the tags of an item.
func (c *Client) SetTags(ctx context.Context, item Item, tags []Tag) error {
	req, err := c.newRequest(ctx, http.MethodPatch, "/items/"+url.PathEscape(item.Key), nil, map[string]any{"tags": tags})
	if err != nil {
		return err
	}
	req.Header.Set("If-Unmodified-Since-Version", strconv.Itoa(item.Version))
	_, err = c.do(req, nil)
	return err
}

// DeleteItem deletes an item from the library.
func (c *Client) DeleteItem(ctx context.Context, item Item) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/items/"+url.PathEscape(item.Key), nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("If-Unmodified-Since-Version", strconv.Itoa(item.Version))
	_, err = c.do(req, nil)
	return err
}
