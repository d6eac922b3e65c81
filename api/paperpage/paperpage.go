// Package paperpage reads a paper landing page: the Highwire/Dublin Core
// citation meta tags publishers embed, plus the article body as markdown.
package paperpage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	html2md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ka2n/litrev/api/cache"
	"github.com/ka2n/litrev/log"
	"github.com/mackee/go-readability"
	"github.com/morikuni/failure/v2"
	"golang.org/x/net/html"
)

type ErrorCode string

const (
	ErrFetch        ErrorCode = "PAGE_FETCH_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_PAPER_URL"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// MaxContent caps the markdown body returned to the agent.
const MaxContent = 20000

const userAgent = "Mozilla/5.0 (compatible; litrev/1.0; +mailto:litrev-mcp@example.com)"

type Citation struct {
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Date     string   `json:"date,omitempty"`
	Journal  string   `json:"journal,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	PDFURL   string   `json:"pdf_url,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
}

type Page struct {
	URL       string   `json:"url"`
	Citation  Citation `json:"citation"`
	Content   string   `json:"content"`
	Truncated bool     `json:"truncated"`
}

type Reader struct {
	httpClient *http.Client
	cache      *cache.Cache[Page]
}

func NewReader(httpClient *http.Client) *Reader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Reader{httpClient: httpClient}
}

// WithCache keeps parsed pages in c, keyed by the resolved URL.
func (r *Reader) WithCache(c *cache.Cache[Page]) *Reader {
	r.cache = c
	return r
}

// ResolveURL turns a DOI (bare, doi: prefixed or a doi.org link) into a URL.
// Other http(s) URLs pass through.
func ResolveURL(doiOrURL string) (*url.URL, error) {
	s := strings.TrimSpace(doiOrURL)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "doi:"):
		s = "https://doi.org/" + strings.TrimSpace(s[4:])
	case strings.HasPrefix(s, "10."):
		s = "https://doi.org/" + s
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, failure.New(ErrInvalidInput,
			failure.Message("Expected a DOI or an http(s) URL"),
			failure.Context{"input": doiOrURL},
		)
	}
	return u, nil
}

// Read returns the landing page for a DOI or URL, served from the cache
// when one is configured and holds a fresh copy.
func (r *Reader) Read(ctx context.Context, doiOrURL string) (Page, error) {
	return r.read(ctx, doiOrURL, false)
}

// Refresh is Read without the cache lookup. The fetched page replaces the
// cached one.
func (r *Reader) Refresh(ctx context.Context, doiOrURL string) (Page, error) {
	return r.read(ctx, doiOrURL, true)
}

func (r *Reader) read(ctx context.Context, doiOrURL string, refresh bool) (Page, error) {
	u, err := ResolveURL(doiOrURL)
	if err != nil {
		return Page{}, err
	}
	if r.cache == nil {
		return r.load(ctx, u)
	}
	page, err := r.cache.GetOrSet(u.String(), func() (Page, error) { return r.load(ctx, u) }, refresh)
	if err != nil && page.URL != "" {
		// the page was fetched but could not be written to the cache
		log.Warn("paper page cache write failed", "url", u.String(), "error", err)
		return page, nil
	}
	return page, err
}

func (r *Reader) load(ctx context.Context, u *url.URL) (Page, error) {
	body, final, err := r.fetch(ctx, u)
	if err != nil {
		return Page{}, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Page{}, failure.Wrap(err, failure.WithCode(ErrFetch),
			failure.Message("Failed to parse HTML response"),
			failure.Context{"url": final.String()})
	}
	cit := extractCitation(doc)

	md, err := markdown(final, string(body))
	if err != nil {
		md = ""
	}
	md = strings.TrimSpace(md)
	truncated := false
	if r := []rune(md); len(r) > MaxContent {
		md = string(r[:MaxContent])
		truncated = true
	}
	return Page{URL: final.String(), Citation: cit, Content: md, Truncated: truncated}, nil
}

func (r *Reader) fetch(ctx context.Context, u *url.URL) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, failure.Wrap(err, failure.WithCode(ErrFetch))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil, failure.Wrap(err, failure.WithCode(ErrFetch),
			failure.Message("Failed to fetch paper page"),
			failure.Context{"url": u.String()})
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, failure.New(ErrFetch,
			failure.Message(fmt.Sprintf("Paper page returned HTTP %d", resp.StatusCode)),
			failure.Context{"url": u.String()})
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, failure.Wrap(err, failure.WithCode(ErrFetch))
	}
	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return body, final, nil
}

// extractCitation walks the document collecting citation_* and dc.* meta tags.
// Highwire tags take precedence over Dublin Core.
func extractCitation(doc *html.Node) Citation {
	var c Citation
	var dcAuthors []string
	dc := map[string]string{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name", "property":
					if name == "" {
						name = strings.ToLower(attr.Val)
					}
				case "content":
					content = strings.TrimSpace(attr.Val)
				}
			}
			if content != "" {
				switch name {
				case "citation_title":
					c.Title = content
				case "citation_author":
					c.Authors = append(c.Authors, content)
				case "citation_publication_date", "citation_date":
					if c.Date == "" {
						c.Date = content
					}
				case "citation_journal_title":
					c.Journal = content
				case "citation_doi":
					c.DOI = strings.TrimPrefix(content, "doi:")
				case "citation_pdf_url":
					c.PDFURL = content
				case "citation_abstract":
					c.Abstract = content
				case "dc.creator":
					dcAuthors = append(dcAuthors, content)
				case "dc.title", "dc.date", "dc.identifier", "dc.description", "og:title", "description":
					if _, ok := dc[name]; !ok {
						dc[name] = content
					}
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)

	if c.Title == "" {
		c.Title = firstNonEmpty(dc["dc.title"], dc["og:title"])
	}
	if len(c.Authors) == 0 {
		c.Authors = dcAuthors
	}
	if c.Date == "" {
		c.Date = dc["dc.date"]
	}
	if c.DOI == "" {
		if id := dc["dc.identifier"]; strings.Contains(id, "10.") {
			c.DOI = id[strings.Index(id, "10."):]
		}
	}
	if c.Abstract == "" {
		c.Abstract = firstNonEmpty(dc["dc.description"], dc["description"])
	}
	return c
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// markdown extracts the main article with readability and falls back to a
// whole-page html-to-markdown conversion.
func markdown(u *url.URL, body string) (string, error) {
	article, err := readability.Extract(body, readability.DefaultOptions())
	if err == nil && article.Root != nil {
		return readability.ToMarkdown(article.Root), nil
	}

	converter := html2md.NewConverter(u.Host, true, &html2md.Options{})
	return converter.ConvertString(body)
}
