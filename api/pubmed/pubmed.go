// Package pubmed searches PubMed through the NCBI E-utilities.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	html2md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/morikuni/failure/v2"
	"golang.org/x/time/rate"
)

type ErrorCode string

const (
	ErrPubMed ErrorCode = "PUBMED_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	MaxResults     = 50
	tool           = "litrev"
	email          = "litrev-mcp@example.com"
)

type Paper struct {
	PMID     string `json:"pmid"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Year     string `json:"year"`
	Journal  string `json:"journal"`
	DOI      string `json:"doi"`
	Abstract string `json:"abstract"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient returns a PubMed client. NCBI allows 3 requests per second
// without an API key and 10 with one.
func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rps := 3
	if apiKey != "" {
		rps = 10
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrPubMed))
	}
	params.Set("tool", tool)
	params.Set("email", email)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrPubMed))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrPubMed), failure.Message("Failed to reach NCBI E-utilities"))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, failure.New(ErrPubMed,
			failure.Message(fmt.Sprintf("NCBI returned HTTP %d", resp.StatusCode)),
			failure.Context{"endpoint": endpoint},
		)
	}
	return resp, nil
}

// Search runs esearch sorted by relevance then fetches each hit with efetch.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	maxResults = min(maxResults, MaxResults)

	ids, err := c.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Paper{}, nil
	}
	return c.fetch(ctx, ids)
}

func (c *Client) search(ctx context.Context, query string, retmax int) ([]string, error) {
	resp, err := c.get(ctx, "esearch.fcgi", url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(retmax)},
		"sort":    {"relevance"},
		"retmode": {"json"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrPubMed), failure.Message("Failed to decode esearch response"))
	}
	return body.ESearchResult.IDList, nil
}

type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type markup struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title   markup `xml:"ArticleTitle"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Authors []struct {
				LastName string `xml:"LastName"`
				Initials string `xml:"Initials"`
			} `xml:"AuthorList>Author"`
			Abstract []markup `xml:"Abstract>AbstractText"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	ArticleIDs []struct {
		IDType string `xml:"IdType,attr"`
		Value  string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]Paper, error) {
	resp, err := c.get(ctx, "efetch.fcgi", url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"rettype": {"medline"},
		"retmode": {"xml"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var set articleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrPubMed), failure.Message("Failed to decode efetch response"))
	}

	papers := make([]Paper, 0, len(set.Articles))
	for _, a := range set.Articles {
		papers = append(papers, toPaper(a))
	}
	return papers, nil
}

func toPaper(a pubmedArticle) Paper {
	art := a.Citation.Article

	var authors []string
	for _, au := range art.Authors {
		if au.LastName == "" {
			continue
		}
		if au.Initials != "" {
			authors = append(authors, au.LastName+" "+au.Initials)
		} else {
			authors = append(authors, au.LastName)
		}
	}
	authorStr := "Unknown"
	if len(authors) > 0 {
		authorStr = strings.Join(authors, ", ")
	}

	year := art.Journal.PubDate.Year
	if year == "" {
		// MedlineDate looks like "2020 Jan-Feb"
		if f := strings.Fields(art.Journal.PubDate.MedlineDate); len(f) > 0 {
			year = f[0]
		}
	}

	var doi string
	for _, id := range a.ArticleIDs {
		if id.IDType == "doi" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}

	parts := make([]string, 0, len(art.Abstract))
	for _, p := range art.Abstract {
		text := plainText(p.Inner)
		if p.Label != "" {
			text = p.Label + ": " + text
		}
		parts = append(parts, text)
	}

	return Paper{
		PMID:     strings.TrimSpace(a.Citation.PMID),
		Title:    plainText(art.Title.Inner),
		Authors:  authorStr,
		Year:     year,
		Journal:  art.Journal.Title,
		DOI:      doi,
		Abstract: strings.Join(parts, " "),
	}
}

// plainText converts inline markup such as <i> or <sup> to markdown and
// decodes entities.
func plainText(inner string) string {
	inner = strings.TrimSpace(inner)
	if !strings.ContainsAny(inner, "<&") {
		return inner
	}
	conv := html2md.NewConverter("", true, &html2md.Options{})
	md, err := conv.ConvertString(inner)
	if err != nil {
		return inner
	}
	return strings.TrimSpace(md)
}
