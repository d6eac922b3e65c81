// Package openai generates text embeddings with the OpenAI embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrMissingKey ErrorCode = "NO_OPENAI_KEY"
	ErrEmbedding  ErrorCode = "EMBEDDING_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL = "https://api.openai.com"
	Model          = "text-embedding-3-small"

	// maxBatchTokens stays well under the 300k tokens-per-request limit
	// since the word based estimate undercounts scientific text.
	maxBatchTokens = 200_000
)

type Client struct {
	apiKey     string
	baseURL    string
	dimensions int
	httpClient *http.Client
}

func NewClient(apiKey string, dimensions int, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, failure.New(ErrMissingKey,
			failure.Message("OPENAI_API_KEY environment variable not set. Add to your shell config: export OPENAI_API_KEY='your-key'"),
		)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{apiKey: apiKey, baseURL: DefaultBaseURL, dimensions: dimensions, httpClient: httpClient}, nil
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// Dimensions reports the configured vector length.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EstimateTokens approximates BPE tokens as 1.3 per word.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// Batches splits texts so the estimated tokens of each batch stay under limit.
func Batches(texts []string, limit int) [][]string {
	var out [][]string
	var cur []string
	tokens := 0
	for _, t := range texts {
		n := EstimateTokens(t)
		if len(cur) > 0 && tokens+n > limit {
			out = append(out, cur)
			cur, tokens = nil, 0
		}
		cur = append(cur, t)
		tokens += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range Batches(texts, maxBatchTokens) {
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: Model, Input: batch, Dimensions: c.dimensions})
	if err != nil {
		return nil, failure.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, failure.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrEmbedding), failure.Message("Failed to generate embeddings"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrEmbedding))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failure.New(ErrEmbedding,
			failure.Message(fmt.Sprintf("Failed to generate embeddings: OpenAI returned status %d", resp.StatusCode)),
			failure.Context{"body": string(raw[:min(len(raw), 300)])},
		)
	}
	var result embedResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrEmbedding), failure.Message("Failed to decode embeddings response"))
	}
	if len(result.Data) != len(batch) {
		return nil, failure.New(ErrEmbedding,
			failure.Message(fmt.Sprintf("Expected %d embeddings, got %d", len(batch), len(result.Data))),
		)
	}
	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
