// Package anthropic is a minimal client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrMissingKey ErrorCode = "NO_ANTHROPIC_KEY"
	ErrAnthropic  ErrorCode = "ANTHROPIC_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	DefaultBaseURL = "https://api.anthropic.com"
	Version        = "2023-06-01"

	// ModelExtract is used for concept extraction, ModelJudge for the
	// cheaper traversal-depth decision.
	ModelExtract = "claude-opus-4-20250514"
	ModelJudge   = "claude-sonnet-4-20250514"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, failure.New(ErrMissingKey,
			failure.Message("ANTHROPIC_API_KEY environment variable not set"),
		)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{apiKey: apiKey, baseURL: DefaultBaseURL, httpClient: httpClient}, nil
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a single user prompt and returns the first text block.
func (c *Client) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error) {
	body, err := json.Marshal(request{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", failure.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", failure.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrAnthropic), failure.Message("Anthropic request failed"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrAnthropic))
	}
	if resp.StatusCode != http.StatusOK {
		return "", failure.New(ErrAnthropic,
			failure.Message(fmt.Sprintf("Anthropic API returned status %d: %s", resp.StatusCode, truncate(string(raw), 300))),
		)
	}

	var result response
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrAnthropic), failure.Message("Failed to decode Anthropic response"))
	}
	if result.Error != nil {
		return "", failure.New(ErrAnthropic, failure.Message("Anthropic API error: "+result.Error.Message))
	}
	for _, block := range result.Content {
		if block.Type == "text" || block.Type == "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", failure.New(ErrAnthropic, failure.Message("Anthropic API returned no content"))
}

// StripCodeFence returns the body of the first ```json or ``` fence in s,
// or s itself when there is none.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := strings.TrimPrefix(s[start+3:], "json")
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
