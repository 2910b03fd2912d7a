package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures GeminiClient.
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	endpoint string
	client   *http.Client
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	return &GeminiClient{
		endpoint: fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s",
			strings.TrimRight(cfg.BaseURL, "/"), model, url.QueryEscape(cfg.APIKey)),
		client: newHTTPClient(cfg.Timeout),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// Generate returns the text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := struct {
		Contents []geminiContent `json:"contents"`
	}{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ServiceError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError(resp)
	}

	var response struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &ServiceError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", &ServiceError{Status: resp.StatusCode, Message: "response has no candidates"}
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}
