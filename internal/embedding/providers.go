package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/philippgille/chromem-go"
)

// Task prefixes expected by nomic-embed-text.
var nomicPrefixes = map[Mode]string{
	ModeDocument: "search_document: ",
	ModeQuery:    "search_query: ",
}

// FromChromem adapts a chromem embedding function. prefixes, if set, are
// prepended per mode; both modes still hit the same model.
func FromChromem(fn chromem.EmbeddingFunc, prefixes map[Mode]string) Func {
	return func(ctx context.Context, text string, mode Mode) ([]float32, error) {
		return fn(ctx, prefixes[mode]+text)
	}
}

// Ollama embeds through a local Ollama server.
func Ollama(model, baseURL string, taskPrefixes bool) Func {
	fn := chromem.NewEmbeddingFuncOllama(model, strings.TrimRight(baseURL, "/")+"/api")
	if !taskPrefixes {
		return FromChromem(fn, nil)
	}
	return FromChromem(fn, nomicPrefixes)
}

// OpenAI embeds through the OpenAI API, or any compatible server when baseURL is set.
func OpenAI(apiKey, baseURL, model string) Func {
	if baseURL == "" {
		return FromChromem(chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), nil)
	}
	return FromChromem(chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil), nil)
}

var geminiTaskTypes = map[Mode]string{
	ModeDocument: "RETRIEVAL_DOCUMENT",
	ModeQuery:    "RETRIEVAL_QUERY",
}

// Gemini embeds with the Generative Language embedContent endpoint. The
// mode is sent as the task type.
func Gemini(apiKey, baseURL, model string, client *http.Client) Func {
	if client == nil {
		client = http.DefaultClient
	}
	model = strings.TrimPrefix(model, "models/")
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s",
		strings.TrimRight(baseURL, "/"), model, url.QueryEscape(apiKey))

	type part struct {
		Text string `json:"text"`
	}
	type request struct {
		Model   string `json:"model"`
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		TaskType string `json:"taskType"`
	}

	return func(ctx context.Context, text string, mode Mode) ([]float32, error) {
		body := request{Model: "models/" + model, TaskType: geminiTaskTypes[mode]}
		body.Content.Parts = []part{{Text: text}}

		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}

		var out struct {
			Embedding *struct {
				Values []float32 `json:"values"`
			} `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if out.Embedding == nil {
			return nil, errors.New("response has no embedding")
		}
		return out.Embedding.Values, nil
	}
}
