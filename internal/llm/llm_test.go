package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGemini_Generate(t *testing.T) {
	var gotPrompt, gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")

		var body struct {
			Contents []geminiContent `json:"contents"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && len(body.Contents) > 0 {
			gotPrompt = body.Contents[0].Parts[0].Text
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"42"}]}},{"content":{"parts":[{"text":"43"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{BaseURL: srv.URL, APIKey: "k", Model: "gemini-1.5-pro", Timeout: 5 * time.Second})
	answer, err := c.Generate(context.Background(), "what is the answer?")
	require.NoError(t, err)

	assert.Equal(t, "42", answer)
	assert.Equal(t, "what is the answer?", gotPrompt)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "/v1/models/gemini-1.5-pro:generateContent", gotPath)
}

func TestGemini_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid. Please pass a valid API key."}}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient(GeminiConfig{BaseURL: srv.URL}).Generate(context.Background(), "q")

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusForbidden, svcErr.Status)
	assert.Equal(t, "API key not valid. Please pass a valid API key.", svcErr.Message)
}

func TestGemini_MalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"promptFeedback":{"blockReason":"SAFETY"}}`,
		"no parts":      `{"candidates":[{"content":{}}]}`,
		"not json":      `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewGeminiClient(GeminiConfig{BaseURL: srv.URL}).Generate(context.Background(), "q")
			var svcErr *ServiceError
			assert.ErrorAs(t, err, &svcErr)
		})
	}
}

func TestGemini_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGeminiClient(GeminiConfig{BaseURL: url}).Generate(context.Background(), "q")
	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestOpenAI_Generate(t *testing.T) {
	var gotAuth string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{URL: srv.URL + "/v1/", Key: "sk", Model: "gpt-4o-mini", MaxTokens: 64})
	answer, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "hi there", answer)
	assert.Equal(t, "Bearer sk", gotAuth)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
}

func TestOpenAI_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	var svcErr *ServiceError

	_, err := NewOpenAIClient(OpenAIConfig{URL: srv.URL}).Generate(context.Background(), "q")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusUnauthorized, svcErr.Status)
	assert.Equal(t, "unauthorized", svcErr.Message)

	_, err = NewOpenAIClient(OpenAIConfig{URL: srv.URL, Key: "k"}).Generate(context.Background(), "q")
	require.ErrorAs(t, err, &svcErr)
	assert.Contains(t, err.Error(), "no response from LLM")
}
