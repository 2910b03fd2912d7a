package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/index"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/source"
)

// App owns every long-lived dependency. It is built once at startup and
// shared by all handlers.
type App struct {
	cfg      *config.Config
	index    *index.Index
	pipeline *rag.Pipeline
	fetcher  *source.Fetcher
	logger   *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	embedFn, err := newEmbeddingFunc(cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.New(cfg.EmbedProvider, embedFn, embedding.Options{
		Concurrency: cfg.EmbedConcurrency,
		Timeout:     cfg.EmbedTimeout,
		RateLimit:   cfg.EmbedRateLimit,
	})

	generator, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(cfg.IndexPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	pipeline := rag.New(rag.Options{
		Chunker:   chunker.NewTextChunker(chunker.Config{WindowSize: cfg.ChunkSize}),
		Embedder:  embedder,
		Store:     idx,
		Generator: generator,
		TopK:      cfg.TopK,
		Logger:    logger,
	})

	return newApp(cfg, idx, pipeline, source.NewFetcher(cfg.DownloadTimeout, cfg.MaxDocumentBytes), logger), nil
}

func newApp(cfg *config.Config, idx *index.Index, pipeline *rag.Pipeline, fetcher *source.Fetcher, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, index: idx, pipeline: pipeline, fetcher: fetcher, logger: logger}
}

func newEmbeddingFunc(cfg *config.Config) (embedding.Func, error) {
	switch strings.ToLower(cfg.EmbedProvider) {
	case "ollama":
		return embedding.Ollama(cfg.OllamaEmbedModel, cfg.OllamaURL, cfg.EmbedTaskPrefixes), nil
	case "openai":
		return embedding.OpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbedModel), nil
	case "gemini":
		return embedding.Gemini(cfg.GoogleAPIKey, cfg.GeminiBaseURL, cfg.GeminiEmbedModel, &http.Client{}), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
}

func newGenerator(cfg *config.Config) (rag.Generator, error) {
	switch strings.ToLower(cfg.GenerationProvider) {
	case "gemini":
		return llm.NewGeminiClient(llm.GeminiConfig{
			BaseURL: cfg.GeminiBaseURL,
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.GenerationTimeout,
		}), nil
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			URL:         cfg.OpenAIBaseURL,
			Key:         cfg.OpenAIKey,
			Model:       cfg.OpenAIChatModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.GenerationTimeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
}

// Close releases the vector index.
func (a *App) Close() error {
	return a.index.Close()
}

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	PDFURL   string `json:"pdf_url"`
	FileKey  string `json:"file_key"`
	FileName string `json:"file_name"`
}

// IngestURL downloads, extracts and ingests one document.
func (a *App) IngestURL(ctx context.Context, req IngestRequest) (*rag.IngestResult, error) {
	if req.PDFURL == "" || req.FileKey == "" || req.FileName == "" {
		return nil, &ValidationError{Message: "Missing pdf_url, file_key, or file_name"}
	}

	a.logger.InfoContext(ctx, "⬇️ downloading document", "url", req.PDFURL, "file_id", req.FileKey)
	dl, err := a.fetcher.Fetch(ctx, req.PDFURL)
	if err != nil {
		return nil, err
	}

	format := extract.Detect(dl.ContentType, req.FileName, dl.Data)
	return a.ingestBytes(ctx, dl.Data, format, req.FileKey, req.FileName)
}

// IngestFile ingests a local file; the format comes from its extension and content.
func (a *App) IngestFile(ctx context.Context, path, id, name string) (*rag.IngestResult, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	if id == "" {
		id = name
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return a.ingestBytes(ctx, data, extract.Detect("", path, data), id, name)
}

func (a *App) ingestBytes(ctx context.Context, data []byte, format extract.Format, id, name string) (*rag.IngestResult, error) {
	text, err := extract.Text(data, format)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "📄 text extracted", "file_id", id, "format", format, "chars", len(text))

	return a.pipeline.Ingest(ctx, rag.Document{ID: id, Name: name, Text: text})
}

// Ask answers question against one document.
func (a *App) Ask(ctx context.Context, question, documentID string) (*rag.Answer, error) {
	if question == "" || documentID == "" {
		return nil, &ValidationError{Message: "Missing query or file_id"}
	}
	return a.pipeline.Query(ctx, question, documentID)
}

// Stats reports the vector index contents.
func (a *App) Stats(ctx context.Context) (*index.Stats, error) {
	return a.index.Stats(ctx)
}
