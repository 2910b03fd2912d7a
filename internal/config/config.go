package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8000"`
	IndexPath  string `env:"INDEX_PATH" envDefault:"./data/index.db"`

	ChunkSize int `env:"CHUNK_SIZE" envDefault:"1000"`
	TopK      int `env:"TOP_K" envDefault:"3"`

	EmbedProvider     string        `env:"EMBED_PROVIDER" envDefault:"ollama"`
	EmbedConcurrency  int           `env:"EMBED_CONCURRENCY" envDefault:"4"`
	EmbedRateLimit    float64       `env:"EMBED_RATE_LIMIT" envDefault:"0"`
	EmbedTaskPrefixes bool          `env:"EMBED_TASK_PREFIXES" envDefault:"true"`
	EmbedTimeout      time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`

	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`

	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	OpenAIEmbedModel string `env:"OPENAI_EMBED_MODEL" envDefault:"text-embedding-3-small"`
	OpenAIChatModel  string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`

	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-pro"`
	GeminiEmbedModel string `env:"GEMINI_EMBED_MODEL" envDefault:"text-embedding-004"`

	GenerationProvider string        `env:"GENERATION_PROVIDER" envDefault:"gemini"`
	GenerationTimeout  time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`
	MaxTokens          int           `env:"MAX_TOKENS" envDefault:"0"`
	Temperature        float64       `env:"TEMPERATURE" envDefault:"0.2"`

	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"60s"`
	MaxDocumentBytes int64         `env:"MAX_DOCUMENT_BYTES" envDefault:"52428800"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func Init(cfg interface{}) error {
	return env.Parse(cfg)
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := Init(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks policy values and that the chosen providers have credentials.
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be > 0, got %d", c.ChunkSize))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be > 0, got %d", c.TopK))
	}
	if c.IndexPath == "" {
		errs = append(errs, errors.New("INDEX_PATH is required"))
	}

	switch strings.ToLower(c.EmbedProvider) {
	case "ollama":
	case "openai":
		if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for EMBED_PROVIDER=openai"))
		}
	case "gemini":
		if c.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for EMBED_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}

	switch strings.ToLower(c.GenerationProvider) {
	case "gemini":
		if c.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for GENERATION_PROVIDER=gemini"))
		}
	case "openai":
		if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for GENERATION_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GENERATION_PROVIDER %q", c.GenerationProvider))
	}

	return errors.Join(errs...)
}
