// Package rag wires chunking, embedding, the vector index and generation
// into the ingest and query flows.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docqa/internal/chunker"
	"docqa/internal/embedding"
	"docqa/internal/index"

	"github.com/google/uuid"
)

// NoContextMessage is answered when the document has no retrievable chunks.
const NoContextMessage = "⚠️ No relevant context found."

const DefaultTopK = 3

var ErrInvalidDocument = errors.New("rag: document id and name are required")

// Embedder is the part of embedding.Embedder the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string, mode embedding.Mode) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string, mode embedding.Mode) ([][]float32, error)
}

// Store is the part of index.Index the pipeline needs.
type Store interface {
	Upsert(ctx context.Context, rec index.Record) error
	Query(ctx context.Context, embedding []float32, k int, documentID string) ([]index.Match, error)
}

// Generator produces the final answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Document is extracted text plus its caller-supplied identity.
type Document struct {
	ID   string
	Name string
	Text string
}

// IngestResult summarizes a successful ingestion.
type IngestResult struct {
	Chunks       int    `json:"chunks"`
	DocumentID   string `json:"file_id"`
	DocumentName string `json:"file_name"`
}

// IngestError reports an aborted ingestion. Chunks inserted before the
// failure stay in the index.
type IngestError struct {
	DocumentID string
	Inserted   int
	Total      int
	Err        error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %d of %d chunks stored: %v", e.DocumentID, e.Inserted, e.Total, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Answer is the outcome of a query. Grounded is false for the no-context answer.
type Answer struct {
	Text     string        `json:"response"`
	Grounded bool          `json:"grounded"`
	Sources  []index.Match `json:"sources,omitempty"`
}

// Options configure a Pipeline.
type Options struct {
	Chunker   chunker.Chunker
	Embedder  Embedder
	Store     Store
	Generator Generator
	TopK      int
	Logger    *slog.Logger
}

// Pipeline runs ingestion and retrieval. It holds no per-request state.
type Pipeline struct {
	chunker   chunker.Chunker
	embedder  Embedder
	store     Store
	generator Generator
	topK      int
	logger    *slog.Logger
	newID     func() string
}

func New(opts Options) *Pipeline {
	if opts.Chunker == nil {
		opts.Chunker = chunker.NewTextChunker(chunker.Config{})
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		chunker:   opts.Chunker,
		embedder:  opts.Embedder,
		store:     opts.Store,
		generator: opts.Generator,
		topK:      opts.TopK,
		logger:    opts.Logger,
		newID:     uuid.NewString,
	}
}

// Ingest chunks, embeds and stores a document. Re-ingesting the same id
// appends a new set of chunks.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	if doc.ID == "" || doc.Name == "" {
		return nil, ErrInvalidDocument
	}

	chunks, err := p.chunker.Chunk(doc.Text, doc.Name)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "✂️ split into chunks", "file_id", doc.ID, "chunker", p.chunker.Name(), "chunks", len(chunks))

	vectors, err := p.embedder.EmbedMany(ctx, chunker.Texts(chunks), embedding.ModeDocument)
	if err != nil {
		return nil, &IngestError{DocumentID: doc.ID, Total: len(chunks), Err: err}
	}
	p.logger.InfoContext(ctx, "🧬 generated embeddings", "file_id", doc.ID, "count", len(vectors))

	for i, ch := range chunks {
		rec := index.Record{
			ID:           p.newID(),
			Embedding:    vectors[i],
			Text:         ch.Text,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
		}
		if err := p.store.Upsert(ctx, rec); err != nil {
			return nil, &IngestError{DocumentID: doc.ID, Inserted: i, Total: len(chunks), Err: err}
		}
	}

	return &IngestResult{Chunks: len(chunks), DocumentID: doc.ID, DocumentName: doc.Name}, nil
}

// Retrieve returns the top-k chunks of documentID closest to the question.
func (p *Pipeline) Retrieve(ctx context.Context, question, documentID string) ([]index.Match, error) {
	vec, err := p.embedder.Embed(ctx, question, embedding.ModeQuery)
	if err != nil {
		return nil, err
	}
	return p.store.Query(ctx, vec, p.topK, documentID)
}

// Query answers question from documentID's chunks. Without matches it
// returns the no-context answer and does not call the generator.
func (p *Pipeline) Query(ctx context.Context, question, documentID string) (*Answer, error) {
	matches, err := p.Retrieve(ctx, question, documentID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		p.logger.InfoContext(ctx, "no context for query", "file_id", documentID)
		return &Answer{Text: NoContextMessage}, nil
	}
	p.logger.InfoContext(ctx, "📚 context found", "file_id", documentID, "chunks", len(matches))

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}

	text, err := p.generator.Generate(ctx, BuildPrompt(texts, question))
	if err != nil {
		return nil, err
	}
	return &Answer{Text: text, Grounded: true, Sources: matches}, nil
}
