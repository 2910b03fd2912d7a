// Package embedding turns chunk and query text into comparable vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects how the upstream model treats the text.
type Mode string

const (
	ModeDocument Mode = "document"
	ModeQuery    Mode = "query"
)

// ErrEmptyInput is returned before any upstream call when a text is empty.
var ErrEmptyInput = errors.New("embedding: input text is empty")

// ServiceError wraps a failed upstream embedding call.
type ServiceError struct {
	Cause error
}

func (e *ServiceError) Error() string {
	return "embedding service error: " + e.Cause.Error()
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Func computes a single embedding.
type Func func(ctx context.Context, text string, mode Mode) ([]float32, error)

// Options tune the calls made through an Embedder.
type Options struct {
	Concurrency int           // parallel calls in EmbedMany, default 1
	Timeout     time.Duration // per call, 0 disables
	RateLimit   float64       // calls per second, 0 disables
}

// Embedder adapts a Func into the document/query embedding contract.
type Embedder struct {
	name    string
	fn      Func
	opts    Options
	limiter *rate.Limiter

	mu        sync.Mutex
	dimension int
}

func New(name string, fn Func, opts Options) *Embedder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	e := &Embedder{name: name, fn: fn, opts: opts}
	if opts.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return e
}

func (e *Embedder) Name() string { return e.name }

// Dimension returns the vector length seen so far, 0 before the first call.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns the embedding of text in the given mode.
func (e *Embedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrEmptyInput
	}
	return e.call(ctx, text, mode)
}

// EmbedMany embeds texts in order, one vector per text. Nothing is sent
// upstream if any text is empty. On failure the remaining calls are cancelled
// and the lowest-index error that is not a cancellation is returned.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyInput)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		// at most Concurrency goroutines exist at a time
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			errs[i] = &ServiceError{Cause: ctx.Err()}
			break
		}

		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := e.call(ctx, t, mode)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			vectors[idx] = vec
		}(i, text)
	}
	wg.Wait()

	// a cancelled sibling reports context.Canceled; prefer the real cause
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = fmt.Errorf("text %d: %w", i, err)
		}
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	if first != nil {
		return nil, first
	}
	return vectors, nil
}

func (e *Embedder) call(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Cause: err}
		}
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	vec, err := e.fn(ctx, text, mode)
	if err != nil {
		return nil, &ServiceError{Cause: err}
	}
	if len(vec) == 0 {
		return nil, &ServiceError{Cause: errors.New("model returned an empty vector")}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimension == 0 {
		e.dimension = len(vec)
	} else if len(vec) != e.dimension {
		return nil, &ServiceError{Cause: fmt.Errorf("model returned %d dimensions, expected %d", len(vec), e.dimension)}
	}
	return vec, nil
}

func checkMode(mode Mode) error {
	switch mode {
	case ModeDocument, ModeQuery:
		return nil
	}
	return fmt.Errorf("embedding: unknown mode %q", mode)
}
