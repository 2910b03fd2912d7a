// Package source downloads documents into per-request memory buffers.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultMaxBytes = 50 << 20

// DownloadError is any failure to fetch the source document.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to download document: status %d", e.Status)
	}
	return fmt.Sprintf("failed to download document: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Download is a fetched document held in memory.
type Download struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads documents over HTTP(S).
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch downloads rawURL. Each call reads into its own buffer.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("unsupported url %q", rawURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("document exceeds %d bytes", f.maxBytes)}
	}

	return &Download{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
