package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// maxDocumentBytes bounds a fetched catalog document.
const maxDocumentBytes = 4 << 20

// ErrNotModified reports that the remote catalog is unchanged since the
// last successful fetch.
var ErrNotModified = errors.New("catalog not modified")

// Fetcher downloads the catalog document from a remote URL. Repeat
// fetches are conditional on the last ETag the server sent.
type Fetcher struct {
	sourceURL string
	client    *http.Client
	logger    *slog.Logger

	mu   sync.Mutex
	etag string
}

// NewFetcher creates a Fetcher for sourceURL.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch returns the raw document, or ErrNotModified when the server
// answers 304 to the conditional request.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.sourceURL == "" {
		return nil, errors.New("no catalog source URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	f.mu.Unlock()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, ErrNotModified
	default:
		return nil, fmt.Errorf("catalog source %s returned %s", f.sourceURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("catalog document exceeds %d byte limit", maxDocumentBytes)
	}

	f.mu.Lock()
	f.etag = resp.Header.Get("ETag")
	f.mu.Unlock()

	f.logger.Info("catalog fetched",
		"source_url", f.sourceURL,
		"bytes", len(body),
		"etag", resp.Header.Get("ETag"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// forget drops the remembered ETag so the next fetch is unconditional.
func (f *Fetcher) forget() {
	f.mu.Lock()
	f.etag = ""
	f.mu.Unlock()
}
