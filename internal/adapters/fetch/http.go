// Package fetch downloads whole objects for system archive installation.
// The URL scheme selects the transport: http(s), s3 or az.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// HTTPFetcher downloads objects over plain HTTP(S) GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher. timeout bounds the whole download;
// zero means no limit.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch downloads the object at url into memory.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.NetworkError{URL: url, Op: "fetch", Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{URL: url, Op: "fetch", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.NetworkError{
			URL: url,
			Op:  "fetch",
			Err: fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{URL: url, Op: "fetch", Err: err}
	}
	return data, nil
}
