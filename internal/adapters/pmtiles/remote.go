package pmtiles

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// httpRange implements rangeSource over HTTP byte-range requests.
type httpRange struct {
	client    *http.Client
	url       string
	userAgent string
}

func (h *httpRange) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, &domain.NetworkError{URL: h.url, Op: "read_range", Err: err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{URL: h.url, Op: "read_range", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, &domain.NetworkError{
			URL: h.url,
			Op:  "read_range",
			Err: fmt.Errorf("expected 206 Partial Content, got %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	if err != nil {
		return nil, &domain.NetworkError{URL: h.url, Op: "read_range", Err: err}
	}
	if uint64(len(data)) != length {
		return nil, &domain.NetworkError{
			URL: h.url,
			Op:  "read_range",
			Err: fmt.Errorf("short range read: want %d bytes, got %d", length, len(data)),
		}
	}
	return data, nil
}

func (h *httpRange) Name() string { return h.url }

// Remote is a remote archive backend over HTTP byte ranges. It implements the
// output.RemoteArchive port; directory reads are cached in memory so repeated
// plans against the same instance don't re-fetch the index.
type Remote struct {
	arch *archive
}

// RemoteConfig holds remote backend configuration.
type RemoteConfig struct {
	Client    *http.Client
	UserAgent string
}

// OpenRemote opens a remote archive by URL, fetching and parsing its header.
func OpenRemote(ctx context.Context, url string, cfg RemoteConfig) (*Remote, error) {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	arch, err := newArchive(ctx, &httpRange{client: client, url: url, userAgent: cfg.UserAgent})
	if err != nil {
		return nil, err
	}
	return &Remote{arch: arch}, nil
}

// Header returns the remote archive's bounds and zoom range.
func (r *Remote) Header() domain.ArchiveHeader {
	return r.arch.header.archiveHeader()
}

// RemoteOpener implements the output.RemoteArchiveOpener port.
type RemoteOpener struct {
	Config RemoteConfig
}

// OpenRemote implements output.RemoteArchiveOpener.
func (o *RemoteOpener) OpenRemote(ctx context.Context, url string) (output.RemoteArchive, error) {
	return OpenRemote(ctx, url, o.Config)
}
