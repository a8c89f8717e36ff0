package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeReader is an in-memory ArchiveReader.
type fakeReader struct {
	header  domain.ArchiveHeader
	tiles   map[domain.TileCoordinate][]byte
	readErr error
	closed  bool
}

func (r *fakeReader) Header() domain.ArchiveHeader { return r.header }

func (r *fakeReader) ReadTile(_ context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	if r.readErr != nil {
		return nil, false, r.readErr
	}
	data, ok := r.tiles[coord]
	return data, ok, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// fakeOpener maps base file names to canned readers or open errors. When
// catchAll is set, unknown names open it instead of failing.
type fakeOpener struct {
	mu       sync.Mutex
	readers  map[string]*fakeReader
	errs     map[string]error
	catchAll *fakeReader
	opened   []string
}

func (o *fakeOpener) Open(_ context.Context, path string) (output.ArchiveReader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	name := filepath.Base(path)
	o.opened = append(o.opened, name)
	if err, ok := o.errs[name]; ok {
		return nil, err
	}
	if r, ok := o.readers[name]; ok {
		return r, nil
	}
	if o.catchAll != nil {
		return o.catchAll, nil
	}
	return nil, fmt.Errorf("no canned reader for %s", name)
}

// fakeBackend is an in-memory RemoteArchive whose Extract writes a fixed
// payload, or fails partway through.
type fakeBackend struct {
	header     domain.ArchiveHeader
	payload    []byte
	planErr    error
	extractErr error

	planCalls    int
	extractCalls int
}

type fakePlan struct {
	bounds domain.Bounds
	bytes  uint64
	count  uint64
}

func (p *fakePlan) TileDataLength() uint64 { return p.bytes }
func (p *fakePlan) TileCount() uint64      { return p.count }

func (b *fakeBackend) Header() domain.ArchiveHeader { return b.header }

func (b *fakeBackend) Plan(_ context.Context, bounds domain.Bounds, sink output.ProgressSink) (output.ExtractionPlan, error) {
	b.planCalls++
	if b.planErr != nil {
		return nil, b.planErr
	}
	if sink != nil {
		sink.OnProgress(1)
	}
	return &fakePlan{bounds: bounds, bytes: uint64(len(b.payload)), count: 1}, nil
}

func (b *fakeBackend) Extract(_ context.Context, plan output.ExtractionPlan, w io.Writer, sink output.ProgressSink) error {
	b.extractCalls++
	if _, ok := plan.(*fakePlan); !ok {
		return fmt.Errorf("foreign plan %T", plan)
	}
	if b.extractErr != nil {
		// Partial write before the failure.
		_, _ = w.Write(b.payload[:len(b.payload)/2])
		return b.extractErr
	}
	if _, err := w.Write(b.payload); err != nil {
		return err
	}
	if sink != nil {
		sink.OnProgress(1)
	}
	return nil
}

// fakeRemoteOpener counts opens and can fail.
type fakeRemoteOpener struct {
	backend *fakeBackend
	openErr error
	opens   int
}

func (o *fakeRemoteOpener) OpenRemote(_ context.Context, _ string) (output.RemoteArchive, error) {
	o.opens++
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.backend, nil
}

// countingFetcher returns a fixed body and records calls.
type countingFetcher struct {
	body  []byte
	err   error
	calls int
	urls  []string
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

// recordingMetrics counts tile request outcomes.
type recordingMetrics struct {
	output.NoOpMetrics
	mu       sync.Mutex
	requests map[string]int
	sources  int
}

func (m *recordingMetrics) IncTileRequest(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string]int)
	}
	m.requests[status]++
}

func (m *recordingMetrics) SetSourcesLoaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = count
}
