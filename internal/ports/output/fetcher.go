package output

import "context"

// ObjectFetcher defines the secondary port for fetching a whole remote object
// into memory, used when installing system archives.
type ObjectFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
