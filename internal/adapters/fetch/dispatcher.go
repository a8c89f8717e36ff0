package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// Dispatcher routes Fetch calls to the transport matching the URL scheme.
// It implements the output.ObjectFetcher port. Transports left nil reject
// URLs of their scheme.
type Dispatcher struct {
	HTTP  output.ObjectFetcher
	S3    output.ObjectFetcher
	Azure output.ObjectFetcher
}

// Fetch downloads the object at rawURL with the transport its scheme names.
func (d *Dispatcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.ValidationError{
			Field:      "url",
			Value:      rawURL,
			Constraint: "absolute URL",
			Message:    "unparseable download URL",
		}
	}

	var f output.ObjectFetcher
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		f = d.HTTP
	case "s3":
		f = d.S3
	case "az":
		f = d.Azure
	}
	if f == nil {
		return nil, &domain.ValidationError{
			Field:      "url",
			Value:      rawURL,
			Constraint: "http(s)://, s3:// or az://",
			Message:    "no transport configured for URL scheme",
		}
	}
	return f.Fetch(ctx, rawURL)
}
