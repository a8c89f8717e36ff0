package fetch

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// AzureFetcher downloads blobs addressed as az://container/blob.
type AzureFetcher struct {
	client *azblob.Client
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
}

// NewAzureFetcher creates an Azure Blob Storage fetcher.
func NewAzureFetcher(cfg AzureConfig) (*AzureFetcher, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		return &AzureFetcher{client: client}, nil
	}

	serviceURL := "https://" + cfg.AccountName + ".blob.core.windows.net/"
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureFetcher{client: client}, nil
}

// Fetch downloads the blob at an az:// URL into memory.
func (f *AzureFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	container, blob, err := parseAzureURL(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, &domain.NetworkError{URL: rawURL, Op: "fetch", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{URL: rawURL, Op: "fetch", Err: err}
	}
	return data, nil
}

func parseAzureURL(rawURL string) (container, blob string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "az" || u.Host == "" || u.Path == "" {
		return "", "", &domain.ValidationError{
			Field:      "url",
			Value:      rawURL,
			Constraint: "az://container/blob",
			Message:    "not a valid Azure blob URL",
		}
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
