package fetch

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// S3Fetcher downloads objects addressed as s3://bucket/key.
type S3Fetcher struct {
	client *s3.Client
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Fetcher creates an S3 fetcher.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Fetcher{client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}

// Fetch downloads the object at an s3:// URL into memory.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
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

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host == "" || u.Path == "" {
		return "", "", &domain.ValidationError{
			Field:      "url",
			Value:      rawURL,
			Constraint: "s3://bucket/key",
			Message:    "not a valid S3 object URL",
		}
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
