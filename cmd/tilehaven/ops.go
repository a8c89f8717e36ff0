package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/tilehaven/tilehaven/internal/adapters/archive"
	"github.com/tilehaven/tilehaven/internal/adapters/fetch"
	"github.com/tilehaven/tilehaven/internal/adapters/pmtiles"
	"github.com/tilehaven/tilehaven/internal/application"
	"github.com/tilehaven/tilehaven/internal/config"
	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

var (
	extractBounds string
	fetchURL      string
	fetchDest     string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a bounded region from the remote archive",
	Long: `Extract downloads every tile intersecting the given bounding box from
the configured remote archive into a new user extract, which the server
picks up on its next start (or immediately via the storage watcher).`,
	RunE: runExtract,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a complete archive into the system directory",
	RunE:  runFetch,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered tile archives",
	RunE:  runSources,
}

var removeCmd = &cobra.Command{
	Use:   "remove <file-name>",
	Short: "Delete a user extract by file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	extractCmd.Flags().StringVar(&extractBounds, "bounds", "",
		"bounding box as maxLat,maxLon,minLat,minLon")
	_ = extractCmd.MarkFlagRequired("bounds")

	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "archive URL (http(s)://, s3:// or az://)")
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "", "destination file name")
	_ = fetchCmd.MarkFlagRequired("url")
	_ = fetchCmd.MarkFlagRequired("dest")
}

// newService builds a service over local storage for one-shot commands,
// without the HTTP server or the storage watcher.
func newService(ctx context.Context) (*application.Service, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	collection := application.NewTileCollection(
		cfg.Storage.TilesRoot(),
		archive.Opener{},
		&output.NoOpMetrics{},
		logger,
	)
	if err := collection.LoadFromStorage(ctx); err != nil {
		return nil, nil, err
	}

	extractor := application.NewExtractor(
		cfg.Extract.SourceURL,
		&pmtiles.RemoteOpener{
			Config: pmtiles.RemoteConfig{
				Client:    &http.Client{Timeout: cfg.Extract.Timeout},
				UserAgent: cfg.Extract.UserAgent,
			},
		},
		logger,
	)

	fetcher := &fetch.Dispatcher{
		HTTP: fetch.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Extract.UserAgent),
	}
	if cfg.Fetch.S3.Region != "" {
		s3f, err := fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:          cfg.Fetch.S3.Region,
			Endpoint:        cfg.Fetch.S3.Endpoint,
			AccessKeyID:     cfg.Fetch.S3.AccessKeyID,
			SecretAccessKey: cfg.Fetch.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		fetcher.S3 = s3f
	}
	if cfg.Fetch.Azure.AccountName != "" || cfg.Fetch.Azure.ConnectionString != "" {
		azf, err := fetch.NewAzureFetcher(fetch.AzureConfig{
			AccountName:      cfg.Fetch.Azure.AccountName,
			AccountKey:       cfg.Fetch.Azure.AccountKey,
			ConnectionString: cfg.Fetch.Azure.ConnectionString,
		})
		if err != nil {
			return nil, nil, err
		}
		fetcher.Azure = azf
	}

	return application.NewService(collection, extractor, fetcher, &output.NoOpMetrics{}, logger), cfg, nil
}

func runExtract(cmd *cobra.Command, _ []string) error {
	bounds, err := parseBoundsFlag(extractBounds)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	header, err := svc.RemoteHeader(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Source: bounds %s, zoom %d-%d\n", header.Bounds.String(), header.MinZoom, header.MaxZoom)

	planBar := pb.New(100).Prefix("Planning   : ")
	planBar.Start()
	plan, err := svc.PrepareExtract(ctx, bounds, barSink(planBar))
	planBar.Finish()
	if err != nil {
		return err
	}
	fmt.Printf("Plan: %d tiles, %d tile bytes\n", plan.TileCount(), plan.TileDataLength())

	dlBar := pb.New(100).Prefix("Downloading: ")
	dlBar.Start()
	record, err := svc.ExecuteExtract(ctx, plan, barSink(dlBar))
	dlBar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("Extracted %s (%d bytes, bounds %s)\n",
		record.FileName, record.FileSize, record.Bounds.String())
	return nil
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.DownloadSystemIfAbsent(ctx, fetchURL, fetchDest); err != nil {
		return err
	}
	fmt.Printf("Installed %s\n", fetchDest)
	return nil
}

func runSources(cmd *cobra.Command, _ []string) error {
	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	records := svc.Sources()
	if len(records) == 0 {
		fmt.Println("No tile archives registered.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-44s %12d  %s\n", r.FileName, r.FileSize, r.Bounds.String())
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.RemoveExtract(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}

// barSink adapts a progress bar to the ProgressSink port.
func barSink(bar *pb.ProgressBar) output.ProgressSink {
	return output.ProgressFunc(func(ratio float64) {
		bar.Set(int(ratio * 100))
	})
}

// parseBoundsFlag parses "maxLat,maxLon,minLat,minLon".
func parseBoundsFlag(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bounds %q: want maxLat,maxLon,minLat,minLon", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		vals[i] = v
	}
	return domain.NewBounds(vals[0], vals[1], vals[2], vals[3])
}
