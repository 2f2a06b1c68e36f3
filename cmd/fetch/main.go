// Command fetch retrieves records from FRED once and prints them.
//
// Usage:
//
//	go run ./cmd/fetch -series UNRATE -what observations -format table
//	go run ./cmd/fetch -what release-dates -release-id 50 -format json
//	go run ./cmd/fetch -series GDP -what metadata -format xlsx -out gdp.xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/couchcryptid/macro-ingest/internal/adapter/fred"
	"github.com/couchcryptid/macro-ingest/internal/config"
	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/export"
	"github.com/couchcryptid/macro-ingest/internal/observability"
)

// result is what every fetch kind renders through.
type result interface {
	Table() domain.Table
	JSON(indent int) (string, error)
}

func main() {
	seriesID := flag.String("series", "", "series id, required unless -what is releases or release-dates")
	what := flag.String("what", "observations", "metadata, observations, release, releases, or release-dates")
	releaseID := flag.Int("release-id", 0, "release id for -what release-dates")
	format := flag.String("format", "json", "json, table, or xlsx")
	indent := flag.Int("indent", domain.DefaultIndent, "JSON indent width; negative for compact output")
	out := flag.String("out", "", "output file (default stdout; required for xlsx)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("load config", err)
	}
	if cfg.FredAPIKey == "" {
		fatal("load config", errors.New("FRED_API_KEY is not set"))
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := fred.NewClient(fred.Config{
		APIKey:      cfg.FredAPIKey,
		BaseURL:     cfg.FredBaseURL,
		Timeout:     cfg.FredTimeout,
		MaxAttempts: cfg.FredRetryCount,
	}, observability.NewMetrics(), logger)

	res, err := fetch(ctx, client, *what, *seriesID, *releaseID)
	if err != nil {
		fatal("fetch", err)
	}

	if err := write(res, *format, *indent, *out, sheetName(*what, *seriesID)); err != nil {
		fatal("write", err)
	}
}

func fetch(ctx context.Context, src domain.Source, what, seriesID string, releaseID int) (result, error) {
	needSeries := func() error {
		if seriesID == "" {
			return fmt.Errorf("-series is required for -what %s", what)
		}
		return nil
	}

	switch what {
	case "metadata":
		if err := needSeries(); err != nil {
			return nil, err
		}
		s, err := src.FetchSeriesMetadata(ctx, seriesID)
		return domain.NewCollection(s), err
	case "observations":
		if err := needSeries(); err != nil {
			return nil, err
		}
		return src.FetchSeriesObservations(ctx, seriesID)
	case "release":
		if err := needSeries(); err != nil {
			return nil, err
		}
		return src.FetchSeriesRelease(ctx, seriesID)
	case "releases":
		return src.FetchReleases(ctx)
	case "release-dates":
		if releaseID <= 0 {
			return nil, errors.New("-release-id is required for -what release-dates")
		}
		return src.FetchReleaseDates(ctx, releaseID)
	default:
		return nil, fmt.Errorf("unknown -what %q", what)
	}
}

var formats = []string{"json", "table", "xlsx"}

func write(res result, format string, indent int, path, sheet string) (err error) {
	if !slices.Contains(formats, format) {
		return fmt.Errorf("unknown -format %q", format)
	}
	if format == "xlsx" && path == "" {
		return errors.New("-out is required for xlsx output")
	}

	var w io.Writer = os.Stdout
	if path != "" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch format {
	case "json":
		s, err := res.JSON(indent)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	case "table":
		return export.WriteTable(w, res.Table())
	default:
		return export.WriteXLSX(w, sheet, res.Table())
	}
}

func sheetName(what, seriesID string) string {
	if seriesID != "" && what != "releases" && what != "release-dates" {
		return seriesID
	}
	return what
}

func fatal(step string, err error) {
	slog.Error(step+" failed", "error", err)
	os.Exit(1)
}
