// Package ingest pulls tracked series from a Source and saves them to sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrNoSeriesIngested is returned by RunOnce when every tracked series failed.
var ErrNoSeriesIngested = errors.New("ingest: no series ingested")

// Sink receives normalized records.
type Sink interface {
	SaveSeries(ctx context.Context, series domain.Series) error
	SaveTimeSeries(ctx context.Context, ts domain.TimeSeries) error
	SaveSeriesReleases(ctx context.Context, links domain.SeriesReleaseCollection) error
	SaveReleases(ctx context.Context, releases domain.ReleaseCollection) error
	SaveReleaseDates(ctx context.Context, dates domain.ReleaseDateCollection) error
}

// SeriesSaver is implemented by sinks that can write the records of one
// series atomically. Other sinks get three separate Save calls.
type SeriesSaver interface {
	SaveSeriesRecords(ctx context.Context, series domain.Series, ts domain.TimeSeries, links domain.SeriesReleaseCollection) error
}

// Options tunes an Ingester.
type Options struct {
	Series      []string
	Interval    time.Duration
	Concurrency int
	Clock       clockwork.Clock
}

// Summary describes one ingest pass. A series counts as ingested only when
// every sink saved it. Failed lists the rest; Partial is the subset of Failed
// that at least one sink did save, since sinks do not share a transaction.
type Summary struct {
	RunID        string
	Series       int
	Observations int
	Releases     int
	ReleaseDates int
	Failed       []string
	Partial      []string
}

// Ingester runs ingest passes over the tracked series.
type Ingester struct {
	source      domain.Source
	sinks       []Sink
	series      []string
	interval    time.Duration
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
}

// New creates an Ingester that saves to every sink in order.
func New(source domain.Source, sinks []Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Ingester{
		source:      source,
		sinks:       sinks,
		series:      slices.Clone(opts.Series),
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once a pass has saved at least one series, or
// once a pass has finished when no series are tracked.
func (i *Ingester) CheckReadiness(_ context.Context) error {
	if !i.ready.Load() {
		return errors.New("ingester has not completed a pass yet")
	}
	return nil
}

// Run executes ingest passes every interval until the context is cancelled.
// A pass that ingests nothing is retried with exponential backoff.
func (i *Ingester) Run(ctx context.Context) error {
	i.logger.Info("ingester started",
		"series", len(i.series),
		"interval", i.interval,
		"concurrency", i.concurrency,
	)
	if len(i.series) == 0 {
		i.logger.Warn("no tracked series configured; only releases are ingested")
	}
	i.metrics.IngestRunning.Set(1)
	defer i.metrics.IngestRunning.Set(0)

	// Exponential backoff: start at 1s, double each retry, cap at the interval.
	backoff := initialBackoff
	maxBackoff := max(i.interval, initialBackoff)

	for {
		_, err := i.RunOnce(ctx)
		if ctx.Err() != nil {
			i.logger.Info("ingester stopping", "reason", ctx.Err())
			return nil
		}

		wait := i.interval
		if err != nil {
			i.logger.Error("ingest pass failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = retry.NextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, i.clock, wait) {
			i.logger.Info("ingester stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce ingests every tracked series once, then the release dates of every
// release they belong to. A failing series is logged and counted; the pass
// continues with the rest.
func (i *Ingester) RunOnce(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := i.logger.With("run_id", summary.RunID)
	start := i.clock.Now()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	logger.Info("ingest pass started", "series", len(i.series))

	var (
		mu         sync.Mutex
		releaseIDs = make(map[int]struct{})
	)
	var g errgroup.Group
	g.SetLimit(i.concurrency)

	for _, id := range i.series {
		g.Go(func() error {
			res, err := i.ingestSeries(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				i.metrics.IngestErrors.Inc()
				summary.Failed = append(summary.Failed, id)
				if res.saved > 0 {
					summary.Partial = append(summary.Partial, id)
				}
				logger.Error("series ingest failed", "series_id", id, "sinks_saved", res.saved, "error", err)
				return nil
			}
			summary.Series++
			summary.Observations += res.observations
			for _, rid := range res.releaseIDs {
				releaseIDs[rid] = struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	slices.Sort(summary.Failed)
	slices.Sort(summary.Partial)

	summary.Releases = i.ingestReleases(ctx, logger)
	summary.ReleaseDates = i.ingestReleaseDates(ctx, logger, sortedKeys(releaseIDs))

	elapsed := i.clock.Since(start)
	i.metrics.IngestRunDuration.Observe(elapsed.Seconds())
	logger.Info("ingest pass finished",
		"series_ingested", summary.Series,
		"series_failed", len(summary.Failed),
		"series_partial", len(summary.Partial),
		"observations", summary.Observations,
		"releases", summary.Releases,
		"release_dates", summary.ReleaseDates,
		"duration", elapsed,
	)

	if summary.Series == 0 && len(i.series) > 0 {
		return summary, fmt.Errorf("%w: %d of %d series failed", ErrNoSeriesIngested, len(summary.Failed), len(i.series))
	}
	if summary.Series > 0 || len(i.series) == 0 {
		i.ready.Store(true)
	}
	return summary, nil
}

type seriesResult struct {
	observations int
	releaseIDs   []int
	saved        int
}

// ingestSeries fetches everything about one series before saving any of it,
// so a fetch failure leaves every sink untouched. Each sink then saves the
// series on its own; a sink failure does not undo what other sinks saved.
func (i *Ingester) ingestSeries(ctx context.Context, seriesID string) (seriesResult, error) {
	meta, err := i.source.FetchSeriesMetadata(ctx, seriesID)
	if err != nil {
		return seriesResult{}, fmt.Errorf("metadata: %w", err)
	}
	ts, err := i.source.FetchSeriesObservations(ctx, seriesID)
	if err != nil {
		return seriesResult{}, fmt.Errorf("observations: %w", err)
	}
	links, err := i.source.FetchSeriesRelease(ctx, seriesID)
	if err != nil {
		return seriesResult{}, fmt.Errorf("release: %w", err)
	}

	saved, err := i.saveAll(ctx, func(s Sink) error {
		return saveSeries(ctx, s, meta, ts, links)
	})
	if err != nil {
		return seriesResult{saved: saved}, err
	}

	i.metrics.SeriesIngested.Inc()
	i.metrics.ObservationsIngested.Add(float64(ts.Len()))

	res := seriesResult{observations: ts.Len(), saved: saved}
	for _, l := range links.Items() {
		res.releaseIDs = append(res.releaseIDs, l.ReleaseID)
	}
	return res, nil
}

// ingestReleases saves the full release list. Failures are logged only.
func (i *Ingester) ingestReleases(ctx context.Context, logger *slog.Logger) int {
	releases, err := i.source.FetchReleases(ctx)
	if err != nil {
		i.metrics.IngestErrors.Inc()
		logger.Error("releases ingest failed", "error", err)
		return 0
	}
	if _, err := i.saveAll(ctx, func(s Sink) error { return s.SaveReleases(ctx, releases) }); err != nil {
		i.metrics.IngestErrors.Inc()
		logger.Error("releases save failed", "error", err)
		return 0
	}
	return releases.Len()
}

// ingestReleaseDates saves the dates of each release. Failures are logged
// per release.
func (i *Ingester) ingestReleaseDates(ctx context.Context, logger *slog.Logger, releaseIDs []int) int {
	total := 0
	for _, id := range releaseIDs {
		if ctx.Err() != nil {
			return total
		}
		dates, err := i.source.FetchReleaseDates(ctx, id)
		if err == nil {
			_, err = i.saveAll(ctx, func(s Sink) error { return s.SaveReleaseDates(ctx, dates) })
		}
		if err != nil {
			i.metrics.IngestErrors.Inc()
			logger.Error("release dates ingest failed", "release_id", id, "error", err)
			continue
		}
		total += dates.Len()
	}
	return total
}

func saveSeries(ctx context.Context, s Sink, meta domain.Series, ts domain.TimeSeries, links domain.SeriesReleaseCollection) error {
	if saver, ok := s.(SeriesSaver); ok {
		return saver.SaveSeriesRecords(ctx, meta, ts, links)
	}
	if err := s.SaveSeries(ctx, meta); err != nil {
		return err
	}
	if err := s.SaveTimeSeries(ctx, ts); err != nil {
		return err
	}
	return s.SaveSeriesReleases(ctx, links)
}

// saveAll applies fn to every sink, returning how many succeeded and their
// joined errors, each naming its sink.
func (i *Ingester) saveAll(ctx context.Context, fn func(Sink) error) (int, error) {
	var (
		saved int
		errs  []error
	)
	for _, s := range i.sinks {
		if ctx.Err() != nil {
			return saved, ctx.Err()
		}
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("save to %s: %w", sinkName(s), err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

func sinkName(s Sink) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", s), "*")
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
