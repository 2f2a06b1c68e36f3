package domain

import "context"

// Source retrieves normalized records from the statistical data provider.
type Source interface {
	// FetchSeriesMetadata returns the metadata of one series.
	FetchSeriesMetadata(ctx context.Context, seriesID string) (Series, error)

	// FetchSeriesObservations returns every observation of one series.
	FetchSeriesObservations(ctx context.Context, seriesID string) (TimeSeries, error)

	// FetchSeriesRelease returns the releases that publish one series.
	FetchSeriesRelease(ctx context.Context, seriesID string) (SeriesReleaseCollection, error)

	// FetchReleases returns every release known to the provider.
	FetchReleases(ctx context.Context) (ReleaseCollection, error)

	// FetchReleaseDates returns the publication dates of one release.
	FetchReleaseDates(ctx context.Context, releaseID int) (ReleaseDateCollection, error)
}
