package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/domain"
)

// SaveSeries upserts series metadata.
func (s *Store) SaveSeries(ctx context.Context, series domain.Series) error {
	b, err := seriesBatch(series)
	if err == nil {
		err = s.execTx(ctx, b)
	}
	if err != nil {
		return fmt.Errorf("save series %s: %w", series.SeriesID, err)
	}
	return nil
}

// SaveTimeSeries upserts observations keyed by (series_id, date, pull_date).
// Earlier pulls are kept so the revision history survives.
func (s *Store) SaveTimeSeries(ctx context.Context, ts domain.TimeSeries) error {
	b, err := observationsBatch(ts)
	if err == nil {
		err = s.execTx(ctx, b)
	}
	if err != nil {
		return fmt.Errorf("save observations for %s: %w", ts.SeriesID(), err)
	}
	return nil
}

// SaveSeriesReleases upserts series to release links.
func (s *Store) SaveSeriesReleases(ctx context.Context, links domain.SeriesReleaseCollection) error {
	if err := s.execTx(ctx, seriesReleasesBatch(links)); err != nil {
		return fmt.Errorf("save series releases: %w", err)
	}
	return nil
}

// SaveSeriesRecords writes the metadata, observations and release links of
// one series in a single transaction. Nothing is kept when any part fails.
func (s *Store) SaveSeriesRecords(ctx context.Context, series domain.Series, ts domain.TimeSeries, links domain.SeriesReleaseCollection) error {
	meta, err := seriesBatch(series)
	if err != nil {
		return fmt.Errorf("save series %s: %w", series.SeriesID, err)
	}
	obs, err := observationsBatch(ts)
	if err != nil {
		return fmt.Errorf("save series %s: %w", series.SeriesID, err)
	}
	if err := s.execTx(ctx, meta, obs, seriesReleasesBatch(links)); err != nil {
		return fmt.Errorf("save series %s: %w", series.SeriesID, err)
	}
	return nil
}

// SaveReleases upserts releases.
func (s *Store) SaveReleases(ctx context.Context, releases domain.ReleaseCollection) error {
	rows := make([][]any, 0, releases.Len())
	for _, r := range releases.Items() {
		rows = append(rows, []any{r.ID, r.Name, r.PressRelease, r.Link})
	}
	err := s.execTx(ctx, batch{query: `
		INSERT INTO releases (release_id, name, press_release, link)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (release_id) DO UPDATE SET
			name = excluded.name,
			press_release = excluded.press_release,
			link = excluded.link`, rows: rows})
	if err != nil {
		return fmt.Errorf("save releases: %w", err)
	}
	return nil
}

// SaveReleaseDates inserts release dates not yet stored.
func (s *Store) SaveReleaseDates(ctx context.Context, dates domain.ReleaseDateCollection) error {
	rows := make([][]any, 0, dates.Len())
	for _, d := range dates.Items() {
		date, err := dateArg("release date", "release_date", d.ReleaseDate)
		if err != nil {
			return fmt.Errorf("save release dates for %d: %w", d.ReleaseID, err)
		}
		rows = append(rows, []any{d.ReleaseID, date})
	}
	err := s.execTx(ctx, batch{query: `
		INSERT INTO release_dates (release_id, release_date)
		VALUES (?, ?)
		ON CONFLICT (release_id, release_date) DO NOTHING`, rows: rows})
	if err != nil {
		return fmt.Errorf("save release dates: %w", err)
	}
	return nil
}

func seriesBatch(series domain.Series) (batch, error) {
	start, err := dateArg("series", "observation_start", series.ObservationStart)
	if err != nil {
		return batch{}, err
	}
	end, err := dateArg("series", "observation_end", series.ObservationEnd)
	if err != nil {
		return batch{}, err
	}
	return batch{
		query: `
		INSERT INTO series (
			series_id, title, observation_start, observation_end,
			frequency, frequency_short, units, units_short,
			seasonal_adjustment, seasonal_adjustment_short,
			last_updated, popularity, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_id) DO UPDATE SET
			title = excluded.title,
			observation_start = excluded.observation_start,
			observation_end = excluded.observation_end,
			frequency = excluded.frequency,
			frequency_short = excluded.frequency_short,
			units = excluded.units,
			units_short = excluded.units_short,
			seasonal_adjustment = excluded.seasonal_adjustment,
			seasonal_adjustment_short = excluded.seasonal_adjustment_short,
			last_updated = excluded.last_updated,
			popularity = excluded.popularity,
			notes = excluded.notes`,
		rows: [][]any{{
			series.SeriesID, series.Title, start, end,
			series.Frequency, series.FrequencyShort, series.Units, series.UnitsShort,
			series.SeasonalAdjustment, series.SeasonalAdjustmentShort,
			series.LastUpdated.UTC().Format(time.RFC3339), series.Popularity, series.Notes,
		}},
	}, nil
}

func observationsBatch(ts domain.TimeSeries) (batch, error) {
	obs := ts.Observations()
	rows := make([][]any, len(obs))
	for i, o := range obs {
		date, err := dateArg("observation", "date", o.Date)
		if err != nil {
			return batch{}, err
		}
		pull, err := dateArg("observation", "pull_date", o.PullDate)
		if err != nil {
			return batch{}, err
		}
		rows[i] = []any{ts.SeriesID(), date, o.Value.Ptr(), pull}
	}
	return batch{query: `
		INSERT INTO observations (series_id, date, value, pull_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (series_id, date, pull_date) DO UPDATE SET
			value = excluded.value`, rows: rows}, nil
}

func seriesReleasesBatch(links domain.SeriesReleaseCollection) batch {
	rows := make([][]any, 0, links.Len())
	for _, l := range links.Items() {
		rows = append(rows, []any{l.SeriesID, l.ReleaseID, l.ReleaseName})
	}
	return batch{query: `
		INSERT INTO series_releases (series_id, release_id, release_name)
		VALUES (?, ?, ?)
		ON CONFLICT (series_id, release_id) DO UPDATE SET
			release_name = excluded.release_name`, rows: rows}
}

// dateArg formats d for a date column. A zero Date has no YYYY-MM-DD form
// that ParseDate reads back, so it is rejected.
func dateArg(record, field string, d domain.Date) (string, error) {
	if d.IsZero() {
		return "", &domain.ValidationError{Record: record, Field: field, Reason: "zero date"}
	}
	return d.String(), nil
}

// Series returns the stored metadata of one series.
func (s *Store) Series(ctx context.Context, seriesID string) (domain.Series, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT series_id, title, observation_start, observation_end,
			frequency, frequency_short, units, units_short,
			seasonal_adjustment, seasonal_adjustment_short,
			last_updated, popularity, notes
		FROM series WHERE series_id = ?`), seriesID)

	var (
		out                 domain.Series
		start, end, updated string
	)
	err := row.Scan(
		&out.SeriesID, &out.Title, &start, &end,
		&out.Frequency, &out.FrequencyShort, &out.Units, &out.UnitsShort,
		&out.SeasonalAdjustment, &out.SeasonalAdjustmentShort,
		&updated, &out.Popularity, &out.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Series{}, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	if err != nil {
		return domain.Series{}, fmt.Errorf("query series %s: %w", seriesID, err)
	}

	if out.ObservationStart, err = domain.ParseDate(start); err != nil {
		return domain.Series{}, fmt.Errorf("series %s: %w", seriesID, err)
	}
	if out.ObservationEnd, err = domain.ParseDate(end); err != nil {
		return domain.Series{}, fmt.Errorf("series %s: %w", seriesID, err)
	}
	if out.LastUpdated, err = time.Parse(time.RFC3339, updated); err != nil {
		return domain.Series{}, fmt.Errorf("series %s: last_updated: %w", seriesID, err)
	}
	out.LastUpdated = out.LastUpdated.UTC()
	return out, nil
}

// Observations returns every stored pull of a series ordered by date, then
// pull date.
func (s *Store) Observations(ctx context.Context, seriesID string) (domain.TimeSeries, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT date, value, pull_date FROM observations
		WHERE series_id = ?
		ORDER BY date, pull_date`), seriesID)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("query observations for %s: %w", seriesID, err)
	}
	defer rows.Close()

	var obs []domain.Observation
	for rows.Next() {
		var (
			date, pull string
			value      sql.NullFloat64
		)
		if err := rows.Scan(&date, &value, &pull); err != nil {
			return domain.TimeSeries{}, fmt.Errorf("scan observation for %s: %w", seriesID, err)
		}
		o, err := observationFromRow(date, value, pull)
		if err != nil {
			return domain.TimeSeries{}, fmt.Errorf("observation for %s: %w", seriesID, err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return domain.TimeSeries{}, fmt.Errorf("read observations for %s: %w", seriesID, err)
	}
	if len(obs) == 0 {
		return domain.TimeSeries{}, fmt.Errorf("observations for %s: %w", seriesID, ErrNotFound)
	}
	return domain.NewTimeSeries(seriesID, obs), nil
}

// LatestObservations returns one observation per date, taken from the most
// recent pull of that date.
func (s *Store) LatestObservations(ctx context.Context, seriesID string) (domain.TimeSeries, error) {
	all, err := s.Observations(ctx, seriesID)
	if err != nil {
		return domain.TimeSeries{}, err
	}
	return domain.NewTimeSeries(seriesID, all.Latest()), nil
}

// ReleaseDates returns the stored dates of a release in ascending order.
func (s *Store) ReleaseDates(ctx context.Context, releaseID int) (domain.ReleaseDateCollection, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT release_date FROM release_dates
		WHERE release_id = ?
		ORDER BY release_date`), releaseID)
	if err != nil {
		return domain.ReleaseDateCollection{}, fmt.Errorf("query release dates for %d: %w", releaseID, err)
	}
	defer rows.Close()

	var dates []domain.ReleaseDate
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return domain.ReleaseDateCollection{}, fmt.Errorf("scan release date for %d: %w", releaseID, err)
		}
		d, err := domain.ParseDate(raw)
		if err != nil {
			return domain.ReleaseDateCollection{}, fmt.Errorf("release date for %d: %w", releaseID, err)
		}
		dates = append(dates, domain.ReleaseDate{ReleaseID: releaseID, ReleaseDate: d})
	}
	if err := rows.Err(); err != nil {
		return domain.ReleaseDateCollection{}, fmt.Errorf("read release dates for %d: %w", releaseID, err)
	}
	return domain.NewCollection(dates...), nil
}

func observationFromRow(date string, value sql.NullFloat64, pull string) (domain.Observation, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Observation{}, err
	}
	p, err := domain.ParseDate(pull)
	if err != nil {
		return domain.Observation{}, err
	}
	v := domain.Missing()
	if value.Valid {
		v = domain.Some(value.Float64)
	}
	return domain.Observation{Date: d, Value: v, PullDate: p}, nil
}
