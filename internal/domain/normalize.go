package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provider envelope keys.
const (
	keySeries       = "seriess"
	keyObservations = "observations"
	keyReleases     = "releases"
	keyReleaseDates = "release_dates"
)

// fieldReader reads fields from a rawRecord and keeps the first error, so a
// record can be mapped in one pass and checked once.
type fieldReader struct {
	rec rawRecord
	err error
}

func (f *fieldReader) str(key string) string {
	if f.err != nil {
		return ""
	}
	v, err := f.rec.str(key)
	f.err = err
	return v
}

func (f *fieldReader) optStr(key string) string {
	if f.err != nil {
		return ""
	}
	v, err := f.rec.optStr(key)
	f.err = err
	return v
}

func (f *fieldReader) integer(key string) int {
	if f.err != nil {
		return 0
	}
	v, err := f.rec.integer(key)
	f.err = err
	return v
}

func (f *fieldReader) boolean(key string) bool {
	if f.err != nil {
		return false
	}
	v, err := f.rec.boolean(key)
	f.err = err
	return v
}

func (f *fieldReader) date(key string) Date {
	if f.err != nil {
		return Date{}
	}
	v, err := f.rec.date(key)
	f.err = err
	return v
}

func (f *fieldReader) timestamp(key string) time.Time {
	if f.err != nil {
		return time.Time{}
	}
	v, err := f.rec.timestamp(key)
	f.err = err
	return v
}

// NormalizeObservations converts a series/observations payload into a
// TimeSeries. Every observation gets pullDate; a zero pullDate means today.
// A missing or malformed date fails the whole batch. Values never fail: they
// are coerced and unparseable ones become missing. Unknown fields are ignored.
func NormalizeObservations(seriesID string, payload []byte, pullDate Date) (TimeSeries, error) {
	if seriesID == "" {
		return TimeSeries{}, invalid("time series", "series_id", "missing")
	}
	if pullDate.IsZero() {
		pullDate = Today()
	}

	list, err := decodeList(payload, keyObservations)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("normalize observations for %s: %w", seriesID, err)
	}

	obs := make([]Observation, 0, len(list))
	for i, raw := range list {
		rec, err := decodeRecord("observation", raw)
		if err != nil {
			return TimeSeries{}, fmt.Errorf("normalize observations for %s: entry %d: %w", seriesID, i, err)
		}
		date, err := rec.date("date")
		if err != nil {
			return TimeSeries{}, fmt.Errorf("normalize observations for %s: entry %d: %w", seriesID, i, err)
		}
		var value Value
		if v, ok := rec.fields["value"]; ok {
			if err := json.Unmarshal(v, &value); err != nil {
				value = Missing()
			}
		}
		obs = append(obs, Observation{Date: date, Value: value, PullDate: pullDate})
	}
	return TimeSeries{seriesID: seriesID, observations: obs}, nil
}

// NormalizeSeriesMetadata converts one provider series object into a Series.
// The provider's "id" becomes SeriesID and last_updated is normalized to
// RFC 3339 before parsing. Any missing or wrong-shaped field is an error.
func NormalizeSeriesMetadata(record []byte) (Series, error) {
	rec, err := decodeRecord("series", record)
	if err != nil {
		return Series{}, err
	}
	f := &fieldReader{rec: rec}
	s := Series{
		SeriesID:                f.str("id"),
		Title:                   f.str("title"),
		ObservationStart:        f.date("observation_start"),
		ObservationEnd:          f.date("observation_end"),
		Frequency:               f.str("frequency"),
		FrequencyShort:          f.str("frequency_short"),
		Units:                   f.str("units"),
		UnitsShort:              f.str("units_short"),
		SeasonalAdjustment:      f.str("seasonal_adjustment"),
		SeasonalAdjustmentShort: f.str("seasonal_adjustment_short"),
		LastUpdated:             f.timestamp("last_updated"),
		Popularity:              f.integer("popularity"),
		Notes:                   f.str("notes"),
	}
	if f.err != nil {
		return Series{}, f.err
	}
	if s.SeriesID == "" {
		return Series{}, invalid("series", "id", "empty")
	}
	if len([]rune(s.FrequencyShort)) != 1 {
		return Series{}, invalid("series", "frequency_short", "expected a single character, got %q", s.FrequencyShort)
	}
	return s, nil
}

// NormalizeSeriesPayload converts every object of a series payload.
func NormalizeSeriesPayload(payload []byte) (SeriesCollection, error) {
	return normalizeList(payload, keySeries, "series", NormalizeSeriesMetadata)
}

// NormalizeReleases converts a releases payload. The link is optional because
// the provider omits it for many releases.
func NormalizeReleases(payload []byte) (ReleaseCollection, error) {
	return normalizeList(payload, keyReleases, "releases", normalizeRelease)
}

// NormalizeReleaseDates converts a release/dates payload.
func NormalizeReleaseDates(payload []byte) (ReleaseDateCollection, error) {
	return normalizeList(payload, keyReleaseDates, "release dates", normalizeReleaseDate)
}

// NormalizeSeriesReleases converts a series/release payload, which lists
// releases, into join records for seriesID.
func NormalizeSeriesReleases(seriesID string, payload []byte) (SeriesReleaseCollection, error) {
	if seriesID == "" {
		return SeriesReleaseCollection{}, invalid("series release", "series_id", "missing")
	}
	return normalizeList(payload, keyReleases, "series releases", func(b []byte) (SeriesRelease, error) {
		r, err := normalizeRelease(b)
		if err != nil {
			return SeriesRelease{}, err
		}
		return SeriesRelease{SeriesID: seriesID, ReleaseID: r.ID, ReleaseName: r.Name}, nil
	})
}

func normalizeRelease(b []byte) (Release, error) {
	rec, err := decodeRecord("release", b)
	if err != nil {
		return Release{}, err
	}
	f := &fieldReader{rec: rec}
	r := Release{
		ID:           f.integer("id"),
		Name:         f.str("name"),
		PressRelease: f.boolean("press_release"),
		Link:         f.optStr("link"),
	}
	return r, f.err
}

func normalizeReleaseDate(b []byte) (ReleaseDate, error) {
	rec, err := decodeRecord("release date", b)
	if err != nil {
		return ReleaseDate{}, err
	}
	key := "date"
	if rec.has("release_date") {
		key = "release_date"
	}
	f := &fieldReader{rec: rec}
	rd := ReleaseDate{
		ReleaseID:   f.integer("release_id"),
		ReleaseDate: f.date(key),
	}
	return rd, f.err
}

func normalizeList[T Record](payload []byte, key, what string, fn func([]byte) (T, error)) (Collection[T], error) {
	list, err := decodeList(payload, key)
	if err != nil {
		return Collection[T]{}, fmt.Errorf("normalize %s: %w", what, err)
	}
	items := make([]T, 0, len(list))
	for i, raw := range list {
		item, err := fn(raw)
		if err != nil {
			return Collection[T]{}, fmt.Errorf("normalize %s: entry %d: %w", what, i, err)
		}
		items = append(items, item)
	}
	return Collection[T]{items: items}, nil
}
