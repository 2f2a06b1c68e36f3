package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSeriesID = "CPI"

	testSeriesRecord = `{
		"id": "CPIAUCSL",
		"realtime_start": "2024-06-01",
		"realtime_end": "2024-06-01",
		"title": "Consumer Price Index for All Urban Consumers: All Items in U.S. City Average",
		"observation_start": "1947-01-01",
		"observation_end": "2024-04-01",
		"frequency": "Monthly",
		"frequency_short": "M",
		"units": "Index 1982-1984=100",
		"units_short": "Index 1982-1984=100",
		"seasonal_adjustment": "Seasonally Adjusted",
		"seasonal_adjustment_short": "SA",
		"last_updated": "2024-05-15 07:38:02-05",
		"popularity": 95,
		"notes": "The Consumer Price Index for All Urban Consumers."
	}`
)

func TestNormalizeObservations(t *testing.T) {
	pull := NewDate(2024, time.June, 1)

	t.Run("single observation", func(t *testing.T) {
		payload := []byte(`{"observations": [{"date": "2020-01-01", "value": "117.2"}]}`)
		ts, err := NormalizeObservations(testSeriesID, payload, pull)

		require.NoError(t, err)
		assert.Equal(t, testSeriesID, ts.SeriesID())
		require.Equal(t, 1, ts.Len())
		o := ts.Observations()[0]
		assert.Equal(t, NewDate(2020, time.January, 1), o.Date)
		assert.Equal(t, pull, o.PullDate)
		f, ok := o.Value.Float()
		require.True(t, ok)
		assert.Equal(t, 117.2, f)
	})

	t.Run("sentinel values become missing", func(t *testing.T) {
		for _, raw := range []string{`null`, `""`, `"."`, `"NA"`, `"N/A"`, `"bogus"`} {
			payload := []byte(fmt.Sprintf(`{"observations": [{"date": "2020-01-01", "value": %s}]}`, raw))
			ts, err := NormalizeObservations(testSeriesID, payload, pull)
			require.NoError(t, err, raw)
			require.Equal(t, 1, ts.Len(), raw)
			assert.False(t, ts.Observations()[0].Value.Valid(), raw)
		}
	})

	t.Run("absent value is missing", func(t *testing.T) {
		payload := []byte(`{"observations": [{"date": "2020-01-01"}]}`)
		ts, err := NormalizeObservations(testSeriesID, payload, pull)
		require.NoError(t, err)
		assert.False(t, ts.Observations()[0].Value.Valid())
	})

	t.Run("numeric strings parse exactly", func(t *testing.T) {
		for raw, want := range map[string]float64{`"3.14"`: 3.14, `"-2"`: -2, `4.5`: 4.5} {
			payload := []byte(fmt.Sprintf(`{"observations": [{"date": "2020-01-01", "value": %s}]}`, raw))
			ts, err := NormalizeObservations(testSeriesID, payload, pull)
			require.NoError(t, err)
			f, ok := ts.Observations()[0].Value.Float()
			require.True(t, ok, raw)
			assert.Equal(t, want, f, raw)
		}
	})

	t.Run("extra fields ignored", func(t *testing.T) {
		payload := []byte(`{"realtime_start":"2024-06-01","observations": [
			{"realtime_start": "2024-06-01", "realtime_end": "2024-06-01", "date": "2020-01-01", "value": "1", "footnote": "x"}
		]}`)
		ts, err := NormalizeObservations(testSeriesID, payload, pull)
		require.NoError(t, err)
		assert.Equal(t, 1, ts.Len())
	})

	t.Run("malformed date fails the batch", func(t *testing.T) {
		payload := []byte(`{"observations": [
			{"date": "2020-01-01", "value": "1"},
			{"date": "01/02/2020", "value": "2"}
		]}`)
		_, err := NormalizeObservations(testSeriesID, payload, pull)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "date", verr.Field)
	})

	t.Run("missing date fails the batch", func(t *testing.T) {
		payload := []byte(`{"observations": [{"value": "1"}]}`)
		_, err := NormalizeObservations(testSeriesID, payload, pull)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("missing observations key yields empty series", func(t *testing.T) {
		ts, err := NormalizeObservations(testSeriesID, []byte(`{}`), pull)
		require.NoError(t, err)
		assert.Equal(t, 0, ts.Len())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := NormalizeObservations(testSeriesID, []byte(`{invalid`), pull)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("empty series id", func(t *testing.T) {
		_, err := NormalizeObservations("", []byte(`{}`), pull)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestNormalizeObservations_DefaultPullDateIsToday(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 7, 4, 23, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	payload := []byte(`{"observations": [{"date": "2020-01-01", "value": "1"}, {"date": "2020-02-01", "value": "2"}]}`)
	ts, err := NormalizeObservations(testSeriesID, payload, Date{})
	require.NoError(t, err)

	for _, o := range ts.Observations() {
		assert.Equal(t, NewDate(2024, time.July, 4), o.PullDate)
	}
}

func TestNormalizeSeriesMetadata(t *testing.T) {
	s, err := NormalizeSeriesMetadata([]byte(testSeriesRecord))
	require.NoError(t, err)

	assert.Equal(t, "CPIAUCSL", s.SeriesID)
	assert.Equal(t, NewDate(1947, time.January, 1), s.ObservationStart)
	assert.Equal(t, NewDate(2024, time.April, 1), s.ObservationEnd)
	assert.Equal(t, "Monthly", s.Frequency)
	assert.Equal(t, "M", s.FrequencyShort)
	assert.Equal(t, "SA", s.SeasonalAdjustmentShort)
	assert.Equal(t, 95, s.Popularity)
	assert.Equal(t, time.Date(2024, 5, 15, 12, 38, 2, 0, time.UTC), s.LastUpdated)
}

func TestNormalizeSeriesMetadata_PopularityAsString(t *testing.T) {
	rec := replaceField(t, testSeriesRecord, `"popularity": 95`, `"popularity": "42"`)
	s, err := NormalizeSeriesMetadata(rec)
	require.NoError(t, err)
	assert.Equal(t, 42, s.Popularity)
}

func TestNormalizeSeriesMetadata_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		old   string
		new   string
		field string
	}{
		{"missing id", `"id": "CPIAUCSL",`, ``, "id"},
		{"empty id", `"id": "CPIAUCSL"`, `"id": ""`, "id"},
		{"null title", `"title": "Consumer Price Index for All Urban Consumers: All Items in U.S. City Average"`, `"title": null`, "title"},
		{"numeric title", `"title": "Consumer Price Index for All Urban Consumers: All Items in U.S. City Average"`, `"title": 7`, "title"},
		{"bad start date", `"observation_start": "1947-01-01"`, `"observation_start": "1947"`, "observation_start"},
		{"bad popularity", `"popularity": 95`, `"popularity": "high"`, "popularity"},
		{"long frequency code", `"frequency_short": "M"`, `"frequency_short": "Mo"`, "frequency_short"},
		{"bad last_updated", `"last_updated": "2024-05-15 07:38:02-05"`, `"last_updated": "yesterday"`, "last_updated"},
		{"missing notes", `"notes": "The Consumer Price Index for All Urban Consumers."`, `"extra": 1`, "notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeSeriesMetadata(replaceField(t, testSeriesRecord, tt.old, tt.new))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRecord)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNormalizeSeriesPayload(t *testing.T) {
	payload := []byte(`{"realtime_start":"2024-06-01","seriess":[` + testSeriesRecord + `]}`)
	c, err := NormalizeSeriesPayload(payload)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "CPIAUCSL", c.At(0).SeriesID)

	empty, err := NormalizeSeriesPayload([]byte(`{"seriess":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = NormalizeSeriesPayload([]byte(`{"seriess":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNormalizeReleases(t *testing.T) {
	payload := []byte(`{"releases": [
		{"id": 9, "realtime_start": "2024-06-01", "name": "Advance Monthly Sales for Retail and Food Services", "press_release": true, "link": "http://www.census.gov/retail/"},
		{"id": "10", "name": "Consumer Price Index", "press_release": "false"}
	]}`)

	c, err := NormalizeReleases(payload)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, Release{ID: 9, Name: "Advance Monthly Sales for Retail and Food Services", PressRelease: true, Link: "http://www.census.gov/retail/"}, c.At(0))
	assert.Equal(t, Release{ID: 10, Name: "Consumer Price Index"}, c.At(1))

	_, err = NormalizeReleases([]byte(`{"releases": [{"name": "no id", "press_release": true}]}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestNormalizeReleaseDates(t *testing.T) {
	payload := []byte(`{"release_dates": [
		{"release_id": 82, "release_name": "Industrial Production", "date": "1997-02-10"},
		{"release_id": 82, "release_date": "1997-03-17"}
	]}`)

	c, err := NormalizeReleaseDates(payload)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, ReleaseDate{ReleaseID: 82, ReleaseDate: NewDate(1997, time.February, 10)}, c.At(0))
	assert.Equal(t, NewDate(1997, time.March, 17), c.At(1).ReleaseDate)

	_, err = NormalizeReleaseDates([]byte(`{"release_dates": [{"date": "1997-02-10"}]}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestNormalizeSeriesReleases(t *testing.T) {
	payload := []byte(`{"releases": [{"id": 10, "name": "Consumer Price Index", "press_release": true, "link": "http://www.bls.gov/cpi/"}]}`)

	c, err := NormalizeSeriesReleases("CPIAUCSL", payload)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, SeriesRelease{SeriesID: "CPIAUCSL", ReleaseID: 10, ReleaseName: "Consumer Price Index"}, c.At(0))

	_, err = NormalizeSeriesReleases("", payload)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func replaceField(t *testing.T, record, old, new string) []byte {
	t.Helper()
	out := strings.Replace(record, old, new, 1)
	require.NotEqual(t, record, out, "fixture does not contain %q", old)
	return []byte(out)
}
