//go:build fred

package fred

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: FRED_API_KEY=... go test -tags fred ./internal/adapter/fred/
func TestLiveAPI(t *testing.T) {
	key := os.Getenv("FRED_API_KEY")
	if key == "" {
		t.Skip("FRED_API_KEY not set")
	}
	c := NewClient(Config{APIKey: key, Timeout: 30 * time.Second}, observability.NewMetricsForTesting(), discardLogger())
	ctx := context.Background()

	s, err := c.FetchSeriesMetadata(ctx, "GDP")
	require.NoError(t, err)
	assert.Equal(t, "GDP", s.SeriesID)
	assert.Equal(t, "Q", s.FrequencyShort)

	ts, err := c.FetchSeriesObservations(ctx, "GDP")
	require.NoError(t, err)
	assert.Positive(t, ts.Len())

	rel, err := c.FetchSeriesRelease(ctx, "GDP")
	require.NoError(t, err)
	require.Positive(t, rel.Len())

	dates, err := c.FetchReleaseDates(ctx, rel.At(0).ReleaseID)
	require.NoError(t, err)
	assert.Positive(t, dates.Len())

	_, err = c.FetchSeriesMetadata(ctx, "NOT_A_REAL_SERIES_XYZ")
	assert.ErrorIs(t, err, ErrRejected)
}
