package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/macro-ingest/internal/adapter/http"
	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReader struct {
	err error
}

func (m *mockReader) Series(_ context.Context, id string) (domain.Series, error) {
	if m.err != nil {
		return domain.Series{}, m.err
	}
	if id != "GDP" {
		return domain.Series{}, fmt.Errorf("series %s: %w", id, store.ErrNotFound)
	}
	return domain.Series{SeriesID: "GDP", Title: "Gross Domestic Product", FrequencyShort: "Q"}, nil
}

func (m *mockReader) LatestObservations(_ context.Context, id string) (domain.TimeSeries, error) {
	if m.err != nil {
		return domain.TimeSeries{}, m.err
	}
	if id != "GDP" {
		return domain.TimeSeries{}, fmt.Errorf("observations for %s: %w", id, store.ErrNotFound)
	}
	pull := domain.NewDate(2024, time.June, 1)
	return domain.NewTimeSeries("GDP", []domain.Observation{
		domain.NewObservation(domain.NewDate(2024, time.January, 1), 28269.174, pull),
		domain.NewObservation(domain.NewDate(2024, time.April, 1), ".", pull),
	}), nil
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockReader{}, slog.Default())
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("not ready yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSeriesEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/series/GDP")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "GDP", body["series_id"])
	assert.Equal(t, "Q", body["frequency_short"])
}

func TestObservationsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/series/GDP/observations")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"series_id":"GDP","observations":[
		{"date":"2024-01-01","value":28269.174,"pull_date":"2024-06-01"},
		{"date":"2024-04-01","value":null,"pull_date":"2024-06-01"}]}`, rec.Body.String())
}

func TestSeriesEndpoints_NotFound(t *testing.T) {
	srv := newTestServer(nil)
	for _, path := range []string{"/series/NOPE", "/series/NOPE/observations"} {
		rec := get(t, srv, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestSeriesEndpoints_InternalError(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockReader{err: errors.New("database is locked")}, slog.Default())
	rec := get(t, srv, "/series/GDP")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestSeriesRoutesAbsentWithoutReader(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, slog.Default())
	rec := get(t, srv, "/series/GDP")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
