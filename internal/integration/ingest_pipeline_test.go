//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/adapter/fred"
	"github.com/couchcryptid/macro-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/macro-ingest/internal/config"
	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/ingest"
	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/couchcryptid/macro-ingest/internal/store"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-macro-records"

// fredStub serves fixed FRED responses for one series.
func fredStub(t *testing.T) *httptest.Server {
	t.Helper()
	responses := map[string]string{
		"/series": `{"seriess":[{"id":"UNRATE","title":"Unemployment Rate",
			"observation_start":"1948-01-01","observation_end":"2024-05-01",
			"frequency":"Monthly","frequency_short":"M","units":"Percent","units_short":"%",
			"seasonal_adjustment":"Seasonally Adjusted","seasonal_adjustment_short":"SA",
			"last_updated":"2024-06-07 07:47:01-05","popularity":94,"notes":"Unemployment rate."}]}`,
		"/series/observations": `{"observations":[
			{"date":"2024-04-01","value":"3.9"},
			{"date":"2024-05-01","value":"4.0"}]}`,
		"/series/release": `{"releases":[{"id":50,"name":"Employment Situation","press_release":true,"link":"http://www.bls.gov/ces/"}]}`,
		"/releases":       `{"releases":[{"id":50,"name":"Employment Situation","press_release":true,"link":"http://www.bls.gov/ces/"}]}`,
		"/release/dates":  `{"release_dates":[{"release_id":50,"date":"2024-06-07"}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type publishedMessage struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func readMessages(ctx context.Context, t *testing.T, broker string, n int) []publishedMessage {
	t.Helper()
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedMessage, 0, n)
	for len(out) < n {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err, "read from record topic")
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out = append(out, publishedMessage{Key: string(msg.Key), Value: msg.Value, Headers: headers})
	}
	return out
}

// TestIngestToStoreAndKafka runs one ingest pass from a stubbed FRED API into
// an in-memory store and a real Kafka broker.
func TestIngestToStoreAndKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()

	client := fred.NewClient(fred.Config{APIKey: "test", BaseURL: fredStub(t).URL, Timeout: 5 * time.Second}, metrics, logger)

	db, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	ing := ingest.New(client, []ingest.Sink{db, writer}, ingest.Options{Series: []string{"UNRATE"}}, logger, metrics)

	summary, err := ing.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Series)
	assert.Equal(t, 2, summary.Observations)
	assert.Equal(t, 1, summary.ReleaseDates)

	// Store.
	series, err := db.Series(ctx, "UNRATE")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 7, 12, 47, 1, 0, time.UTC), series.LastUpdated)

	latest, err := db.LatestObservations(ctx, "UNRATE")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Len())
	assert.Equal(t, domain.NewDate(2024, time.June, 10), latest.Observations()[0].PullDate)

	// Kafka: series, two observations, series release, release, release date.
	msgs := readMessages(ctx, t, broker, 6)
	byType := make(map[string]publishedMessage, len(msgs))
	var observations []kafka.ObservationRecord
	for _, m := range msgs {
		byType[m.Headers["record_type"]] = m
		if m.Headers["record_type"] == kafka.RecordObservation {
			var rec kafka.ObservationRecord
			require.NoError(t, json.Unmarshal(m.Value, &rec))
			assert.Equal(t, "UNRATE", m.Key)
			observations = append(observations, rec)
		}
	}

	require.Contains(t, byType, kafka.RecordSeries)
	assert.Equal(t, "UNRATE", byType[kafka.RecordSeries].Key)

	require.Len(t, observations, 2)
	assert.Equal(t, "UNRATE", observations[0].SeriesID)
	assert.Equal(t, domain.NewDate(2024, time.April, 1), observations[0].Date)
	assert.Equal(t, domain.NewDate(2024, time.May, 1), observations[1].Date)

	require.Contains(t, byType, kafka.RecordReleaseDate)
	var rd domain.ReleaseDate
	require.NoError(t, json.Unmarshal(byType[kafka.RecordReleaseDate].Value, &rd))
	assert.Equal(t, domain.ReleaseDate{ReleaseID: 50, ReleaseDate: domain.NewDate(2024, time.June, 7)}, rd)
	assert.Equal(t, "50", byType[kafka.RecordReleaseDate].Key)

	assert.Contains(t, byType, kafka.RecordSeriesRelease)
	assert.Contains(t, byType, kafka.RecordRelease)
	assert.NotEmpty(t, byType[kafka.RecordSeries].Headers["published_at"])
}
