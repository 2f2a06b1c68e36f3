package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/config"
	"github.com/couchcryptid/macro-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Record types carried in the record_type header.
const (
	RecordSeries        = "series"
	RecordObservation   = "observation"
	RecordRelease       = "release"
	RecordReleaseDate   = "release_date"
	RecordSeriesRelease = "series_release"
)

// ObservationRecord is the message value of one observation. Observations
// are published one per message so a long daily series never exceeds the
// producer's batch size.
type ObservationRecord struct {
	SeriesID string `json:"series_id"`
	domain.Observation
}

// Writer publishes normalized records to a Kafka topic as JSON.
// It implements ingest.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka producer for the configured record topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger, now: time.Now}
}

// SaveSeries publishes series metadata keyed by series id.
func (w *Writer) SaveSeries(ctx context.Context, series domain.Series) error {
	return w.publish(ctx, RecordSeries, []keyed{{series.SeriesID, series}})
}

// SaveTimeSeries publishes one message per observation keyed by series id,
// so every observation of a series lands on the same partition in order.
func (w *Writer) SaveTimeSeries(ctx context.Context, ts domain.TimeSeries) error {
	return w.publish(ctx, RecordObservation, observationRecords(ts))
}

// SaveReleases publishes one message per release keyed by release id.
func (w *Writer) SaveReleases(ctx context.Context, releases domain.ReleaseCollection) error {
	records := make([]keyed, 0, releases.Len())
	for _, r := range releases.Items() {
		records = append(records, keyed{strconv.Itoa(r.ID), r})
	}
	return w.publish(ctx, RecordRelease, records)
}

// SaveReleaseDates publishes one message per release date keyed by release id.
func (w *Writer) SaveReleaseDates(ctx context.Context, dates domain.ReleaseDateCollection) error {
	records := make([]keyed, 0, dates.Len())
	for _, d := range dates.Items() {
		records = append(records, keyed{strconv.Itoa(d.ReleaseID), d})
	}
	return w.publish(ctx, RecordReleaseDate, records)
}

// SaveSeriesReleases publishes one message per link keyed by series id.
func (w *Writer) SaveSeriesReleases(ctx context.Context, links domain.SeriesReleaseCollection) error {
	records := make([]keyed, 0, links.Len())
	for _, l := range links.Items() {
		records = append(records, keyed{l.SeriesID, l})
	}
	return w.publish(ctx, RecordSeriesRelease, records)
}

func observationRecords(ts domain.TimeSeries) []keyed {
	obs := ts.Observations()
	records := make([]keyed, len(obs))
	for i, o := range obs {
		records[i] = keyed{ts.SeriesID(), ObservationRecord{SeriesID: ts.SeriesID(), Observation: o}}
	}
	return records
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

type keyed struct {
	key    string
	record any
}

// publish serializes records and writes them in a single WriteMessages call.
func (w *Writer) publish(ctx context.Context, recordType string, records []keyed) error {
	if len(records) == 0 {
		return nil
	}
	publishedAt := w.now()
	msgs := make([]kafkago.Message, len(records))
	for i, r := range records {
		msg, err := serializeToMessage(recordType, r.key, r.record, publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d %s records: %w", len(msgs), recordType, err)
	}
	w.logger.Debug("records published", "record_type", recordType, "count", len(msgs))
	return nil
}

// serializeToMessage marshals a record into a Kafka message.
func serializeToMessage(recordType, key string, record any, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s record %s: %w", recordType, key, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(recordType)},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
