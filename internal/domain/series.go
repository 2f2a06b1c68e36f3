package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Series is the metadata the provider publishes for one series.
type Series struct {
	SeriesID                string    `json:"series_id"`
	Title                   string    `json:"title"`
	ObservationStart        Date      `json:"observation_start"`
	ObservationEnd          Date      `json:"observation_end"`
	Frequency               string    `json:"frequency"`
	FrequencyShort          string    `json:"frequency_short"`
	Units                   string    `json:"units"`
	UnitsShort              string    `json:"units_short"`
	SeasonalAdjustment      string    `json:"seasonal_adjustment"`
	SeasonalAdjustmentShort string    `json:"seasonal_adjustment_short"`
	LastUpdated             time.Time `json:"last_updated"`
	Popularity              int       `json:"popularity"`
	Notes                   string    `json:"notes"`
}

func (Series) Columns() []string {
	return []string{
		"series_id", "title", "observation_start", "observation_end",
		"frequency", "frequency_short", "units", "units_short",
		"seasonal_adjustment", "seasonal_adjustment_short",
		"last_updated", "popularity", "notes",
	}
}

func (s Series) Values() []any {
	return []any{
		s.SeriesID, s.Title, s.ObservationStart, s.ObservationEnd,
		s.Frequency, s.FrequencyShort, s.Units, s.UnitsShort,
		s.SeasonalAdjustment, s.SeasonalAdjustmentShort,
		s.LastUpdated, s.Popularity, s.Notes,
	}
}

// spaceTimestampRe matches the provider's "YYYY-MM-DD HH:MM:SS<zone>" form.
var spaceTimestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2}(?:\.\d+)?)(.*)$`)

var (
	shortOffsetRe   = regexp.MustCompile(`^([+-]\d{2})$`)
	compactOffsetRe = regexp.MustCompile(`^([+-]\d{2})(\d{2})$`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	dateLayout,
}

// NormalizeTimestamp rewrites "2021-05-03 08:15:00-06" as
// "2021-05-03T08:15:00-06:00". Strings not in that form are returned unchanged.
func NormalizeTimestamp(s string) string {
	s = strings.TrimSpace(s)
	m := spaceTimestampRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	zone := m[3]
	switch {
	case shortOffsetRe.MatchString(zone):
		zone += ":00"
	case compactOffsetRe.MatchString(zone):
		zone = compactOffsetRe.ReplaceAllString(zone, "$1:$2")
	}
	return m[1] + "T" + m[2] + zone
}

// ParseLastUpdated parses a last_updated timestamp after NormalizeTimestamp.
// Timestamps without a zone are read as UTC.
func ParseLastUpdated(s string) (time.Time, error) {
	norm := NormalizeTimestamp(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, norm); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}
