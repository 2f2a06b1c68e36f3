package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Observation is a single dated data point of a series as seen on PullDate.
type Observation struct {
	Date     Date  `json:"date"`
	Value    Value `json:"value"`
	PullDate Date  `json:"pull_date"`
}

// NewObservation builds an Observation, coercing raw into a Value so no
// provider sentinel survives construction.
func NewObservation(date Date, raw any, pullDate Date) Observation {
	return Observation{Date: date, Value: CoerceValue(raw), PullDate: pullDate}
}

func (Observation) Columns() []string {
	return []string{"date", "value", "pull_date"}
}

func (o Observation) Values() []any {
	return []any{o.Date, o.Value.Ptr(), o.PullDate}
}

// RevisionKey identifies one pull of one observation date.
type RevisionKey struct {
	Date     Date
	PullDate Date
}

// TimeSeries is the observation history of one series. Observations keep
// insertion order; callers that need chronological order use Sorted or Latest.
type TimeSeries struct {
	seriesID     string
	observations []Observation
}

// NewTimeSeries copies obs so the series does not alias the caller's slice.
func NewTimeSeries(seriesID string, obs []Observation) TimeSeries {
	return TimeSeries{seriesID: seriesID, observations: slices.Clone(obs)}
}

func (ts TimeSeries) SeriesID() string { return ts.seriesID }

func (ts TimeSeries) Len() int { return len(ts.observations) }

// Observations returns a copy of the observations in insertion order.
func (ts TimeSeries) Observations() []Observation {
	return slices.Clone(ts.observations)
}

// Sorted returns the observations ordered by date ascending. Ties keep
// insertion order.
func (ts TimeSeries) Sorted() []Observation {
	out := slices.Clone(ts.observations)
	slices.SortStableFunc(out, func(a, b Observation) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// Revisions indexes the observations by (date, pull date). When the same key
// appears twice, the later observation in insertion order wins.
func (ts TimeSeries) Revisions() map[RevisionKey]Observation {
	out := make(map[RevisionKey]Observation, len(ts.observations))
	for _, o := range ts.observations {
		out[RevisionKey{Date: o.Date, PullDate: o.PullDate}] = o
	}
	return out
}

// Latest keeps one observation per date, choosing the one with the most recent
// pull date, and returns them ordered by date ascending.
func (ts TimeSeries) Latest() []Observation {
	byDate := make(map[Date]Observation, len(ts.observations))
	for _, o := range ts.observations {
		cur, ok := byDate[o.Date]
		if !ok || !o.PullDate.Before(cur.PullDate) {
			byDate[o.Date] = o
		}
	}
	out := make([]Observation, 0, len(byDate))
	for _, o := range byDate {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Observation) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// Merge returns a new series holding the observations of ts followed by those
// of other. Both must belong to the same series.
func (ts TimeSeries) Merge(other TimeSeries) (TimeSeries, error) {
	if ts.seriesID != other.seriesID {
		return TimeSeries{}, fmt.Errorf("merge time series: %q and %q differ", ts.seriesID, other.seriesID)
	}
	merged := make([]Observation, 0, len(ts.observations)+len(other.observations))
	merged = append(merged, ts.observations...)
	merged = append(merged, other.observations...)
	return TimeSeries{seriesID: ts.seriesID, observations: merged}, nil
}

// Table projects the series into rows sorted by date ascending.
func (ts TimeSeries) Table() Table {
	cols := append([]string{"series_id"}, Observation{}.Columns()...)
	sorted := ts.Sorted()
	rows := make([][]any, len(sorted))
	for i, o := range sorted {
		rows[i] = append([]any{ts.seriesID}, o.Values()...)
	}
	return Table{Columns: cols, Rows: rows}
}

// Map returns the series as plain key-value data.
func (ts TimeSeries) Map() map[string]any {
	obs := make([]map[string]any, len(ts.observations))
	for i, o := range ts.observations {
		obs[i] = recordMap(o)
	}
	return map[string]any{
		"series_id":    ts.seriesID,
		"observations": obs,
	}
}

// JSON renders the series as indented JSON.
func (ts TimeSeries) JSON(indent int) (string, error) {
	return marshalIndent(ts, indent)
}

type timeSeriesJSON struct {
	SeriesID     string        `json:"series_id"`
	Observations []Observation `json:"observations"`
}

func (ts TimeSeries) MarshalJSON() ([]byte, error) {
	obs := ts.observations
	if obs == nil {
		obs = []Observation{}
	}
	return json.Marshal(timeSeriesJSON{SeriesID: ts.seriesID, Observations: obs})
}

func (ts *TimeSeries) UnmarshalJSON(b []byte) error {
	var v timeSeriesJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*ts = TimeSeries{seriesID: v.SeriesID, observations: v.Observations}
	return nil
}

// ParseTimeSeries decodes the output of TimeSeries.JSON.
func ParseTimeSeries(s string) (TimeSeries, error) {
	var ts TimeSeries
	if err := json.Unmarshal([]byte(s), &ts); err != nil {
		return TimeSeries{}, fmt.Errorf("parse time series: %w", err)
	}
	return ts, nil
}

func marshalIndent(v any, indent int) (string, error) {
	if indent < 0 {
		b, err := json.Marshal(v)
		return string(b), err
	}
	b, err := json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	return string(b), err
}
