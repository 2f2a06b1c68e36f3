// Package domain models macroeconomic series published by the Federal Reserve
// Economic Data (FRED) API and normalizes its JSON payloads into typed records.
//
// # Data Source
//
// Payloads come from https://api.stlouisfed.org/fred. Every endpoint wraps its
// records in an envelope keyed by record kind:
//
//	series               →  {"seriess": [...]}
//	series/observations  →  {"observations": [...]}
//	series/release       →  {"releases": [...]}
//	releases             →  {"releases": [...]}
//	release/dates        →  {"release_dates": [...]}
//
// Records also carry realtime_start/realtime_end and other fields this package
// does not use; unknown fields are ignored.
//
// # FRED Data Conventions
//
// Missing values:
//
//	Observation values are strings. "." is the FRED marker for a missing or
//	suppressed point; "", "NA" and "N/A" appear in derived feeds. These, JSON
//	null, and anything that does not parse as a number become a missing [Value].
//	Value coercion never fails a batch.
//
// Timestamps:
//
//	last_updated is "YYYY-MM-DD HH:MM:SS-05", a space-separated timestamp with a
//	two-digit UTC offset. [NormalizeTimestamp] rewrites it as RFC 3339
//	("YYYY-MM-DDTHH:MM:SS-05:00"); strings already in RFC 3339 pass through.
//
// Structural fields:
//
//	Dates are YYYY-MM-DD. Series id, observation date, release id and release
//	date are required; a missing or wrong-shaped required field fails the record
//	with [ErrInvalidRecord]. Popularity and ids may arrive as numbers or as
//	numeric strings.
//
// # Revisions
//
// FRED revises past observations. Each [Observation] carries the PullDate on
// which it was fetched, so repeated pulls of the same date coexist.
// [TimeSeries.Revisions] indexes them by (date, pull date) and
// [TimeSeries.Latest] keeps the most recent pull per date.
package domain
