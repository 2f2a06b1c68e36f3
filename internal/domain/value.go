package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// missingSentinels are the markers the provider uses for a missing or suppressed
// data point. JSON null is handled separately.
var missingSentinels = map[string]struct{}{
	"":    {},
	".":   {},
	"NA":  {},
	"N/A": {},
}

// Value is an optional observation value. The zero Value is missing.
type Value struct {
	v     float64
	valid bool
}

// Some returns a present Value. NaN and infinities are treated as missing
// because they have no JSON representation.
func Some(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{v: f, valid: true}
}

// Missing returns an absent Value.
func Missing() Value {
	return Value{}
}

// CoerceValue converts a loosely-typed raw value into a Value. Sentinels,
// nil, and anything that does not parse as a number become missing; it never fails.
func CoerceValue(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Missing()
	case Value:
		return v
	case float64:
		return Some(v)
	case float32:
		return Some(float64(v))
	case int:
		return Some(float64(v))
	case int64:
		return Some(float64(v))
	case json.Number:
		return parseValueString(v.String())
	case string:
		return parseValueString(v)
	case *string:
		if v == nil {
			return Missing()
		}
		return parseValueString(*v)
	default:
		return Missing()
	}
}

func parseValueString(s string) Value {
	s = strings.TrimSpace(s)
	if _, ok := missingSentinels[s]; ok {
		return Missing()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Missing()
	}
	return Some(f)
}

// Float returns the value and whether it is present.
func (v Value) Float() (float64, bool) {
	return v.v, v.valid
}

func (v Value) Valid() bool {
	return v.valid
}

// Ptr returns nil for a missing value, for storage drivers and tabular output.
func (v Value) Ptr() *float64 {
	if !v.valid {
		return nil
	}
	f := v.v
	return &f
}

func (v Value) String() string {
	if !v.valid {
		return ""
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts null, a JSON number, or a string, applying the same
// coercion as CoerceValue.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Missing()
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = parseValueString(s)
		return nil
	}
	*v = parseValueString(string(b))
	return nil
}
