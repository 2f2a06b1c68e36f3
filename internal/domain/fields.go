package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rawRecord is one provider object with its fields left undecoded so each
// field can be validated on its own.
type rawRecord struct {
	kind   string
	fields map[string]json.RawMessage
}

func decodeRecord(kind string, b []byte) (rawRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return rawRecord{}, invalid(kind, "", "not a JSON object: %v", err)
	}
	if fields == nil {
		return rawRecord{}, invalid(kind, "", "record is null")
	}
	return rawRecord{kind: kind, fields: fields}, nil
}

// decodeList pulls the record array stored under key. A missing or null key
// yields an empty list.
func decodeList(payload []byte, key string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	raw, ok := envelope[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %q is not an array: %v", ErrMalformedPayload, key, err)
	}
	return list, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (r rawRecord) lookup(key string) (json.RawMessage, bool) {
	raw, ok := r.fields[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (r rawRecord) has(key string) bool {
	_, ok := r.lookup(key)
	return ok
}

func (r rawRecord) str(key string) (string, error) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", invalid(r.kind, key, "missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(r.kind, key, "expected string, got %s", raw)
	}
	return s, nil
}

// optStr returns "" when the field is absent but still rejects a wrong shape.
func (r rawRecord) optStr(key string) (string, error) {
	if !r.has(key) {
		return "", nil
	}
	return r.str(key)
}

// integer accepts a JSON integer or a string holding one.
func (r rawRecord) integer(key string) (int, error) {
	raw, ok := r.lookup(key)
	if !ok {
		return 0, invalid(r.kind, key, "missing")
	}
	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, invalid(r.kind, key, "expected integer, got %s", raw)
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, invalid(r.kind, key, "expected integer, got %s", raw)
	}
	return n, nil
}

// boolean accepts a JSON boolean or a string holding one.
func (r rawRecord) boolean(key string) (bool, error) {
	raw, ok := r.lookup(key)
	if !ok {
		return false, invalid(r.kind, key, "missing")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.ParseBool(strings.TrimSpace(s)); perr == nil {
			return parsed, nil
		}
	}
	return false, invalid(r.kind, key, "expected boolean, got %s", raw)
}

func (r rawRecord) date(key string) (Date, error) {
	s, err := r.str(key)
	if err != nil {
		return Date{}, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, invalid(r.kind, key, "expected YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

func (r rawRecord) timestamp(key string) (time.Time, error) {
	s, err := r.str(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseLastUpdated(s)
	if err != nil {
		return time.Time{}, invalid(r.kind, key, "unsupported timestamp %q", s)
	}
	return t.UTC(), nil
}
