package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// DefaultIndent is the indent width used for canonical JSON output.
const DefaultIndent = 2

// Record is implemented by every entity that can appear in a Collection.
// Columns and Values follow the entity's field declaration order.
type Record interface {
	Columns() []string
	Values() []any
}

// Table is a tabular projection: one row per record, columns in declaration order.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t Table) Len() int { return len(t.Rows) }

// Collection is an ordered, immutable sequence of records.
type Collection[T Record] struct {
	items []T
}

type (
	SeriesCollection        = Collection[Series]
	ReleaseCollection       = Collection[Release]
	ReleaseDateCollection   = Collection[ReleaseDate]
	SeriesReleaseCollection = Collection[SeriesRelease]
)

// NewCollection copies items into a new Collection.
func NewCollection[T Record](items ...T) Collection[T] {
	return Collection[T]{items: slices.Clone(items)}
}

func (c Collection[T]) Len() int { return len(c.items) }

// At returns the i-th record; it panics when i is out of range.
func (c Collection[T]) At(i int) T { return c.items[i] }

// Items returns a copy of the records in stored order.
func (c Collection[T]) Items() []T { return slices.Clone(c.items) }

// Table projects the collection without reordering rows.
func (c Collection[T]) Table() Table {
	var zero T
	rows := make([][]any, len(c.items))
	for i, item := range c.items {
		rows[i] = item.Values()
	}
	return Table{Columns: zero.Columns(), Rows: rows}
}

// Map returns each record as plain key-value data.
func (c Collection[T]) Map() []map[string]any {
	out := make([]map[string]any, len(c.items))
	for i, item := range c.items {
		out[i] = recordMap(item)
	}
	return out
}

// JSON renders the collection as an indented JSON array. A negative indent
// produces compact output.
func (c Collection[T]) JSON(indent int) (string, error) {
	return marshalIndent(c, indent)
}

func (c Collection[T]) MarshalJSON() ([]byte, error) {
	items := c.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func (c *Collection[T]) UnmarshalJSON(b []byte) error {
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	c.items = items
	return nil
}

// ParseCollection decodes the output of Collection.JSON.
func ParseCollection[T Record](s string) (Collection[T], error) {
	var c Collection[T]
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Collection[T]{}, fmt.Errorf("parse collection: %w", err)
	}
	return c, nil
}

func recordMap(r Record) map[string]any {
	cols := r.Columns()
	vals := r.Values()
	m := make(map[string]any, len(cols))
	for i, col := range cols {
		m[col] = vals[i]
	}
	return m
}
