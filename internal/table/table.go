// Package table holds the flat weather table and turns it into the report.
package table

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Source field paths in a flattened current-weather response.
const (
	FieldName        = "name"
	FieldCloudiness  = "clouds.all"
	FieldCountry     = "sys.country"
	FieldRawHumidity = "main.humidity"
	FieldHumidity    = "humidity"
	FieldDate        = "dt"
	FieldLatitude    = "coord.lat"
	FieldLongitude   = "coord.lon"
	FieldMaxTemp     = "main.temp_max"
	FieldWindSpeed   = "wind.speed"
	FieldStatus      = "cod"
)

// RequiredFields are the paths a response must carry to become a Record.
// sys.country is absent for some remote places and is not required.
var RequiredFields = []string{
	FieldName,
	FieldCloudiness,
	FieldRawHumidity,
	FieldDate,
	FieldLatitude,
	FieldLongitude,
	FieldMaxTemp,
	FieldWindSpeed,
}

// Record is one flattened API response keyed by dotted path.
type Record map[string]any

// Float returns the value at key as a float64. JSON numbers, json.Number and
// numeric strings are accepted. NaN and infinities are rejected.
func (r Record) Float(key string) (float64, bool) {
	var f float64
	switch v := r[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String returns the value at key if it is a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// RawTable accumulates records in fetch order. Not safe for concurrent use.
type RawTable struct {
	rows []Record
}

// NewRawTable returns an empty table.
func NewRawTable() *RawTable {
	return &RawTable{}
}

// Append adds a record and returns the new row count.
func (t *RawTable) Append(r Record) int {
	t.rows = append(t.rows, r)
	return len(t.rows)
}

// Len returns the number of rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns the records in insertion order. Callers must not modify them.
func (t *RawTable) Rows() []Record {
	if t == nil {
		return nil
	}
	return t.rows
}

// Columns returns the sorted union of keys across all rows.
func (t *RawTable) Columns() []string {
	set := map[string]struct{}{}
	for _, r := range t.Rows() {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
