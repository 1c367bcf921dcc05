// Package dataset loads CSV files and computes the descriptive statistics the
// pipeline reports back to users.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	DtypeInt    = "int64"
	DtypeFloat  = "float64"
	DtypeBool   = "bool"
	DtypeObject = "object"
)

var (
	ErrNotFound       = errors.New("csv file not found")
	ErrNoHeader       = errors.New("csv file has no header row")
	ErrColumnNotFound = errors.New("column not found")
)

// Cells matching these, ignoring case, are treated as missing values.
var nullTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "#n/a": true, "#n/a n/a": true, "#na": true,
	"<na>": true, "nan": true, "-nan": true, "+nan": true, "null": true, "none": true,
	"1.#ind": true, "-1.#ind": true, "1.#qnan": true, "-1.#qnan": true,
}

func isNull(raw string) bool {
	return nullTokens[strings.ToLower(raw)]
}

// Record is one row keyed by column name with typed cell values.
type Record map[string]any

// Frame is an in-memory table. Cells are kept as text; Dtypes holds the type
// inferred per column at load time.
type Frame struct {
	Name    string
	Columns []string
	Dtypes  []string
	rows    [][]string
}

func Load(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHeader, filepath.Base(path))
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return NewFrame(filepath.Base(path), header, records[1:]), nil
}

// NewFrame builds a frame from already split rows. Every row must have one
// cell per column.
func NewFrame(name string, columns []string, rows [][]string) *Frame {
	fr := &Frame{Name: name, Columns: columns, rows: rows}
	fr.Dtypes = make([]string, len(columns))
	for i := range columns {
		fr.Dtypes[i] = inferDtype(rows, i)
	}
	return fr
}

func (f *Frame) Len() int { return len(f.rows) }

// Head returns up to n rows as typed records.
func (f *Frame) Head(n int) []Record {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	out := make([]Record, 0, n)
	for _, row := range f.rows[:n] {
		out = append(out, f.record(row))
	}
	return out
}

// Describe mirrors the numeric columns of a describe() table.
type Describe struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"25%"`
	P50   float64 `json:"50%"`
	P75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

type Summary struct {
	Shape          [2]int              `json:"shape"`
	Columns        []string            `json:"columns"`
	Dtypes         map[string]string   `json:"dtypes"`
	NullCounts     map[string]int      `json:"null_counts"`
	NumericSummary map[string]Describe `json:"numeric_summary"`
}

// Summary computes shape, types, missing values and numeric statistics.
// Numeric columns without any values are left out of NumericSummary.
func (f *Frame) Summary() Summary {
	s := Summary{
		Shape:          [2]int{len(f.rows), len(f.Columns)},
		Columns:        append([]string(nil), f.Columns...),
		Dtypes:         make(map[string]string, len(f.Columns)),
		NullCounts:     make(map[string]int, len(f.Columns)),
		NumericSummary: make(map[string]Describe),
	}
	for i, col := range f.Columns {
		s.Dtypes[col] = f.Dtypes[i]
		s.NullCounts[col] = f.nullCount(i)
		if !isNumeric(f.Dtypes[i]) {
			continue
		}
		if xs := f.floats(i); len(xs) > 0 {
			s.NumericSummary[col] = describe(xs)
		}
	}
	return s
}

type ColumnInfo struct {
	Name         string   `json:"name"`
	Dtype        string   `json:"dtype"`
	NullCount    int      `json:"null_count"`
	UniqueCount  int      `json:"unique_count"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
	Median       *float64 `json:"median,omitempty"`
	SampleValues []any    `json:"sample_values,omitempty"`
}

func (f *Frame) Column(name string) (ColumnInfo, error) {
	i := f.index(name)
	if i < 0 {
		return ColumnInfo{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	info := ColumnInfo{
		Name:      name,
		Dtype:     f.Dtypes[i],
		NullCount: f.nullCount(i),
	}
	unique := make(map[string]struct{})
	for _, row := range f.rows {
		if !isNull(row[i]) {
			unique[row[i]] = struct{}{}
		}
	}
	info.UniqueCount = len(unique)

	if xs := f.floats(i); isNumeric(info.Dtype) && len(xs) > 0 {
		d := describe(xs)
		info.Min, info.Max, info.Mean, info.Median = &d.Min, &d.Max, &d.Mean, &d.P50
		return info, nil
	}
	for _, row := range f.rows {
		if len(info.SampleValues) == 10 {
			break
		}
		if v := cellValue(info.Dtype, row[i]); v != nil {
			info.SampleValues = append(info.SampleValues, v)
		}
	}
	return info, nil
}

// Filter keeps rows matching every condition. Numbers match by equality,
// strings by case-insensitive substring, lists by membership. Conditions on
// unknown columns are ignored.
func (f *Frame) Filter(conditions map[string]any) *Frame {
	rows := f.rows
	for col, want := range conditions {
		i := f.index(col)
		if i < 0 {
			continue
		}
		kept := make([][]string, 0, len(rows))
		for _, row := range rows {
			if matches(f.Dtypes[i], row[i], want) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return &Frame{Name: f.Name, Columns: f.Columns, Dtypes: f.Dtypes, rows: rows}
}

func matches(dtype, raw string, want any) bool {
	if isNull(raw) {
		return false
	}
	switch w := want.(type) {
	case float64:
		v, err := strconv.ParseFloat(raw, 64)
		return err == nil && v == w
	case int:
		v, err := strconv.ParseFloat(raw, 64)
		return err == nil && v == float64(w)
	case bool:
		v, ok := cellValue(dtype, raw).(bool)
		return ok && v == w
	case string:
		return strings.Contains(strings.ToLower(raw), strings.ToLower(w))
	case []any:
		for _, item := range w {
			if _, nested := item.([]any); nested {
				continue
			}
			if s, ok := item.(string); ok {
				if raw == s {
					return true
				}
				continue
			}
			if matches(dtype, raw, item) {
				return true
			}
		}
	}
	return false
}

func (f *Frame) record(row []string) Record {
	r := make(Record, len(f.Columns))
	for i, col := range f.Columns {
		r[col] = cellValue(f.Dtypes[i], row[i])
	}
	return r
}

func (f *Frame) index(name string) int {
	for i, col := range f.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

func (f *Frame) nullCount(i int) int {
	n := 0
	for _, row := range f.rows {
		if isNull(row[i]) {
			n++
		}
	}
	return n
}

func (f *Frame) floats(i int) []float64 {
	xs := make([]float64, 0, len(f.rows))
	for _, row := range f.rows {
		if isNull(row[i]) {
			continue
		}
		if v, err := strconv.ParseFloat(row[i], 64); err == nil && !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	return xs
}

func isNumeric(dtype string) bool {
	return dtype == DtypeInt || dtype == DtypeFloat
}

// inferDtype follows pandas: integer columns with gaps become float64,
// boolean columns with gaps become object, all-missing columns are float64.
func inferDtype(rows [][]string, i int) string {
	var values, nulls int
	allInt, allFloat, allBool := true, true, true
	for _, row := range rows {
		raw := row[i]
		if isNull(raw) {
			nulls++
			continue
		}
		values++
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			allInt = false
		}
		if v, err := strconv.ParseFloat(raw, 64); err != nil || math.IsInf(v, 0) {
			allFloat = false
		}
		if _, ok := parseBool(raw); !ok {
			allBool = false
		}
	}
	switch {
	case values == 0:
		return DtypeFloat
	case allInt && nulls == 0:
		return DtypeInt
	case allInt || allFloat:
		return DtypeFloat
	case allBool && nulls == 0:
		return DtypeBool
	default:
		return DtypeObject
	}
}

func cellValue(dtype, raw string) any {
	if isNull(raw) {
		return nil
	}
	switch dtype {
	case DtypeInt:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	case DtypeFloat:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case DtypeBool:
		if v, ok := parseBool(raw); ok {
			return v
		}
	}
	return raw
}

func parseBool(raw string) (bool, bool) {
	switch raw {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}

// describe expects a non-empty slice. Std is the sample standard deviation
// and is reported as 0 for a single value.
func describe(xs []float64) Describe {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	var sum float64
	for _, x := range sorted {
		sum += x
	}
	mean := sum / n
	if math.IsInf(mean, 0) {
		mean = 0
		for _, x := range sorted {
			mean += x / n
		}
	}

	var std float64
	if len(sorted) > 1 {
		var sq float64
		for _, x := range sorted {
			sq += (x - mean) * (x - mean)
		}
		std = math.Sqrt(sq / (n - 1))
		if math.IsInf(std, 0) || math.IsNaN(std) {
			std = scaledStd(sorted, mean)
		}
	}

	return Describe{
		Count: len(sorted),
		Mean:  finite(mean),
		Std:   finite(std),
		Min:   sorted[0],
		P25:   quantile(sorted, 0.25),
		P50:   quantile(sorted, 0.50),
		P75:   quantile(sorted, 0.75),
		Max:   sorted[len(sorted)-1],
	}
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	if span := sorted[hi] - sorted[lo]; !math.IsInf(span, 0) {
		return sorted[lo] + span*frac
	}
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// scaledStd works on halved deviations scaled by the largest one, so that
// squares of values near the float64 limit do not overflow.
func scaledStd(xs []float64, mean float64) float64 {
	var scale float64
	for _, x := range xs {
		scale = math.Max(scale, math.Abs(x/2-mean/2))
	}
	if scale == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := (x/2 - mean/2) / scale
		sq += d * d
	}
	return 2 * scale * math.Sqrt(sq/float64(len(xs)-1))
}

// finite clamps results that overflowed so they stay JSON-encodable.
func finite(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case math.IsInf(x, 1):
		return math.MaxFloat64
	case math.IsInf(x, -1):
		return -math.MaxFloat64
	}
	return x
}
