package dataset

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const salesCSV = "id,amount,region,paid\n1,10.5,North,true\n2,20,South,false\n3,30,north,true\n"

func TestLoad(t *testing.T) {
	p := writeCSV(t, t.TempDir(), "sales.csv", salesCSV)

	fr, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", fr.Name)
	assert.Equal(t, 3, fr.Len())
	assert.Equal(t, []string{"id", "amount", "region", "paid"}, fr.Columns)
	assert.Equal(t, []string{DtypeInt, DtypeFloat, DtypeObject, DtypeBool}, fr.Dtypes)
}

func TestLoad_StripsBOM(t *testing.T) {
	p := writeCSV(t, t.TempDir(), "bom.csv", "\ufeffid,v\n1,2\n")
	fr, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "id", fr.Columns[0])
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing.csv")

	_, err = Load(writeCSV(t, dir, "empty.csv", ""))
	require.ErrorIs(t, err, ErrNoHeader)

	_, err = Load(writeCSV(t, dir, "ragged.csv", "a,b\n1,2,3\n"))
	require.Error(t, err)
}

func TestHead_TypesValues(t *testing.T) {
	fr := NewFrame("t", []string{"id", "amount", "note"}, [][]string{
		{"1", "1.5", "x"},
		{"2", "", "y"},
	})
	rows := fr.Head(10)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, 1.5, rows[0]["amount"])
	assert.Nil(t, rows[1]["amount"])
	assert.Equal(t, "y", rows[1]["note"])

	assert.Len(t, fr.Head(1), 1)
}

func TestSummary(t *testing.T) {
	fr := NewFrame("t", []string{"id", "score", "name", "empty"}, [][]string{
		{"1", "2", "a", ""},
		{"2", "4", "b", ""},
		{"3", "NA", "", ""},
		{"4", "6", "d", ""},
	})
	s := fr.Summary()

	assert.Equal(t, [2]int{4, 4}, s.Shape)
	assert.Equal(t, DtypeInt, s.Dtypes["id"])
	assert.Equal(t, DtypeFloat, s.Dtypes["score"], "ints with gaps become float")
	assert.Equal(t, DtypeObject, s.Dtypes["name"])
	assert.Equal(t, 1, s.NullCounts["score"])
	assert.Equal(t, 1, s.NullCounts["name"])
	assert.Equal(t, 4, s.NullCounts["empty"])

	id := s.NumericSummary["id"]
	assert.Equal(t, 4, id.Count)
	assert.InDelta(t, 2.5, id.Mean, 1e-9)
	assert.InDelta(t, 1.2909944, id.Std, 1e-6)
	assert.InDelta(t, 1.75, id.P25, 1e-9)
	assert.InDelta(t, 2.5, id.P50, 1e-9)
	assert.InDelta(t, 3.25, id.P75, 1e-9)
	assert.Equal(t, 1.0, id.Min)
	assert.Equal(t, 4.0, id.Max)

	score := s.NumericSummary["score"]
	assert.Equal(t, 3, score.Count)
	assert.InDelta(t, 4.0, score.Mean, 1e-9)

	_, ok := s.NumericSummary["empty"]
	assert.False(t, ok, "columns without values have no statistics")
	_, ok = s.NumericSummary["name"]
	assert.False(t, ok)
}

func TestSummary_SingleValueStd(t *testing.T) {
	s := NewFrame("t", []string{"v"}, [][]string{{"7"}}).Summary()
	assert.Equal(t, 0.0, s.NumericSummary["v"].Std)
}

func TestSummary_NaNSpellingsAreMissing(t *testing.T) {
	fr := NewFrame("t", []string{"a"}, [][]string{{"1"}, {"NAN"}, {"Nan"}, {"<NA>"}, {"n/a"}, {"3"}})
	assert.Equal(t, DtypeFloat, fr.Dtypes[0])

	s := fr.Summary()
	assert.Equal(t, 4, s.NullCounts["a"])
	assert.Equal(t, 2, s.NumericSummary["a"].Count)
	assert.Equal(t, 2.0, s.NumericSummary["a"].Mean)

	_, err := json.Marshal(s)
	require.NoError(t, err)
}

func TestSummary_LargeValuesStayFinite(t *testing.T) {
	s := NewFrame("t", []string{"a", "b"}, [][]string{{"1e308", "-1e308"}, {"1e308", "1e308"}}).Summary()

	assert.Equal(t, 1e308, s.NumericSummary["a"].Mean)
	assert.Equal(t, 1e308, s.NumericSummary["a"].P50)
	assert.Equal(t, 0.0, s.NumericSummary["b"].Mean)
	assert.Equal(t, 0.0, s.NumericSummary["b"].P50)
	assert.InDelta(t, math.Sqrt2*1e308, s.NumericSummary["b"].Std, 1e294)

	_, err := json.Marshal(s)
	require.NoError(t, err)
}

func TestColumn(t *testing.T) {
	fr := NewFrame("t", []string{"amount", "region"}, [][]string{
		{"10", "North"}, {"20", "South"}, {"30", "North"}, {"", ""},
	})

	info, err := fr.Column("amount")
	require.NoError(t, err)
	assert.Equal(t, DtypeFloat, info.Dtype)
	assert.Equal(t, 1, info.NullCount)
	assert.Equal(t, 3, info.UniqueCount)
	require.NotNil(t, info.Median)
	assert.Equal(t, 20.0, *info.Median)
	assert.Equal(t, 10.0, *info.Min)
	assert.Empty(t, info.SampleValues)

	info, err = fr.Column("region")
	require.NoError(t, err)
	assert.Equal(t, 2, info.UniqueCount)
	assert.Equal(t, []any{"North", "South", "North"}, info.SampleValues)
	assert.Nil(t, info.Mean)

	_, err = fr.Column("nope")
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestFilter(t *testing.T) {
	p := writeCSV(t, t.TempDir(), "sales.csv", salesCSV)
	fr, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 2, fr.Filter(map[string]any{"region": "NORTH"}).Len())
	assert.Equal(t, 1, fr.Filter(map[string]any{"amount": 20.0}).Len())
	assert.Equal(t, 2, fr.Filter(map[string]any{"id": []any{1.0, "3"}}).Len())
	assert.Equal(t, 2, fr.Filter(map[string]any{"paid": true}).Len())
	assert.Equal(t, 1, fr.Filter(map[string]any{"region": "north", "id": 1.0}).Len())
	assert.Equal(t, 3, fr.Filter(map[string]any{"unknown": "x"}).Len())
	assert.Equal(t, 3, fr.Len(), "filter does not modify the source frame")
}
