package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textsql/textsql/internal/query"
)

func employees() query.Result {
	row := func(id int64, name, dept string, salary int64) query.Row {
		return query.Row{Fields: []query.Field{
			{Name: "id", Kind: query.KindInteger, Value: id},
			{Name: "name", Kind: query.KindText, Value: name},
			{Name: "department", Kind: query.KindText, Value: dept},
			{Name: "salary", Kind: query.KindInteger, Value: salary},
		}}
	}
	return query.Result{
		Columns: []string{"id", "name", "department", "salary"},
		Rows: []query.Row{
			row(1, "Alice", "HR", 50000),
			row(2, "Bob", "Engineering", 80000),
			row(3, "Charlie", "Sales", 60000),
			row(4, "David", "Engineering", 90000),
		},
	}
}

func TestSuggestPicksTextXAndNumericY(t *testing.T) {
	spec, ok := Suggest(employees())
	require.True(t, ok)
	assert.Equal(t, KindBar, spec.Kind)
	assert.Equal(t, "name", spec.X)
	assert.Equal(t, "id", spec.Y)
	assert.Equal(t, []string{"Alice", "Bob", "Charlie", "David"}, spec.Labels)
	assert.Equal(t, []float64{1, 2, 3, 4}, spec.Values)
}

func TestSuggestNeedsTwoColumns(t *testing.T) {
	_, ok := Suggest(query.Result{Columns: []string{"only"}})
	assert.False(t, ok)
}

func TestSuggestFallsBackToFirstColumns(t *testing.T) {
	result := query.Result{
		Columns: []string{"a", "b"},
		Rows: []query.Row{{Fields: []query.Field{
			{Name: "a", Kind: query.KindInteger, Value: int64(1)},
			{Name: "b", Kind: query.KindInteger, Value: int64(7)},
		}}},
	}
	spec, ok := Suggest(result)
	require.True(t, ok)
	assert.Equal(t, "a", spec.X)
	assert.Equal(t, "b", spec.Y)
	assert.Equal(t, []string{"1"}, spec.Labels)
	assert.Equal(t, []float64{7}, spec.Values)
}

func TestSuggestOnEmptyResult(t *testing.T) {
	spec, ok := Suggest(query.Result{Columns: []string{"department", "total"}})
	require.True(t, ok)
	assert.Equal(t, "department", spec.X)
	assert.Equal(t, "total", spec.Y)
	assert.Empty(t, spec.Labels)
}

func TestBuildAveragesRepeatedLabels(t *testing.T) {
	spec, err := Build(employees(), "department", "salary")
	require.NoError(t, err)
	assert.Equal(t, []string{"HR", "Engineering", "Sales"}, spec.Labels)
	assert.Equal(t, []float64{50000, 85000, 60000}, spec.Values)
}

func TestBuildTreatsNonNumericAsZero(t *testing.T) {
	spec, err := Build(employees(), "name", "department")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, spec.Values)
}

func TestBuildRejectsUnknownAxes(t *testing.T) {
	_, err := Build(employees(), "nope", "salary")
	require.Error(t, err)
	_, err = Build(employees(), "name", "nope")
	require.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "NULL", Label(query.Field{Kind: query.KindNull}))
	assert.Equal(t, "2.5", Label(query.Field{Kind: query.KindReal, Value: 2.5}))
	assert.Equal(t, "<3 bytes>", Label(query.Field{Kind: query.KindBlob, Value: []byte{1, 2, 3}}))
}
