// Package chart picks axes for a query result and turns it into bar data.
package chart

import (
	"fmt"
	"strconv"

	"github.com/textsql/textsql/internal/query"
)

const KindBar = "bar"

// Spec is a bar chart over two result columns. Rows sharing a label are
// averaged into one bar; labels keep their first-seen order.
type Spec struct {
	Kind   string    `json:"kind"`
	X      string    `json:"x"`
	Y      string    `json:"y"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Suggest picks default axes and builds the chart. It reports false for
// results with fewer than two columns.
func Suggest(result query.Result) (Spec, bool) {
	if len(result.Columns) < 2 {
		return Spec{}, false
	}
	x := defaultX(result)
	y := defaultY(result, x)
	spec, err := Build(result, result.Columns[x], result.Columns[y])
	if err != nil {
		return Spec{}, false
	}
	return spec, true
}

// Build charts column y against column x. Cells of y that are not numeric
// count as zero.
func Build(result query.Result, x, y string) (Spec, error) {
	xIndex := columnIndex(result, x)
	if xIndex < 0 {
		return Spec{}, fmt.Errorf("unknown x axis %q", x)
	}
	yIndex := columnIndex(result, y)
	if yIndex < 0 {
		return Spec{}, fmt.Errorf("unknown y axis %q", y)
	}

	spec := Spec{Kind: KindBar, X: x, Y: y, Labels: []string{}, Values: []float64{}}
	positions := map[string]int{}
	counts := []int{}
	for _, row := range result.Rows {
		if xIndex >= len(row.Fields) || yIndex >= len(row.Fields) {
			continue
		}
		label := Label(row.Fields[xIndex])
		value := numeric(row.Fields[yIndex])
		pos, ok := positions[label]
		if !ok {
			pos = len(spec.Labels)
			positions[label] = pos
			spec.Labels = append(spec.Labels, label)
			spec.Values = append(spec.Values, 0)
			counts = append(counts, 0)
		}
		spec.Values[pos] += value
		counts[pos]++
	}
	for i, count := range counts {
		spec.Values[i] /= float64(count)
	}
	return spec, nil
}

// Label renders a cell as a category name.
func Label(field query.Field) string {
	switch v := field.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	default:
		return fmt.Sprint(v)
	}
}

func numeric(field query.Field) float64 {
	switch v := field.Value.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

func defaultX(result query.Result) int {
	for i := range result.Columns {
		if result.ColumnKind(i) == query.KindText {
			return i
		}
	}
	return 0
}

func defaultY(result query.Result, x int) int {
	for i := range result.Columns {
		if i != x && result.ColumnKind(i).Numeric() {
			return i
		}
	}
	if x == 1 {
		return 0
	}
	return 1
}

func columnIndex(result query.Result, name string) int {
	for i, column := range result.Columns {
		if column == name {
			return i
		}
	}
	return -1
}
