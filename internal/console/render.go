package console

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/textsql/textsql/internal/chart"
	"github.com/textsql/textsql/internal/query"
)

const (
	defaultMaxRows  = 50
	defaultBarWidth = 40
)

// RenderTable draws at most maxRows rows of result as a bordered table.
func RenderTable(result query.Result, maxRows int) string {
	if len(result.Columns) == 0 {
		return mutedStyle.Render("(statement returned no columns)")
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	shown := result.Rows
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	rows := make([][]string, 0, len(shown))
	for _, row := range shown {
		cells := make([]string, len(result.Columns))
		for i := range cells {
			if i < len(row.Fields) {
				cells[i] = chart.Label(row.Fields[i])
			}
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(result.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString("\n")
	switch hidden := len(result.Rows) - len(shown); {
	case hidden > 0:
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d rows (%d not shown)", len(result.Rows), hidden)))
	case len(result.Rows) == 1:
		b.WriteString(mutedStyle.Render("1 row"))
	default:
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d rows", len(result.Rows))))
	}
	return b.String()
}

// RenderBars draws spec as horizontal bars scaled to width cells.
func RenderBars(spec chart.Spec, width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}
	if len(spec.Labels) == 0 {
		return mutedStyle.Render("(nothing to chart)")
	}

	labelWidth := 0
	peak := 0.0
	for i, label := range spec.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(label))
		peak = max(peak, spec.Values[i])
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s by %s", spec.Y, spec.X)))
	for i, label := range spec.Labels {
		cells := 0
		if peak > 0 && spec.Values[i] > 0 {
			cells = int(math.Round(spec.Values[i] / peak * float64(width)))
		}
		b.WriteString("\n")
		b.WriteString(label)
		b.WriteString(strings.Repeat(" ", labelWidth-lipgloss.Width(label)))
		b.WriteString(" │ ")
		b.WriteString(barStyle.Render(strings.Repeat("█", cells)))
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(spec.Values[i], 'f', -1, 64))
	}
	return b.String()
}

func renderSchema(schema query.Schema) string {
	if len(schema.Tables) == 0 {
		return mutedStyle.Render("(store has no tables)")
	}
	return schema.String()
}
