package query

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrSchemaUnavailable wraps every failure to read a store's catalog.
var ErrSchemaUnavailable = errors.New("could not read schema")

// Kind tags the storage class of a single cell.
type Kind string

const (
	KindNull    Kind = "null"
	KindInteger Kind = "integer"
	KindReal    Kind = "real"
	KindText    Kind = "text"
	KindBlob    Kind = "blob"
)

// Numeric reports whether cells of this kind can be plotted.
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindReal
}

type Field struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Value any    `json:"value"`
}

type Row struct {
	Fields []Field `json:"fields"`
}

// Value returns the value of the named field and whether it exists.
func (r Row) Value(name string) (any, bool) {
	for _, field := range r.Fields {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Records flattens the rows into column-keyed maps. Duplicate column names
// keep the last value, matching what a JSON object can carry.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(row.Fields))
		for _, field := range row.Fields {
			record[field.Name] = field.Value
		}
		records = append(records, record)
	}
	return records
}

// ColumnKind reports the kind of the first non-null cell in column index,
// or KindNull when every cell is null.
func (r Result) ColumnKind(index int) Kind {
	for _, row := range r.Rows {
		if index < 0 || index >= len(row.Fields) {
			continue
		}
		if kind := row.Fields[index].Kind; kind != KindNull {
			return kind
		}
	}
	return KindNull
}

// Outcome holds either a Result or a non-empty Error, never both.
type Outcome struct {
	Result   *Result
	Error    string
	Duration time.Duration
}

func (o Outcome) Failed() bool {
	return o.Error != ""
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Schema struct {
	Tables []Table `json:"tables"`
}

// String renders the schema in the text form used inside prompts.
func (s Schema) String() string {
	var b strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Table: ")
		b.WriteString(table.Name)
		b.WriteString("\n")
		for _, column := range table.Columns {
			b.WriteString(" - ")
			b.WriteString(column.Name)
			b.WriteString(" (")
			b.WriteString(column.Type)
			b.WriteString(")\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Executor runs SQL against a store. Query failures are reported through
// Outcome.Error; the returned error covers only an unusable store.
type Executor interface {
	Execute(ctx context.Context, storePath, sqlText string) (Outcome, error)
}

type Introspector interface {
	Introspect(ctx context.Context, storePath string) (Schema, error)
}
