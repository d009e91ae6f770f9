package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	duckdbdriver "github.com/marcboeker/go-duckdb/v2"

	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/query"
	"github.com/textsql/textsql/internal/query/sqlite"
)

// Importer reads CSV and parquet files with DuckDB, which infers column
// types, and copies the rows into a SQLite store.
type Importer struct {
	logger *slog.Logger
}

var _ dataset.Importer = (*Importer)(nil)

func NewImporter(logger *slog.Logger) *Importer {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Importer{logger: logger}
}

func (i *Importer) Import(ctx context.Context, storePath, sourcePath string, kind dataset.Kind) (dataset.ImportResult, error) {
	if !kind.Tabular() {
		return dataset.ImportResult{}, fmt.Errorf("%w: %s is not tabular", dataset.ErrUnsupportedFormat, kind)
	}

	duck, err := sql.Open("duckdb", "")
	if err != nil {
		return dataset.ImportResult{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = duck.Close() }()

	rows, columnTypes, err := readSource(ctx, duck, sourceExpression(sourcePath, kind, nil))
	if err != nil {
		return dataset.ImportResult{}, err
	}
	// CSV cells already hold the text the user wrote; re-read date and time
	// columns as VARCHAR so that text is stored unchanged.
	if kind == dataset.KindCSV {
		if textColumns := temporalColumns(columnTypes); len(textColumns) > 0 {
			_ = rows.Close()
			rows, columnTypes, err = readSource(ctx, duck, sourceExpression(sourcePath, kind, textColumns))
			if err != nil {
				return dataset.ImportResult{}, err
			}
		}
	}
	defer func() { _ = rows.Close() }()

	columns := make([]query.Column, len(columnTypes))
	sourceTypes := make([]string, len(columnTypes))
	for index, columnType := range columnTypes {
		sourceTypes[index] = strings.ToUpper(columnType.DatabaseTypeName())
		columns[index] = query.Column{Name: columnType.Name(), Type: sqliteType(sourceTypes[index])}
	}

	store, err := sqlite.Open(ctx, storePath)
	if err != nil {
		return dataset.ImportResult{}, err
	}
	defer func() { _ = store.Close() }()

	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return dataset.ImportResult{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(nl2sql.UploadedTable)); err != nil {
		return dataset.ImportResult{}, fmt.Errorf("drop previous upload table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(nl2sql.UploadedTable, columns)); err != nil {
		return dataset.ImportResult{}, fmt.Errorf("create upload table: %w", err)
	}
	insert, err := tx.PrepareContext(ctx, insertSQL(nl2sql.UploadedTable, len(columns)))
	if err != nil {
		return dataset.ImportResult{}, fmt.Errorf("prepare upload insert: %w", err)
	}
	defer func() { _ = insert.Close() }()

	var inserted int64
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for index := range values {
			scanTargets[index] = &values[index]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return dataset.ImportResult{}, fmt.Errorf("%w: scan row %d: %w", dataset.ErrInvalidUpload, inserted+1, err)
		}
		for index, value := range values {
			values[index] = normalizeValue(value, sourceTypes[index])
		}
		if _, err := insert.ExecContext(ctx, values...); err != nil {
			return dataset.ImportResult{}, fmt.Errorf("insert row %d: %w", inserted+1, err)
		}
		inserted++
	}
	if err := rows.Err(); err != nil {
		return dataset.ImportResult{}, fmt.Errorf("%w: %w", dataset.ErrInvalidUpload, err)
	}
	if err := tx.Commit(); err != nil {
		return dataset.ImportResult{}, fmt.Errorf("commit import: %w", err)
	}

	i.logger.DebugContext(ctx, "upload table loaded",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("kind", string(kind)),
		slog.Int("columns", len(columns)),
		slog.Int64("rows", inserted),
	)
	return dataset.ImportResult{Table: nl2sql.UploadedTable, Rows: inserted, Columns: columns}, nil
}

func readSource(ctx context.Context, duck *sql.DB, source string) (*sql.Rows, []*sql.ColumnType, error) {
	rows, err := duck.QueryContext(ctx, "SELECT * FROM "+source)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", dataset.ErrInvalidUpload, err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, nil, fmt.Errorf("%w: %w", dataset.ErrInvalidUpload, err)
	}
	if len(columnTypes) == 0 {
		_ = rows.Close()
		return nil, nil, fmt.Errorf("%w: no columns found", dataset.ErrInvalidUpload)
	}
	return rows, columnTypes, nil
}

// sourceExpression is the DuckDB table function reading path. textColumns
// names CSV columns to read as VARCHAR instead of the sniffed type.
func sourceExpression(path string, kind dataset.Kind, textColumns []string) string {
	if kind == dataset.KindParquet {
		return fmt.Sprintf("read_parquet(%s)", quoteString(path))
	}
	if len(textColumns) == 0 {
		return fmt.Sprintf("read_csv_auto(%s, header=true)", quoteString(path))
	}
	overrides := make([]string, len(textColumns))
	for index, name := range textColumns {
		overrides[index] = quoteString(name) + ": 'VARCHAR'"
	}
	return fmt.Sprintf("read_csv_auto(%s, header=true, types={%s})", quoteString(path), strings.Join(overrides, ", "))
}

func temporalColumns(columnTypes []*sql.ColumnType) []string {
	var names []string
	for _, columnType := range columnTypes {
		if isTemporal(strings.ToUpper(columnType.DatabaseTypeName())) {
			names = append(names, columnType.Name())
		}
	}
	return names
}

func isTemporal(duckType string) bool {
	return duckType == "DATE" || strings.HasPrefix(duckType, "TIME")
}

// sqliteType maps a DuckDB column type onto a SQLite declared type.
func sqliteType(duckType string) string {
	switch {
	case duckType == "BOOLEAN",
		strings.HasSuffix(duckType, "INT"),
		duckType == "BIGINT", duckType == "HUGEINT", duckType == "UHUGEINT",
		duckType == "INTEGER", duckType == "UINTEGER", duckType == "UBIGINT":
		return "INTEGER"
	case duckType == "FLOAT", duckType == "DOUBLE", duckType == "REAL",
		strings.HasPrefix(duckType, "DECIMAL"):
		return "REAL"
	case duckType == "BLOB":
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Layouts matching DuckDB's own text rendering, fractional seconds included.
const (
	timestampLayout     = "2006-01-02 15:04:05.999999999"
	timestampZoneLayout = "2006-01-02 15:04:05.999999999Z07:00"
	timeLayout          = "15:04:05.999999999"
)

func normalizeValue(value any, duckType string) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case bool:
		if typed {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		switch {
		case duckType == "DATE":
			return typed.Format(time.DateOnly)
		case strings.HasPrefix(duckType, "TIMESTAMP"):
			if strings.Contains(duckType, "TZ") || strings.Contains(duckType, "TIME ZONE") {
				return typed.Format(timestampZoneLayout)
			}
			return typed.Format(timestampLayout)
		case strings.HasPrefix(duckType, "TIME"):
			return typed.Format(timeLayout)
		default:
			return typed.Format(time.RFC3339Nano)
		}
	case duckdbdriver.Decimal:
		return typed.Float64()
	case *big.Int:
		return typed.String()
	case string, []byte, int64, int32, int16, int8, float64, float32:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed <= math.MaxInt64 {
			return int64(typed)
		}
		// Values above MaxInt64 do not fit a SQLite integer.
		return new(big.Int).SetUint64(typed).String()
	case []any, map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func createTableSQL(table string, columns []query.Column) string {
	definitions := make([]string, len(columns))
	for index, column := range columns {
		definitions[index] = quoteIdent(column.Name) + " " + column.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(definitions, ", "))
}

func insertSQL(table string, columnCount int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", columnCount), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), placeholders)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
