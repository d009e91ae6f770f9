package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/query"
)

const emptyStatement = "empty statement"

type ExecutorOptions struct {
	// ReadOnly opens every store with mode=ro.
	ReadOnly bool
	// AllowedStatements limits the leading keyword of accepted SQL, for
	// example "select" and "with". Empty allows everything.
	AllowedStatements []string
	Logger            *slog.Logger
}

type Executor struct {
	readOnly bool
	allowed  []string
	logger   *slog.Logger
}

var _ query.Executor = (*Executor)(nil)

func NewExecutor(opts ExecutorOptions) *Executor {
	allowed := make([]string, 0, len(opts.AllowedStatements))
	for _, statement := range opts.AllowedStatements {
		statement = strings.ToLower(strings.TrimSpace(statement))
		if statement != "" {
			allowed = append(allowed, statement)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Executor{readOnly: opts.ReadOnly, allowed: allowed, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, storePath, sqlText string) (outcome query.Outcome, err error) {
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		observability.ObserveQueryExecution(err != nil || outcome.Failed(), outcome.Duration)
	}()

	if strings.TrimSpace(sqlText) == "" {
		return query.Outcome{Error: emptyStatement}, nil
	}
	if len(e.allowed) > 0 {
		keyword := leadingKeyword(sqlText)
		if !slices.Contains(e.allowed, keyword) {
			if keyword == "" {
				return query.Outcome{Error: emptyStatement}, nil
			}
			return query.Outcome{Error: fmt.Sprintf("statement type %q is not allowed", strings.ToUpper(keyword))}, nil
		}
	}

	mode := modeCreate
	if e.readOnly {
		mode = modeReadOnly
	}
	db, err := open(ctx, storePath, mode)
	if err != nil {
		return query.Outcome{}, err
	}
	defer func() { _ = db.Close() }()

	result, execErr := run(ctx, db, sqlText)
	if execErr != nil {
		e.logger.DebugContext(ctx, "statement failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", sqlText),
			slog.String("error", execErr.Error()),
		)
		return query.Outcome{Error: execErr.Error()}, nil
	}
	return query.Outcome{Result: result}, nil
}

func run(ctx context.Context, db *sql.DB, sqlText string) (*query.Result, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	declared := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		declared[i] = strings.ToUpper(columnType.DatabaseTypeName())
	}

	result := &query.Result{Columns: columns, Rows: make([]query.Row, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		fields := make([]query.Field, len(columns))
		for i, value := range values {
			kind, normalized := normalizeValue(value, declared[i])
			fields[i] = query.Field{Name: columns[i], Kind: kind, Value: normalized}
		}
		result.Rows = append(result.Rows, query.Row{Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizeValue(value any, declaredType string) (query.Kind, any) {
	switch typed := value.(type) {
	case nil:
		return query.KindNull, nil
	case int64:
		return query.KindInteger, typed
	case int:
		return query.KindInteger, int64(typed)
	case int32:
		return query.KindInteger, int64(typed)
	case float64:
		return query.KindReal, typed
	case float32:
		return query.KindReal, float64(typed)
	case bool:
		if typed {
			return query.KindInteger, int64(1)
		}
		return query.KindInteger, int64(0)
	case string:
		return query.KindText, typed
	case []byte:
		if strings.Contains(declaredType, "BLOB") {
			return query.KindBlob, typed
		}
		return query.KindText, string(typed)
	case time.Time:
		return query.KindText, typed.Format(time.RFC3339)
	default:
		return query.KindText, fmt.Sprint(typed)
	}
}

// leadingKeyword returns the first word of sqlText in lower case, skipping
// whitespace, comments and opening parentheses.
func leadingKeyword(sqlText string) string {
	rest := sqlText
	for {
		rest = strings.TrimLeftFunc(rest, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(rest, "--"):
			newline := strings.IndexByte(rest, '\n')
			if newline < 0 {
				return ""
			}
			rest = rest[newline+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest, "*/")
			if end < 0 {
				return ""
			}
			rest = rest[end+2:]
		default:
			end := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) })
			if end < 0 {
				end = len(rest)
			}
			return strings.ToLower(rest[:end])
		}
	}
}
