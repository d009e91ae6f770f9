package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/textsql/textsql/internal/query"
)

type Introspector struct{}

var _ query.Introspector = Introspector{}

// Introspect reads the tables of the store in catalog order and the columns
// of each table in declaration order. The result is never cached.
func (Introspector) Introspect(ctx context.Context, storePath string) (query.Schema, error) {
	db, err := open(ctx, storePath, modeCreate)
	if err != nil {
		return query.Schema{}, fmt.Errorf("%w: %w", query.ErrSchemaUnavailable, err)
	}
	defer func() { _ = db.Close() }()

	names, err := tableNames(ctx, db)
	if err != nil {
		return query.Schema{}, fmt.Errorf("%w: %w", query.ErrSchemaUnavailable, err)
	}

	schema := query.Schema{Tables: make([]query.Table, 0, len(names))}
	for _, name := range names {
		columns, err := tableColumns(ctx, db, name)
		if err != nil {
			return query.Schema{}, fmt.Errorf("%w: table %q: %w", query.ErrSchemaUnavailable, name, err)
		}
		schema.Tables = append(schema.Tables, query.Table{Name: name, Columns: columns})
	}
	return schema, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]query.Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]query.Column, 0)
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, query.Column{Name: name, Type: columnType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
