package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/textsql/textsql/internal/query"
)

func TestIntrospectListsTablesAndColumns(t *testing.T) {
	path := newSampleStore(t)
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE "sales data" ("order id" INTEGER, amount REAL, note)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	_ = db.Close()

	schema, err := Introspector{}.Introspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if len(schema.Tables) != 2 {
		t.Fatalf("tables = %#v", schema.Tables)
	}
	if schema.Tables[0].Name != "employees" || len(schema.Tables[0].Columns) != 4 {
		t.Fatalf("first table = %#v", schema.Tables[0])
	}
	if schema.Tables[0].Columns[3] != (query.Column{Name: "salary", Type: "INTEGER"}) {
		t.Fatalf("salary column = %#v", schema.Tables[0].Columns[3])
	}

	second := schema.Tables[1]
	if second.Name != "sales data" || len(second.Columns) != 3 {
		t.Fatalf("second table = %#v", second)
	}
	if second.Columns[0].Name != "order id" || second.Columns[2].Type != "" {
		t.Fatalf("second table columns = %#v", second.Columns)
	}

	want := "Table: employees\n - id (INTEGER)\n - name (TEXT)\n - department (TEXT)\n - salary (INTEGER)\n\n" +
		"Table: sales data\n - order id (INTEGER)\n - amount (REAL)\n - note ()"
	if got := schema.String(); got != want {
		t.Fatalf("String() = %q", got)
	}
}

func TestIntrospectEmptyStore(t *testing.T) {
	schema, err := Introspector{}.Introspect(context.Background(), filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if len(schema.Tables) != 0 {
		t.Fatalf("tables = %#v", schema.Tables)
	}
}

func TestIntrospectWrapsSchemaUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(path, []byte("this is definitely not a sqlite database file"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := Introspector{}.Introspect(context.Background(), path)
	if !errors.Is(err, query.ErrSchemaUnavailable) {
		t.Fatalf("error = %v, want ErrSchemaUnavailable", err)
	}
}
