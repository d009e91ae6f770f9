package migrations

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/000002_history.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_history.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_init.up.sql":      {Data: []byte("SELECT 1;")},
		"sql/000001_init.down.sql":    {Data: []byte("SELECT -1;")},
		"sql/README.md":               {Data: []byte("ignored")},
	}
}

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	items, err := loadMigrations(testFS())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[0].Name != "init" || items[1].DownSQL != "SELECT -2;" {
		t.Fatalf("unexpected migration content: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil || !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsRejectsConflictingNames(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_two.down.sql": {Data: []byte("SELECT -1;")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for conflicting names")
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations(embedded) error = %v", err)
	}
	if len(items) == 0 || items[0].Version != 1 {
		t.Fatalf("embedded migrations = %+v", items)
	}
}

func TestUpAppliesOnlyPendingMigrations(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: testFS()}

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS textsql_schema_migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version, applied_at FROM textsql_schema_migrations ORDER BY version ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT 2;`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO textsql_schema_migrations (version) VALUES ($1)`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	assertSQLMock(t, mock)
}

func TestDownRollsBackNewestFirst(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: testFS()}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS textsql_schema_migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version, applied_at FROM textsql_schema_migrations`)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), now).AddRow(int64(2), now))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT -2;`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM textsql_schema_migrations WHERE version = $1`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rolledBack, err := runner.Down(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("rolledBack = %d, want 1", rolledBack)
	}
	assertSQLMock(t, mock)
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: testFS()}

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS textsql_schema_migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version, applied_at FROM textsql_schema_migrations`)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT 1;`)).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	applied, err := runner.Up(context.Background(), db, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}
	assertSQLMock(t, mock)
}

func TestStatusReportsAppliedAndPending(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: testFS()}
	appliedAt := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS textsql_schema_migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version, applied_at FROM textsql_schema_migrations`)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), appliedAt))

	statuses, err := runner.Status(context.Background(), db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %+v", statuses)
	}
	if !statuses[0].Applied() || !statuses[0].AppliedAt.Equal(appliedAt) || statuses[0].Name != "init" {
		t.Fatalf("first status = %+v", statuses[0])
	}
	if statuses[1].Applied() || statuses[1].Name != "history" {
		t.Fatalf("second status = %+v", statuses[1])
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
