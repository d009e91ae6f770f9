package migrations

import (
	"strings"
	"testing"
)

func TestInitMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_init.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE users",
		"email TEXT NOT NULL UNIQUE",
		"username TEXT NOT NULL UNIQUE",
		"CREATE TABLE user_databases",
		"CREATE TABLE query_history",
		"sql_query TEXT,",
		"execution_time DOUBLE PRECISION,",
		"error_message TEXT,",
		"CREATE INDEX idx_query_history_user_created_desc",
		"CREATE INDEX idx_user_databases_user_active",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestInitDownMigrationDropsEveryTable(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_init.down.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, table := range []string{"users", "user_databases", "query_history"} {
		if !strings.Contains(string(body), "DROP TABLE IF EXISTS "+table+";") {
			t.Fatalf("down migration does not drop %s", table)
		}
	}
}
