package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureSampleIsIdempotent(t *testing.T) {
	path := newSampleStore(t)

	seeded, err := EnsureSample(context.Background(), path)
	if err != nil {
		t.Fatalf("EnsureSample() error = %v", err)
	}
	if seeded {
		t.Fatal("second EnsureSample() should not insert rows")
	}

	outcome, err := NewExecutor(ExecutorOptions{}).Execute(context.Background(), path,
		"SELECT name, department, salary FROM employees ORDER BY id")
	if err != nil || outcome.Failed() {
		t.Fatalf("Execute() outcome = %+v err = %v", outcome, err)
	}
	if len(outcome.Result.Rows) != 4 {
		t.Fatalf("rows = %d", len(outcome.Result.Rows))
	}
	last := outcome.Result.Rows[3].Fields
	if last[0].Value != "David" || last[1].Value != "Engineering" || last[2].Value != int64(90000) {
		t.Fatalf("last row = %#v", last)
	}
}

func TestEnsureSampleRefillsEmptyTable(t *testing.T) {
	path := newSampleStore(t)
	outcome, err := NewExecutor(ExecutorOptions{}).Execute(context.Background(), path, "DELETE FROM employees")
	if err != nil || outcome.Failed() {
		t.Fatalf("Execute() outcome = %+v err = %v", outcome, err)
	}

	seeded, err := EnsureSample(context.Background(), path)
	if err != nil {
		t.Fatalf("EnsureSample() error = %v", err)
	}
	if !seeded {
		t.Fatal("EnsureSample() should refill an empty table")
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	if err := Probe(context.Background(), newSampleStore(t)); err != nil {
		t.Fatalf("Probe(existing) error = %v", err)
	}

	missing := filepath.Join(dir, "missing.db")
	if err := Probe(context.Background(), missing); err == nil {
		t.Fatal("Probe(missing) expected error")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("Probe should not create the store, stat err = %v", err)
	}

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("definitely not a sqlite database at all"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := Probe(context.Background(), garbage); err == nil {
		t.Fatal("Probe(garbage) expected error")
	}

	if err := Probe(context.Background(), ""); err == nil {
		t.Fatal("Probe(blank) expected error")
	}
}
