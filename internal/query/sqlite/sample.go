package sqlite

import (
	"context"
	"fmt"
)

// SampleTable is seeded into an empty default store.
const SampleTable = "employees"

type sampleEmployee struct {
	ID         int64
	Name       string
	Department string
	Salary     int64
}

var sampleEmployees = []sampleEmployee{
	{ID: 1, Name: "Alice", Department: "HR", Salary: 50000},
	{ID: 2, Name: "Bob", Department: "Engineering", Salary: 80000},
	{ID: 3, Name: "Charlie", Department: "Sales", Salary: 60000},
	{ID: 4, Name: "David", Department: "Engineering", Salary: 90000},
}

// EnsureSample creates the employees table when it is missing and fills it
// when it is empty. Existing rows are left alone. It reports whether rows
// were inserted.
func EnsureSample(ctx context.Context, path string) (bool, error) {
	db, err := open(ctx, path, modeCreate)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin sample seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY,
		name TEXT,
		department TEXT,
		salary INTEGER
	)`); err != nil {
		return false, fmt.Errorf("create sample table: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees`).Scan(&count); err != nil {
		return false, fmt.Errorf("count sample rows: %w", err)
	}
	if count > 0 {
		return false, tx.Commit()
	}

	for _, employee := range sampleEmployees {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO employees (id, name, department, salary) VALUES (?, ?, ?, ?)`,
			employee.ID, employee.Name, employee.Department, employee.Salary,
		); err != nil {
			return false, fmt.Errorf("insert sample row %d: %w", employee.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit sample seed: %w", err)
	}
	return true, nil
}
