package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/textsql/textsql/internal/catalog"
)

const uniqueViolation = "23505"

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
	q  dbTX
}

var _ catalog.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, in catalog.CreateUserInput) (catalog.User, error) {
	query := `
INSERT INTO users (email, username, hashed_password)
VALUES ($1, $2, $3)
RETURNING id, is_active, created_at`

	user := catalog.User{Email: in.Email, Username: in.Username, PasswordHash: in.PasswordHash}
	if err := r.q.QueryRowContext(ctx, query, in.Email, in.Username, in.PasswordHash).Scan(
		&user.ID,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return catalog.User{}, fmt.Errorf("create user %q: %w", in.Username, catalog.ErrConflict)
		}
		return catalog.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (catalog.User, error) {
	return r.getUser(ctx, "id", id)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (catalog.User, error) {
	return r.getUser(ctx, "username", username)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (catalog.User, error) {
	return r.getUser(ctx, "email", email)
}

// getUser looks a user up by one of the unique columns; column is never
// caller-supplied.
func (r *Repository) getUser(ctx context.Context, column string, value any) (catalog.User, error) {
	query := `
SELECT id, email, username, hashed_password, is_active, created_at
FROM users
WHERE ` + column + ` = $1`

	var user catalog.User
	if err := r.q.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.User{}, catalog.ErrNotFound
		}
		return catalog.User{}, fmt.Errorf("get user by %s: %w", column, err)
	}
	return user, nil
}

func (r *Repository) UserExists(ctx context.Context, email, username string) (bool, error) {
	query := `
SELECT EXISTS (
	SELECT 1 FROM users WHERE email = $1 OR username = $2
)`
	var exists bool
	if err := r.q.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *Repository) CreateDatabase(ctx context.Context, in catalog.CreateDatabaseInput) (catalog.Database, error) {
	query := `
INSERT INTO user_databases (user_id, name, path)
VALUES ($1, $2, $3)
RETURNING id, is_active, created_at`

	database := catalog.Database{UserID: in.UserID, Name: in.Name, Path: in.Path}
	if err := r.q.QueryRowContext(ctx, query, in.UserID, in.Name, in.Path).Scan(
		&database.ID,
		&database.IsActive,
		&database.CreatedAt,
	); err != nil {
		return catalog.Database{}, fmt.Errorf("create database registration: %w", err)
	}
	return database, nil
}

// GetDatabase returns the registration only when it belongs to userID and
// is active; anything else is ErrNotFound.
func (r *Repository) GetDatabase(ctx context.Context, userID, databaseID int64) (catalog.Database, error) {
	query := `
SELECT id, user_id, name, path, is_active, created_at
FROM user_databases
WHERE id = $1 AND user_id = $2 AND is_active`

	var database catalog.Database
	if err := r.q.QueryRowContext(ctx, query, databaseID, userID).Scan(
		&database.ID,
		&database.UserID,
		&database.Name,
		&database.Path,
		&database.IsActive,
		&database.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Database{}, catalog.ErrNotFound
		}
		return catalog.Database{}, fmt.Errorf("get database registration: %w", err)
	}
	return database, nil
}

func (r *Repository) ListDatabases(ctx context.Context, userID int64) ([]catalog.Database, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, user_id, name, path, is_active, created_at
FROM user_databases
WHERE user_id = $1 AND is_active
ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list database registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	databases := make([]catalog.Database, 0)
	for rows.Next() {
		var database catalog.Database
		if err := rows.Scan(
			&database.ID,
			&database.UserID,
			&database.Name,
			&database.Path,
			&database.IsActive,
			&database.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan database registration row: %w", err)
		}
		databases = append(databases, database)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate database registration rows: %w", err)
	}
	return databases, nil
}

func (r *Repository) InsertQueryRecord(ctx context.Context, in catalog.InsertQueryRecordInput) (catalog.QueryRecord, error) {
	query := `
INSERT INTO query_history (user_id, question, sql_query, execution_time, error_message)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`

	record := catalog.QueryRecord{
		UserID:        in.UserID,
		Question:      in.Question,
		SQLQuery:      in.SQLQuery,
		ExecutionTime: in.ExecutionTime,
		ErrorMessage:  in.ErrorMessage,
	}
	if err := r.q.QueryRowContext(ctx, query,
		in.UserID,
		in.Question,
		nullableString(in.SQLQuery),
		nullableFloat(in.ExecutionTime),
		nullableString(in.ErrorMessage),
	).Scan(&record.ID, &record.CreatedAt); err != nil {
		return catalog.QueryRecord{}, fmt.Errorf("insert query record: %w", err)
	}
	return record, nil
}

// ListQueryRecords returns the newest records first. Ties on created_at
// fall back to insertion order.
func (r *Repository) ListQueryRecords(ctx context.Context, userID int64, limit int) ([]catalog.QueryRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, user_id, question, sql_query, execution_time, error_message, created_at
FROM query_history
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, catalog.NormalizeHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]catalog.QueryRecord, 0)
	for rows.Next() {
		var (
			record        catalog.QueryRecord
			sqlQuery      sql.NullString
			executionTime sql.NullFloat64
			errorMessage  sql.NullString
		)
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Question,
			&sqlQuery,
			&executionTime,
			&errorMessage,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query record row: %w", err)
		}
		if sqlQuery.Valid {
			record.SQLQuery = &sqlQuery.String
		}
		if executionTime.Valid {
			record.ExecutionTime = &executionTime.Float64
		}
		if errorMessage.Valid {
			record.ErrorMessage = &errorMessage.String
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query record rows: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
