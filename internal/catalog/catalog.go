package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrConflict = errors.New("catalog: already exists")
)

// Repository is the persisted metadata: accounts, database registrations
// and the query journal. Query records are write-once.
type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)

	CreateDatabase(ctx context.Context, in CreateDatabaseInput) (Database, error)
	GetDatabase(ctx context.Context, userID, databaseID int64) (Database, error)
	ListDatabases(ctx context.Context, userID int64) ([]Database, error)

	InsertQueryRecord(ctx context.Context, in InsertQueryRecordInput) (QueryRecord, error)
	ListQueryRecords(ctx context.Context, userID int64, limit int) ([]QueryRecord, error)
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
}

// Database is a registered SQLite store owned by one user.
type Database struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateDatabaseInput struct {
	UserID int64
	Name   string
	Path   string
}

// QueryRecord is one journaled attempt. SQLQuery is nil when no SQL was
// generated; ExecutionTime is nil when nothing was executed.
type QueryRecord struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Question      string    `json:"question"`
	SQLQuery      *string   `json:"sql_query"`
	ExecutionTime *float64  `json:"execution_time"`
	ErrorMessage  *string   `json:"error_message"`
	CreatedAt     time.Time `json:"created_at"`
}

type InsertQueryRecordInput struct {
	UserID        int64
	Question      string
	SQLQuery      *string
	ExecutionTime *float64
	ErrorMessage  *string
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// NormalizeHistoryLimit applies the default to non-positive limits and caps
// the rest.
func NormalizeHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
