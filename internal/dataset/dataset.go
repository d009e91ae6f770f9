package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/textsql/textsql/internal/query"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format: upload a .csv, .parquet, .db or .sqlite file")
	ErrTooLarge          = errors.New("upload exceeds the size limit")
	ErrInvalidStore      = errors.New("file is not a SQLite database")
	ErrInvalidUpload     = errors.New("could not read uploaded data")
	ErrArchiveDisabled   = errors.New("upload archive is not configured")
)

type Kind string

const (
	KindCSV     Kind = "csv"
	KindParquet Kind = "parquet"
	KindSQLite  Kind = "sqlite"
)

// Tabular reports whether the kind is loaded into a table rather than
// replacing the whole store.
func (k Kind) Tabular() bool {
	return k == KindCSV || k == KindParquet
}

func (k Kind) contentType() string {
	switch k {
	case KindCSV:
		return "text/csv"
	case KindSQLite:
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}

// DetectKind picks the loader from the file extension, ignoring case.
func DetectKind(filename string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".csv":
		return KindCSV, nil
	case ".parquet":
		return KindParquet, nil
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// ImportResult describes the table a tabular upload was loaded into.
type ImportResult struct {
	Table   string
	Rows    int64
	Columns []query.Column
}

// Importer loads a tabular file at sourcePath into the store at storePath,
// replacing any previous upload table.
type Importer interface {
	Import(ctx context.Context, storePath, sourcePath string, kind Kind) (ImportResult, error)
}

// Upload is what a finished upload reports back.
type Upload struct {
	Filename   string         `json:"filename"`
	Kind       Kind           `json:"kind"`
	Table      string         `json:"table,omitempty"`
	Rows       int64          `json:"rows"`
	Columns    []query.Column `json:"columns,omitempty"`
	ArchiveKey string         `json:"archive_key,omitempty"`
}
