package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/storage"
)

const defaultMaxBytes = 10 << 20

type Options struct {
	MaxBytes int64
	Importer Importer
	// Archive is optional. When set every upload is also kept as a raw
	// object so it can be restored later.
	Archive storage.Archive
	// TempDir holds spooled uploads. Empty uses the OS default.
	TempDir string
	Logger  *slog.Logger
	Now     func() time.Time
}

type Service struct {
	maxBytes int64
	importer Importer
	archive  storage.Archive
	tempDir  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		maxBytes: maxBytes,
		importer: opts.Importer,
		archive:  opts.Archive,
		tempDir:  opts.TempDir,
		logger:   logger,
		now:      now,
	}, nil
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Service) ArchiveEnabled() bool {
	return s.archive != nil
}

// Upload loads body into the store at storePath. CSV and parquet files
// become the upload table; SQLite files replace the store. owner scopes the
// archive key and may be empty.
func (s *Service) Upload(ctx context.Context, storePath, owner, filename string, body io.Reader) (upload Upload, err error) {
	kind, err := DetectKind(filename)
	if err != nil {
		observability.ObserveUpload("unknown", err)
		return Upload{}, err
	}
	defer func() { observability.ObserveUpload(string(kind), err) }()

	spooled, size, err := s.spool(body)
	if err != nil {
		return Upload{}, err
	}
	defer func() { _ = os.Remove(spooled) }()

	archiveKey := s.archiveUpload(ctx, owner, filename, kind, spooled, size)

	upload, err = s.load(ctx, storePath, kind, spooled)
	if err != nil {
		if archiveKey != "" {
			if deleteErr := s.archive.Delete(ctx, archiveKey); deleteErr != nil {
				s.logger.WarnContext(ctx, "remove archived upload after failed load",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("key", archiveKey),
					slog.String("error", deleteErr.Error()),
				)
			}
		}
		return Upload{}, err
	}
	upload.Filename = filepath.Base(filename)
	upload.ArchiveKey = archiveKey

	s.logger.InfoContext(ctx, "dataset uploaded",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("kind", string(kind)),
		slog.Int64("bytes", size),
		slog.Int64("rows", upload.Rows),
		slog.Bool("archived", archiveKey != ""),
	)
	return upload, nil
}

// Restore reloads an archived upload into the store at storePath.
func (s *Service) Restore(ctx context.Context, storePath, key string) (upload Upload, err error) {
	if s.archive == nil {
		return Upload{}, ErrArchiveDisabled
	}
	filename, err := storage.UploadFilename(key)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %w", storage.ErrObjectNotFound, err)
	}
	kind, err := DetectKind(filename)
	if err != nil {
		return Upload{}, err
	}
	defer func() { observability.ObserveUpload(string(kind), err) }()

	info, err := s.archive.Stat(ctx, key)
	if err != nil {
		return Upload{}, err
	}
	if info.Size > s.maxBytes {
		return Upload{}, fmt.Errorf("%w: archived object is %d bytes", ErrTooLarge, info.Size)
	}

	reader, err := s.archive.Get(ctx, key)
	if err != nil {
		return Upload{}, err
	}
	defer func() { _ = reader.Close() }()

	spooled, _, err := s.spool(reader)
	if err != nil {
		return Upload{}, err
	}
	defer func() { _ = os.Remove(spooled) }()

	upload, err = s.load(ctx, storePath, kind, spooled)
	if err != nil {
		return Upload{}, err
	}
	upload.Filename = filename
	upload.ArchiveKey = key
	return upload, nil
}

func (s *Service) load(ctx context.Context, storePath string, kind Kind, spooled string) (Upload, error) {
	if kind.Tabular() {
		imported, err := s.importer.Import(ctx, storePath, spooled, kind)
		if err != nil {
			return Upload{}, err
		}
		return Upload{Kind: kind, Table: imported.Table, Rows: imported.Rows, Columns: imported.Columns}, nil
	}
	if err := replaceStore(storePath, spooled); err != nil {
		return Upload{}, err
	}
	return Upload{Kind: kind}, nil
}

// archiveUpload is best-effort: a failure is logged and yields no key.
func (s *Service) archiveUpload(ctx context.Context, owner, filename string, kind Kind, spooled string, size int64) string {
	if s.archive == nil {
		return ""
	}
	logFailure := func(err error) {
		s.logger.WarnContext(ctx, "archive upload failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
	}

	key, err := storage.NewUploadKey(owner, s.now(), filename)
	if err != nil {
		logFailure(err)
		return ""
	}
	file, err := os.Open(spooled)
	if err != nil {
		logFailure(err)
		return ""
	}
	defer func() { _ = file.Close() }()

	if _, err := s.archive.Put(ctx, key, file, size, kind.contentType()); err != nil {
		logFailure(err)
		return ""
	}
	return key
}

func (s *Service) spool(body io.Reader) (string, int64, error) {
	file, err := os.CreateTemp(s.tempDir, "textsql-upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create upload spool file: %w", err)
	}
	name := file.Name()

	written, copyErr := io.Copy(file, io.LimitReader(body, s.maxBytes+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(name)
		return "", 0, fmt.Errorf("spool upload: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(name)
		return "", 0, fmt.Errorf("close upload spool file: %w", closeErr)
	case written > s.maxBytes:
		_ = os.Remove(name)
		return "", 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	return name, written, nil
}

// IsClientError reports whether err was caused by the uploaded content
// rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrInvalidStore) ||
		errors.Is(err, ErrInvalidUpload)
}
