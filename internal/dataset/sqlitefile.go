package dataset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var sqliteHeader = []byte("SQLite format 3\x00")

func checkSQLiteHeader(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open uploaded store: %w", err)
	}
	defer func() { _ = file.Close() }()

	header := make([]byte, len(sqliteHeader))
	n, err := io.ReadFull(file, header)
	switch {
	case n == 0 && err == io.EOF:
		// An empty file is a valid, empty database.
		return nil
	case err != nil:
		return fmt.Errorf("%w: file is too short", ErrInvalidStore)
	case !bytes.Equal(header, sqliteHeader):
		return ErrInvalidStore
	}
	return nil
}

// replaceStore swaps the bytes of storePath for the spooled upload. The new
// content is staged next to the store and renamed over it so readers never
// see a partial file.
func replaceStore(storePath, spooled string) error {
	if err := checkSQLiteHeader(spooled); err != nil {
		return err
	}
	dir := filepath.Dir(storePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	staged, err := os.CreateTemp(dir, ".textsql-store-*")
	if err != nil {
		return fmt.Errorf("stage store: %w", err)
	}
	stagedName := staged.Name()
	cleanup := func() { _ = os.Remove(stagedName) }

	source, err := os.Open(spooled)
	if err != nil {
		_ = staged.Close()
		cleanup()
		return fmt.Errorf("open spooled upload: %w", err)
	}
	_, copyErr := io.Copy(staged, source)
	_ = source.Close()
	if copyErr == nil {
		copyErr = staged.Sync()
	}
	if closeErr := staged.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		cleanup()
		return fmt.Errorf("write staged store: %w", copyErr)
	}

	if err := os.Rename(stagedName, storePath); err != nil {
		cleanup()
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
