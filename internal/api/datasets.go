package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/storage"
)

// multipartOverhead is the allowance for multipart framing on top of the
// upload size limit.
const multipartOverhead = 1 << 20

type restoreRequest struct {
	Key string `json:"key"`
}

// handleUpload streams the "file" part of a multipart body into the
// default store.
func handleUpload(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Datasets != nil, "dataset upload") {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, deps.Datasets.MaxBytes()+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "MULTIPART_REQUIRED", "expected a multipart/form-data body", false, map[string]any{"details": err.Error()})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
			return
		}
		if err != nil {
			writeUploadError(deps, w, r, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		filename := filepath.Base(part.FileName())
		if strings.TrimSpace(part.FileName()) == "" {
			_ = part.Close()
			writeError(r.Context(), w, http.StatusBadRequest, "FILENAME_REQUIRED", "uploaded file must have a name", false, nil)
			return
		}
		upload, err := deps.Datasets.Upload(r.Context(), cfg.Store.DefaultPath, identity.Username, filename, part)
		_ = part.Close()
		if err != nil {
			writeUploadError(deps, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, upload)
		return
	}
}

func handleRestore(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if deps.Datasets == nil || !deps.Datasets.ArchiveEnabled() {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_DISABLED", dataset.ErrArchiveDisabled.Error(), false, nil)
		return
	}

	var req restoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "key is required", false, nil)
		return
	}

	upload, err := deps.Datasets.Restore(r.Context(), cfg.Store.DefaultPath, req.Key)
	if err != nil {
		writeUploadError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func writeUploadError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, dataset.ErrTooLarge), errors.As(err, &maxBytesErr):
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds the size limit", false, map[string]any{"details": err.Error()})
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrArchiveDisabled):
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_DISABLED", err.Error(), false, nil)
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "UPLOAD_NOT_FOUND", "archived upload not found", false, nil)
	case dataset.IsClientError(err):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), false, nil)
	default:
		writeInternal(deps, w, r, "UPLOAD_FAILED", "failed to load upload", err)
	}
}
