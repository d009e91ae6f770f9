package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/storage"
)

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn("ada")

	rr := env.upload(token, "file", "sales.csv", "region,amount\nnorth,10\nsouth,20\n")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["filename"] != "sales.csv" || body["kind"] != "csv" || body["table"] != "uploaded_table" {
		t.Fatalf("body = %#v", body)
	}
	if _, ok := body["archive_key"]; ok {
		t.Fatal("archive key should be absent without an archive")
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn("ada")

	rr := env.upload(token, "file", "notes.txt", "hello")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "UNSUPPORTED_FORMAT" {
		t.Fatalf("body = %#v", body)
	}

	rr = env.upload(token, "attachment", "sales.csv", "a,b\n1,2\n")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing file field status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "FILE_REQUIRED" {
		t.Fatalf("body = %#v", body)
	}

	rr = env.upload(token, "file", "big.csv", "a\n"+strings.Repeat("1\n", 1024))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status = %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/api/datasets/upload", token, map[string]any{"file": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("json body status = %d", rr.Code)
	}
}

func TestUploadSQLiteReplacesStoreAfterValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn("ada")

	rr := env.upload(token, "file", "fake.db", strings.Repeat("x", 200))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}

	env.model.sql["count"] = "SELECT COUNT(*) AS total FROM employees"
	rr = env.do(http.MethodPost, "/api/query/execute", token, map[string]any{"question": "count"})
	if rr.Code != http.StatusOK {
		t.Fatalf("store should survive a rejected upload, status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != nil {
		t.Fatalf("body = %#v", body)
	}
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn("ada")

	rr := env.do(http.MethodPost, "/api/datasets/restore", token, map[string]any{"key": "uploads/x.csv"})
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("disabled archive status = %d", rr.Code)
	}

	archive := newMemoryArchive()
	datasets, err := dataset.NewService(dataset.Options{Importer: stubImporter{}, Archive: archive, TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("dataset.NewService() error = %v", err)
	}
	env.deps.Datasets = datasets
	env.handler = NewHandler(env.cfg, env.deps)

	rr = env.upload(token, "file", "sales.csv", "region,amount\nnorth,10\n")
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d body = %s", rr.Code, rr.Body.String())
	}
	key, _ := decodeBody(t, rr)["archive_key"].(string)
	if key == "" || !strings.Contains(key, "ada") {
		t.Fatalf("archive key = %q", key)
	}

	rr = env.do(http.MethodPost, "/api/datasets/restore", token, map[string]any{"key": key})
	if rr.Code != http.StatusOK {
		t.Fatalf("restore status = %d body = %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["filename"] != "sales.csv" {
		t.Fatalf("restore body = %#v", body)
	}

	rr = env.do(http.MethodPost, "/api/datasets/restore", token, map[string]any{"key": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank key status = %d", rr.Code)
	}
	missingKey := strings.Replace(key, "sales.csv", "other.csv", 1)
	rr = env.do(http.MethodPost, "/api/datasets/restore", token, map[string]any{"key": missingKey})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing key status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func (e *testEnv) upload(token, field, filename, content string) *httptest.ResponseRecorder {
	e.t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		e.t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		e.t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		e.t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

type memoryArchive struct {
	objects map[string][]byte
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string][]byte{}}
}

func (m *memoryArchive) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (storage.ObjectInfo, error) {
	content, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = content
	return storage.ObjectInfo{Key: key, Size: int64(len(content))}, nil
}

func (m *memoryArchive) Get(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *memoryArchive) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	content, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(content))}, nil
}

func (m *memoryArchive) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}
