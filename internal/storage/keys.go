package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const uploadsRoot = "uploads"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BuildUploadKey lays out archived uploads as
// uploads/<owner>/<yyyy-mm-dd>/<id>-<filename>.
func BuildUploadKey(owner string, at time.Time, id uuid.UUID, filename string) (string, error) {
	ownerComponent := sanitizeComponent(owner)
	if ownerComponent == "" {
		ownerComponent = "anonymous"
	}
	name := sanitizeComponent(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." {
		return "", fmt.Errorf("invalid upload filename: %q", filename)
	}
	if id == uuid.Nil {
		return "", fmt.Errorf("upload id is required")
	}

	ts := at.UTC()
	return path.Join(
		uploadsRoot,
		ownerComponent,
		fmt.Sprintf("%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		id.String()+"-"+name,
	), nil
}

// NewUploadKey is BuildUploadKey with a fresh random id.
func NewUploadKey(owner string, at time.Time, filename string) (string, error) {
	return BuildUploadKey(owner, at, uuid.New(), filename)
}

// UploadFilename recovers the original (sanitized) filename from a key made
// by BuildUploadKey.
func UploadFilename(key string) (string, error) {
	base := path.Base(key)
	// A UUID string is 36 characters followed by the "-" separator.
	if !strings.HasPrefix(key, uploadsRoot+"/") || len(base) <= 37 || base[36] != '-' {
		return "", fmt.Errorf("invalid upload key: %q", key)
	}
	if _, err := uuid.Parse(base[:36]); err != nil {
		return "", fmt.Errorf("invalid upload key: %q", key)
	}
	return base[37:], nil
}

func sanitizeComponent(value string) string {
	value = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(value), "_")
	value = strings.Trim(value, "._")
	if len(value) > 128 {
		value = value[:128]
	}
	return value
}
