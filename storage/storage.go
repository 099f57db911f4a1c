/*
Package storage keeps uploaded supporting documents (medical certificates).

PURPOSE:
  An absence request may carry one file. The request writer uploads it under a
  user/request scoped key before the absence record is written and stores the
  download reference on the record. Upload failure aborts the request.

KEYS:
  absences/{companyId}/{userId}/{absenceId}/{filename}

  Keys are slash separated and relative. Backends reject keys that would
  escape their root ("..", leading slash).

BACKENDS:
  - Memory:     in-process map, tests and dev
  - FileSystem: rooted directory tree
  - S3:         aws-sdk-go-v2 client + multipart upload manager
  - Encrypted:  wraps any backend, age-encrypts content at rest

SEE ALSO:
  - absence/request.go: the only writer
  - api/handlers.go: GET /api/certificates/* streams content back
*/
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/warp/hr-engine/generic"
)

// FileStore stores opaque blobs by key.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get returns generic.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CertificateKey builds the storage key for a file attached to an absence.
func CertificateKey(companyID, userID, absenceID, filename string) string {
	name := path.Base("/" + strings.ReplaceAll(filename, "\\", "/"))
	if name == "/" || name == "." {
		name = "certificate"
	}
	return path.Join("absences", companyID, userID, absenceID, name)
}

// CleanKey validates key and returns its canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", generic.NewValidationError("key", "invalid storage key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", generic.NewValidationError("key", "invalid storage key %q", key)
	}
	return cleaned, nil
}

func notFound(key string) error {
	return fmt.Errorf("file %s: %w", key, generic.ErrNotFound)
}
