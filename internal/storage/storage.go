// Package storage keeps raw import uploads and finished export files, on
// local disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listvault/internal/config"
	"github.com/ignite/listvault/internal/domain"
)

// ErrNotFound is returned by Open for keys that do not exist.
var ErrNotFound = errors.New("storage: object not found")

// Disk names recorded on FileRecord.
const (
	DiskLocal = "local"
	DiskS3    = "s3"
)

// FileStore stores opaque files under slash-separated keys.
type FileStore interface {
	// Put writes r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) (domain.FileRecord, error)
	// Open returns the object's content. Callers must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Type {
	case DiskS3:
		return NewS3Store(ctx, cfg)
	case DiskLocal, "":
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// UploadKey returns a unique key for a raw import upload, keeping the
// original extension so the source type stays recognisable.
func UploadKey(filename string, now time.Time) string {
	return datedKey("imports", filename, now)
}

// ExportKey returns the key for an export job's output file.
func ExportKey(publicID, format string, now time.Time) string {
	return path.Join("exports", now.UTC().Format("2006/01/02"), publicID+"."+format)
}

func datedKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	return path.Join(prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}
