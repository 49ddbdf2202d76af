package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/ignite/listvault/internal/domain"
)

// LocalStore keeps files under a directory on local disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local storage path is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) pathFor(key string) (string, string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes to a temp file first and renames it into place, so readers
// never see a partial file.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (domain.FileRecord, error) {
	k, full, err := s.pathFor(key)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return domain.FileRecord{}, fmt.Errorf("creating directory for %s: %w", k, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("writing %s: %w", k, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return domain.FileRecord{}, fmt.Errorf("moving %s into place: %w", k, err)
	}

	return domain.FileRecord{Disk: DiskLocal, Path: k, Filename: path.Base(k), Size: n}, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	k, full, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", k, err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	_, full, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
