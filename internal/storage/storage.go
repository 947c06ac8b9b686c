// Package storage keeps uploaded documents on local disk under names derived
// from the owning record, so a re-upload overwrites the previous file.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Buckets group files by purpose.
const (
	BucketTestFiles      = "test-files"
	BucketConditionMedia = "condition-media"
)

var (
	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that would escape the bucket.
	ErrInvalidName = errors.New("invalid file name")
)

// FileStore persists and resolves uploaded files.
type FileStore interface {
	Save(ctx context.Context, bucket, name string, r io.Reader) error
	Path(bucket, name string) (string, error)
	Remove(bucket, name string) error
}

// FileName builds the stored name of an upload owned by id.
func FileName(id, ext string) string {
	return id + "." + strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// LocalStore writes files below a root directory.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the bucket directories under root.
func NewLocalStore(root string) (*LocalStore, error) {
	for _, bucket := range []string{BucketTestFiles, BucketConditionMedia} {
		if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) resolve(bucket, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	if bucket != BucketTestFiles && bucket != BucketConditionMedia {
		return "", fmt.Errorf("unknown bucket %q", bucket)
	}
	return filepath.Join(s.Root, bucket, name), nil
}

// Save writes r to bucket/name. The content goes to a temporary file first and
// is renamed into place, so a failed write leaves the previous file intact.
func (s *LocalStore) Save(ctx context.Context, bucket, name string, r io.Reader) error {
	dst, err := s.resolve(bucket, name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("move %s into place: %w", name, err)
	}
	return nil
}

// Path returns the on-disk location of an existing file.
func (s *LocalStore) Path(bucket, name string) (string, error) {
	p, err := s.resolve(bucket, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *LocalStore) Remove(bucket, name string) error {
	p, err := s.resolve(bucket, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
