// Package fsstore keeps objects in a local directory, one sub directory
// per bucket. Useful for offline bundling and tests.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stupid-simple/assetpack/fileutils"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) path(bucket string, key string) (string, error) {
	if bucket == "" || key == "" || strings.ContainsAny(bucket+key, `/\`) || key == "." || key == ".." || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid object %q in bucket %q", key, bucket)
	}
	return filepath.Join(s.root, bucket, key), nil
}

func (s *Store) Exists(ctx context.Context, bucket string, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.path(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Put(ctx context.Context, bucket string, key string, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return fileutils.WriteFileAtomic(path, data)
}
