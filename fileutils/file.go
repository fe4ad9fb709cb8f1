package fileutils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PublishedFileMode is the mode of every file staged for publishing.
const PublishedFileMode os.FileMode = 0o644

// StageFile writes data into a temporary file next to path.
// The returned path must be renamed into place or removed by the caller.
func StageFile(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}

	_, err = tmp.Write(data)
	// CreateTemp uses 0600, published files must be readable by other users
	if err == nil {
		err = tmp.Chmod(PublishedFileMode)
	}
	err = errors.Join(err, tmp.Close())
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}

// WriteFileAtomic replaces path with data, readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	staged, err := StageFile(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return err
	}
	return nil
}

// CopyFile copies the regular file src to dst, replacing dst atomically.
func CopyFile(src string, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, in.Close())
	}()

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", src, err)
	}

	return WriteFileAtomic(dst, data)
}
