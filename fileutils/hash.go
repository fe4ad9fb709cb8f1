package fileutils

import (
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// Fingerprint returns a fast non-cryptographic digest of everything read from r.
// It is used to detect changed files, never as a content identifier.
// The reader is not closed.
func Fingerprint(r io.Reader) (uint64, error) {
	digest := xxhash.New()
	if _, err := io.Copy(digest, r); err != nil {
		return 0, err
	}
	return digest.Sum64(), nil
}

// FingerprintFile returns the fingerprint of the file at path.
func FingerprintFile(path string) (fp uint64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return Fingerprint(file)
}
