package fileutils

import (
	"errors"
	"fmt"
	"os"
)

// VerifyWritable returns nil if dirPath is a directory and is writable.
func VerifyWritable(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirPath)
	}

	probe, err := os.CreateTemp(dirPath, ".probe-*")
	if err != nil {
		return err
	}
	return errors.Join(probe.Close(), os.Remove(probe.Name()))
}
