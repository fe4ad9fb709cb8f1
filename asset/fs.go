package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const ThumbnailFileName = "thumbnail.png"

var ErrMaxSizeExceeded = errors.New("max size exceeded")

var (
	resourceFormats = []string{".glb", ".gltf", ".png", ".jpg", ".bin"}
	sceneFormats    = []string{".glb"}
)

func hasFormat(path string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range formats {
		if ext == format {
			return true
		}
	}
	return false
}

// IsResource reports whether path has one of the bundled resource extensions.
func IsResource(path string) bool {
	return hasFormat(path, resourceFormats)
}

// IsScene reports whether path is a renderable scene container.
func IsScene(path string) bool {
	return hasFormat(path, sceneFormats)
}

type resourceFile struct {
	path string
	info fs.FileInfo
}

func newResourceFile(path string, info fs.FileInfo, maxBytes int64) (resourceFile, error) {
	if !info.Mode().IsRegular() {
		return resourceFile{}, errors.New("not a regular file")
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return resourceFile{}, fmt.Errorf("%w: current size %d, maximum %d", ErrMaxSizeExceeded, info.Size(), maxBytes)
	}
	return resourceFile{path: path, info: info}, nil
}

func (f resourceFile) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", f.path)
	e.Str("name", f.info.Name())
	e.Int64("size", f.info.Size())
}
