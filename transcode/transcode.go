// Package transcode externalizes textures embedded in scene containers.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
)

var ErrTranscode = errors.New("transcode failed")

// Resource is a file produced next to the transcoded scene.
type Resource struct {
	Name string // base name, sibling of the scene
	Data []byte
}

type Result struct {
	Scene     []byte
	Resources []Resource
}

type Transcoder interface {
	// Transcode rewrites scene so that embedded textures are referenced
	// as sibling files. baseName is the file name of the scene.
	Transcode(scene []byte, baseName string) (*Result, error)
}

// GLTF moves images stored in GLB buffer views into separate files.
// Buffer data is left untouched, only the image references change.
type GLTF struct{}

func (GLTF) Transcode(scene []byte, baseName string) (*Result, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(scene)).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTranscode, baseName, err)
	}

	stem := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	var resources []Resource
	for i, img := range doc.Images {
		if img == nil || img.BufferView == nil {
			continue
		}
		data, err := bufferViewData(doc, int(*img.BufferView))
		if err != nil {
			return nil, fmt.Errorf("%w: %s image %d: %v", ErrTranscode, baseName, i, err)
		}

		name := fmt.Sprintf("%s_texture_%d%s", stem, i, extension(img.MimeType))
		resources = append(resources, Resource{Name: name, Data: data})
		img.URI = name
		img.BufferView = nil
		img.MimeType = ""
	}

	if len(resources) == 0 {
		return &Result{Scene: scene}, nil
	}

	var out bytes.Buffer
	enc := gltf.NewEncoder(&out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrTranscode, baseName, err)
	}

	return &Result{Scene: out.Bytes(), Resources: resources}, nil
}

func bufferViewData(doc *gltf.Document, index int) ([]byte, error) {
	if index < 0 || index >= len(doc.BufferViews) || doc.BufferViews[index] == nil {
		return nil, fmt.Errorf("buffer view %d out of range", index)
	}
	view := doc.BufferViews[index]

	buffer := int(view.Buffer)
	if buffer < 0 || buffer >= len(doc.Buffers) || doc.Buffers[buffer] == nil {
		return nil, fmt.Errorf("buffer %d out of range", buffer)
	}
	data := doc.Buffers[buffer].Data

	start := int(view.ByteOffset)
	end := start + int(view.ByteLength)
	if start < 0 || end > len(data) || start > end {
		return nil, fmt.Errorf("buffer view %d [%d:%d] exceeds buffer of %d bytes", index, start, end, len(data))
	}
	return bytes.Clone(data[start:end]), nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}
