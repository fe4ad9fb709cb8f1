// Package storage defines the object storage gateway the bundler uploads
// content through.
package storage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Gateway stores public-read objects keyed by CID.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// Exists reports whether key is present in bucket. A missing object
	// is not an error.
	Exists(ctx context.Context, bucket string, key string) (bool, error)
	Put(ctx context.Context, bucket string, key string, contentType string, data []byte) error
}

var contentTypes = map[string]string{
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bin":  "application/octet-stream",
	".json": "application/json",
}

// ContentType returns the MIME type stored with the object for path.
func ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// DryRun returns a gateway that checks existence through gw but only
// logs puts.
func DryRun(gw Gateway, logger zerolog.Logger) Gateway {
	return &dryRun{parent: gw, logger: logger}
}

type dryRun struct {
	parent Gateway
	logger zerolog.Logger
}

func (d *dryRun) Exists(ctx context.Context, bucket string, key string) (bool, error) {
	return d.parent.Exists(ctx, bucket, key)
}

func (d *dryRun) Put(_ context.Context, bucket string, key string, contentType string, data []byte) error {
	d.logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Str("content_type", contentType).
		Int("size", len(data)).
		Msg("would upload object")
	return nil
}
