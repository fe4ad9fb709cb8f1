package asset

import (
	"context"
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/rs/zerolog"
)

// scanResources yields the resource files below dirPath in lexical
// order. The asset thumbnail at the root of dirPath is not a resource.
func scanResources(ctx context.Context, dirPath string, maxBytes int64, logger zerolog.Logger) iter.Seq[resourceFile] {
	return func(yield func(resourceFile) bool) {
		var statFiles, scannedCount int
		defer func() {
			logger.Debug().
				Int("scanned", statFiles).
				Int("resources", scannedCount).
				Msg("done scanning resources")
		}()

		thumbnail := filepath.Join(dirPath, ThumbnailFileName)
		err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("could not scan path")
				return nil
			}
			if d.IsDir() || path == thumbnail || !IsResource(path) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("could not stat path")
				return nil
			}
			statFiles++

			file, err := newResourceFile(path, info, maxBytes)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("skipping resource")
				return nil
			}

			if !yield(file) {
				return filepath.SkipAll
			}
			scannedCount++
			logger.Debug().Object("resource", file).Msg("scanned resource")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Str("path", dirPath).Msg("could not scan path")
		}
	}
}
