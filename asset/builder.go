package asset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/descriptor"
	"github.com/stupid-simple/assetpack/transcode"
)

var ErrHash = errors.New("could not hash resource")

// FileIdentifier computes the CID of a file on disk.
type FileIdentifier interface {
	IdentifyFile(ctx context.Context, path string) (string, error)
}

type addresserIdentifier struct {
	addresser *cid.Addresser
}

func (a addresserIdentifier) IdentifyFile(_ context.Context, path string) (string, error) {
	return a.addresser.IdentifyFile(path)
}

type BuilderOption func(b *Builder)

// WithTranscoder externalizes scene textures. Rewritten scenes and the
// extracted textures are written below stagingDir, the source tree is
// never modified.
func WithTranscoder(t transcode.Transcoder, stagingDir string) BuilderOption {
	return func(b *Builder) {
		b.transcoder = t
		b.stagingDir = stagingDir
	}
}

// WithFileIdentifier replaces direct hashing, e.g. with a cache.
func WithFileIdentifier(identifier FileIdentifier) BuilderOption {
	return func(b *Builder) {
		b.identifier = identifier
	}
}

// Resources larger than maxFileBytes are skipped.
func WithMaxFileBytes(maxFileBytes int64) BuilderOption {
	return func(b *Builder) {
		b.maxFileBytes = maxFileBytes
	}
}

type Builder struct {
	addresser    *cid.Addresser
	identifier   FileIdentifier
	transcoder   transcode.Transcoder
	stagingDir   string
	maxFileBytes int64
	logger       zerolog.Logger
}

func NewBuilder(addresser *cid.Addresser, logger zerolog.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		addresser:  addresser,
		identifier: addresserIdentifier{addresser},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads the asset folder assetDir of the pack rooted at packDir.
func (b *Builder) Build(ctx context.Context, packDir string, assetDir string) (*Asset, error) {
	logger := b.logger.With().Str("asset", filepath.Base(assetDir)).Logger()
	startTime := time.Now()

	desc, err := descriptor.LoadAsset(assetDir)
	if err != nil {
		return nil, err
	}

	a := &Asset{
		ID:         IDFromFolder(filepath.Base(assetDir)),
		Descriptor: *desc,
		SourceDir:  assetDir,
	}

	for file := range scanResources(ctx, assetDir, b.maxFileBytes, logger) {
		relativePath, err := relativeTo(packDir, file.path)
		if err != nil {
			return nil, err
		}

		if b.transcoder != nil && IsScene(file.path) {
			entries, err := b.transcodeScene(file.path, relativePath)
			if err == nil {
				for _, entry := range entries {
					a.add(entry)
				}
				continue
			}
			if errors.Is(err, ErrHash) {
				return nil, err
			}
			logger.Warn().Err(err).Str("path", file.path).Msg("could not externalize scene textures")
		}

		id, err := b.identifier.IdentifyFile(ctx, file.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrHash, file.path, err)
		}
		a.add(ContentEntry{RelativePath: relativePath, CID: id, SourcePath: file.path})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumbnail := filepath.Join(assetDir, ThumbnailFileName)
	a.ThumbnailCID, err = b.identifier.IdentifyFile(ctx, thumbnail)
	if err != nil {
		return nil, fmt.Errorf("%w: thumbnail %s: %v", ErrHash, thumbnail, err)
	}

	for _, entry := range a.Contents {
		if IsScene(entry.RelativePath) {
			a.EntryPointPath = entry.RelativePath
			break
		}
	}

	logger.Debug().
		Object("asset", a).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("built asset")

	return a, nil
}

// transcodeScene returns the entries for the rewritten scene followed by
// its extracted textures.
func (b *Builder) transcodeScene(path string, relativePath string) ([]ContentEntry, error) {
	scene, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHash, path, err)
	}

	result, err := b.transcoder.Transcode(scene, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if len(result.Resources) == 0 {
		return []ContentEntry{{RelativePath: relativePath, CID: b.addresser.Identify(scene), SourcePath: path}}, nil
	}

	stagedScene := filepath.Join(b.stagingDir, filepath.FromSlash(relativePath))
	if err := stage(stagedScene, result.Scene); err != nil {
		return nil, err
	}

	entries := []ContentEntry{{
		RelativePath: relativePath,
		CID:          b.addresser.Identify(result.Scene),
		SourcePath:   stagedScene,
	}}
	for _, resource := range result.Resources {
		staged := filepath.Join(filepath.Dir(stagedScene), resource.Name)
		if err := stage(staged, resource.Data); err != nil {
			return nil, err
		}
		entries = append(entries, ContentEntry{
			RelativePath: pathJoin(relativePath, resource.Name),
			CID:          b.addresser.Identify(resource.Data),
			SourcePath:   staged,
		})
	}

	return entries, nil
}

func stage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: could not stage %s: %v", transcode.ErrTranscode, path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: could not stage %s: %v", transcode.ErrTranscode, path, err)
	}
	return nil
}

func relativeTo(root string, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%s is not below %s: %w", path, root, err)
	}
	return filepath.ToSlash(rel), nil
}

// pathJoin places name next to the slash separated relativePath.
func pathJoin(relativePath string, name string) string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(relativePath)))
	if dir == "." {
		return name
	}
	return dir + "/" + name
}
