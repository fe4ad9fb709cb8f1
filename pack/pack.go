// Package pack bundles one asset pack directory: it builds every asset,
// uploads their contents and writes the published pack documents.
package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/asset"
	"github.com/stupid-simple/assetpack/batch"
	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/descriptor"
	"github.com/stupid-simple/assetpack/fileutils"
	"github.com/stupid-simple/assetpack/upload"
)

// Version of the published pack document format.
const Version = 1

var (
	ErrAborted      = errors.New("pack aborted")
	ErrUploadFailed = errors.New("pack contents failed to upload")
	ErrWrite        = errors.New("could not write pack")
)

type State int

const (
	StateInit State = iota
	StateScanning
	StateBuildingAssets
	StateUploading
	StateWriting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateScanning:
		return "scanning"
	case StateBuildingAssets:
		return "building_assets"
	case StateUploading:
		return "uploading"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FailurePolicy decides what an upload failure does to a pack.
type FailurePolicy string

const (
	// DropAsset leaves assets with failed uploads out of the pack.
	DropAsset FailurePolicy = "drop-asset"
	// RejectPack fails the whole pack.
	RejectPack FailurePolicy = "reject-pack"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case DropAsset, RejectPack:
		return p, nil
	case "":
		return DropAsset, nil
	default:
		return "", fmt.Errorf("unknown upload failure policy %q", s)
	}
}

// Skip records an asset folder left out of a pack.
type Skip struct {
	Dir    string
	Reason error
}

func (s Skip) MarshalZerologObject(e *zerolog.Event) {
	e.Str("dir", s.Dir)
	e.AnErr("reason", s.Reason)
}

type Pack struct {
	ID           string
	Title        string
	Version      int
	Assets       []*asset.Asset
	ThumbnailCID string
	SourceDir    string
	Skipped      []Skip
	State        State
}

func (p *Pack) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", p.ID)
	e.Str("title", p.Title)
	e.Str("dir", p.SourceDir)
	e.Int("assets", len(p.Assets))
	e.Int("skipped", len(p.Skipped))
	e.Stringer("state", p.State)
}

// AssetBuilder builds one asset folder of a pack.
type AssetBuilder interface {
	Build(ctx context.Context, packDir string, assetDir string) (*asset.Asset, error)
}

// Uploader stores a content plan of path to CID.
type Uploader interface {
	Upload(ctx context.Context, bucket string, contents map[string]string, resolve upload.Resolver) []upload.Result
}

type BundlerParams struct {
	Addresser        *cid.Addresser
	Builder          AssetBuilder
	Uploader         Uploader
	Bucket           string
	ContentServerURL string
	// OutDir receives the pack documents. Nothing is written when empty.
	OutDir string
	Logger zerolog.Logger
}

type BundlerOption func(b *Bundler)

func WithBatchSize(size int) BundlerOption {
	return func(b *Bundler) {
		if size > 0 {
			b.batchSize = size
		}
	}
}

func WithFailurePolicy(policy FailurePolicy) BundlerOption {
	return func(b *Bundler) {
		b.policy = policy
	}
}

// WithDryRun skips writing pack documents.
func WithDryRun(dryRun bool) BundlerOption {
	return func(b *Bundler) {
		b.dryRun = dryRun
	}
}

type Bundler struct {
	BundlerParams
	batchSize int
	policy    FailurePolicy
	dryRun    bool
}

func NewBundler(params BundlerParams, opts ...BundlerOption) *Bundler {
	b := &Bundler{
		BundlerParams: params,
		batchSize:     batch.DefaultSize,
		policy:        DropAsset,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type built struct {
	dir   string
	asset *asset.Asset
	err   error
}

// Bundle runs the pack at packDir to completion. The returned pack is
// never nil and carries the state it ended in.
func (b *Bundler) Bundle(ctx context.Context, packDir string) (*Pack, error) {
	p := &Pack{SourceDir: packDir, Version: Version, State: StateInit}
	logger := b.Logger.With().Str("pack_dir", packDir).Logger()
	startTime := time.Now()

	desc, err := descriptor.LoadPack(packDir)
	if err != nil {
		p.State = StateAborted
		return p, fmt.Errorf("%w: %s: %w", ErrAborted, packDir, err)
	}
	p.ID = desc.ID
	p.Title = desc.Title
	logger = logger.With().Str("pack", p.ID).Logger()

	defer func() {
		logger.Info().
			Object("pack", p).
			Float64("seconds", time.Since(startTime).Seconds()).
			Msg("done bundling pack")
	}()

	p.State = StateScanning
	dirs, err := assetDirs(packDir)
	if err != nil {
		p.State = StateAborted
		return p, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	logger.Info().Int("folders", len(dirs)).Msg("processing assets")

	p.State = StateBuildingAssets
	results, err := batch.Run(ctx, dirs, b.batchSize, func(ctx context.Context, dir string) built {
		a, err := b.Builder.Build(ctx, packDir, dir)
		return built{dir: dir, asset: a, err: err}
	})
	if err != nil {
		p.State = StateAborted
		return p, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	for _, r := range results {
		if r.err != nil {
			b.skip(p, r.dir, r.err, logger)
			continue
		}
		p.Assets = append(p.Assets, r.asset)
	}
	logger.Info().Int("assets", len(p.Assets)).Msg("found valid assets")

	p.State = StateUploading
	if err := b.upload(ctx, p, logger); err != nil {
		p.State = StateAborted
		return p, err
	}

	p.State = StateWriting
	if err := b.write(p); err != nil {
		p.State = StateAborted
		return p, err
	}

	p.State = StateDone
	return p, nil
}

func (b *Bundler) skip(p *Pack, dir string, reason error, logger zerolog.Logger) {
	s := Skip{Dir: filepath.Base(dir), Reason: reason}
	p.Skipped = append(p.Skipped, s)
	logger.Warn().Object("skip", s).Msg("skipped asset")
}

// plan maps upload paths to the asset that owns them. Pack level entries
// have no owner.
type plan struct {
	contents map[string]string
	sources  map[string]string
	owners   map[string]*asset.Asset
}

func (b *Bundler) buildPlan(p *Pack) (*plan, error) {
	pl := &plan{
		contents: map[string]string{},
		sources:  map[string]string{},
		owners:   map[string]*asset.Asset{},
	}

	for _, a := range p.Assets {
		for _, entry := range a.Contents {
			pl.contents[entry.RelativePath] = entry.CID
			pl.sources[entry.RelativePath] = entry.SourcePath
			pl.owners[entry.RelativePath] = a
		}
		thumbnail := filepath.ToSlash(filepath.Join(filepath.Base(a.SourceDir), asset.ThumbnailFileName))
		pl.contents[thumbnail] = a.ThumbnailCID
		pl.sources[thumbnail] = filepath.Join(a.SourceDir, asset.ThumbnailFileName)
		pl.owners[thumbnail] = a
	}

	thumbnail := filepath.Join(p.SourceDir, asset.ThumbnailFileName)
	if fileutils.Exists(thumbnail) {
		id, err := b.Addresser.IdentifyFile(thumbnail)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", asset.ErrHash, thumbnail, err)
		}
		p.ThumbnailCID = id
		pl.contents[asset.ThumbnailFileName] = id
		pl.sources[asset.ThumbnailFileName] = thumbnail
	}

	return pl, nil
}

func (b *Bundler) upload(ctx context.Context, p *Pack, logger zerolog.Logger) error {
	pl, err := b.buildPlan(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	results := b.Uploader.Upload(ctx, b.Bucket, pl.contents, func(path string) ([]byte, error) {
		source, ok := pl.sources[path]
		if !ok {
			return nil, fmt.Errorf("%s is not part of the pack", path)
		}
		return os.ReadFile(source)
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	// a failed pack thumbnail only clears the thumbnail, whatever the policy
	failed := slices.DeleteFunc(upload.Failed(results), func(r upload.Result) bool {
		if _, ok := pl.owners[r.Path]; ok {
			return false
		}
		logger.Warn().Err(r.Err).Str("path", r.Path).Msg("could not upload pack thumbnail")
		p.ThumbnailCID = ""
		return true
	})
	if len(failed) == 0 {
		return nil
	}
	if b.policy == RejectPack {
		return fmt.Errorf("%w: %d of %d entries failed, first: %w", ErrUploadFailed, len(failed), len(results), failed[0].Err)
	}

	dropped := map[*asset.Asset]error{}
	for _, r := range failed {
		owner := pl.owners[r.Path]
		if _, ok := dropped[owner]; !ok {
			dropped[owner] = r.Err
		}
	}
	p.Assets = slices.DeleteFunc(p.Assets, func(a *asset.Asset) bool {
		reason, ok := dropped[a]
		if ok {
			b.skip(p, a.SourceDir, reason, logger)
		}
		return ok
	})

	return nil
}

// Document is the published form of a pack.
type Document struct {
	ID      string           `json:"id"`
	Version int              `json:"version"`
	Title   string           `json:"title"`
	Assets  []asset.Document `json:"assets"`
}

func (p *Pack) Document(contentServerURL string) Document {
	assets := make([]asset.Document, 0, len(p.Assets))
	for _, a := range p.Assets {
		assets = append(assets, a.Document(contentServerURL))
	}
	return Document{ID: p.ID, Version: p.Version, Title: p.Title, Assets: assets}
}

// Envelope wraps published documents the way the catalog server
// answers requests.
type Envelope[T any] struct {
	OK   bool `json:"ok"`
	Data T    `json:"data"`
}

func NewEnvelope[T any](data T) Envelope[T] {
	return Envelope[T]{OK: true, Data: data}
}

func (b *Bundler) write(p *Pack) error {
	if b.OutDir == "" {
		return nil
	}
	if b.dryRun {
		b.Logger.Info().Str("pack", p.ID).Str("out", b.OutDir).Msg("dry run, not writing pack")
		return nil
	}

	doc := p.Document(b.ContentServerURL)
	if err := writeJSON(filepath.Join(b.OutDir, p.ID+".json"), NewEnvelope(doc)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(b.OutDir, p.ID+"-assets.json"), doc.Assets); err != nil {
		return err
	}
	if p.ThumbnailCID != "" {
		if err := fileutils.CopyFile(filepath.Join(p.SourceDir, asset.ThumbnailFileName), filepath.Join(b.OutDir, p.ID+".png")); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := fileutils.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return nil
}

// assetDirs lists the immediate subdirectories of packDir in lexical
// order.
func assetDirs(packDir string) ([]string, error) {
	entries, err := os.ReadDir(packDir)
	if err != nil {
		return nil, err
	}
	dirs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(packDir, entry.Name()))
		}
	}
	return dirs, nil
}
