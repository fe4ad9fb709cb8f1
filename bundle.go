package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/asset"
	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/config"
	"github.com/stupid-simple/assetpack/database"
	"github.com/stupid-simple/assetpack/fileutils"
	"github.com/stupid-simple/assetpack/manifest"
	"github.com/stupid-simple/assetpack/pack"
	"github.com/stupid-simple/assetpack/storage"
	"github.com/stupid-simple/assetpack/transcode"
	"github.com/stupid-simple/assetpack/upload"
)

func bundleCommand(ctx context.Context, args Command, env *config.Env, logger zerolog.Logger) error {
	if args.Bundle.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	policy, err := pack.ParseFailurePolicy(args.Bundle.UploadFailure)
	if err != nil {
		return err
	}

	gateway, err := newGateway(ctx, env, args.Bundle.DryRun, logger)
	if err != nil {
		return err
	}

	var db *database.Database
	if args.Bundle.Database != "" {
		db, err = openLedger(args.Bundle.Database, logger, args.Bundle.DryRun)
		if err != nil {
			return fmt.Errorf("could not open database: %w", err)
		}
	}

	_, err = bundlePacks(ctx, bundleParams{
		srcPath:       args.Bundle.Src,
		outPath:       args.Bundle.Out,
		publicURL:     args.Bundle.URL,
		bucket:        args.Bundle.Bucket,
		contentServer: args.Bundle.ContentServer,
		workDir:       args.Bundle.WorkDir,
		maxFileBytes:  args.Bundle.MaxFileSize.Size,
		hash:          cid.Algorithm(args.Bundle.Hash),
		policy:        policy,
		transcode:     !args.Bundle.NoTranscode,
		force:         args.Bundle.Force,
		dryRun:        args.Bundle.DryRun,
		batchSize:     env.UploadBatchSize,
		gateway:       gateway,
		db:            db,
		logger:        logger,
	})
	return err
}

type bundleParams struct {
	srcPath       string
	outPath       string
	publicURL     string
	bucket        string
	contentServer string
	workDir       string
	maxFileBytes  int64
	hash          cid.Algorithm
	policy        pack.FailurePolicy
	transcode     bool
	force         bool
	dryRun        bool
	batchSize     int
	gateway       storage.Gateway
	db            *database.Database
	logger        zerolog.Logger
}

type skippedPack struct {
	dir    string
	reason error
}

type bundleReport struct {
	packs   []*pack.Pack
	skipped []skippedPack
}

// bundlePacks bundles every pack below the source directory and writes
// the catalog of the packs that made it. Only conditions that make the
// whole run pointless are returned as errors, skipped packs and assets
// are reported.
func bundlePacks(ctx context.Context, p bundleParams) (*bundleReport, error) {
	if (p.outPath == "") != (p.publicURL == "") {
		return nil, errors.New("--out and --url must be given together")
	}
	if p.outPath != "" && !p.dryRun {
		if err := fileutils.VerifyWritable(p.outPath); err != nil {
			return nil, fmt.Errorf("output directory is not writable: %w", err)
		}
	}

	addresser, err := cid.New(p.hash)
	if err != nil {
		return nil, err
	}

	packDirs, err := listDirs(p.srcPath)
	if err != nil {
		return nil, fmt.Errorf("could not read source directory: %w", err)
	}

	workDir := p.workDir
	if workDir == "" && p.transcode {
		workDir, err = os.MkdirTemp("", "assetpack-")
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = os.RemoveAll(workDir)
		}()
	}

	startTime := time.Now()
	report := &bundleReport{}
	p.logger.Info().Str("source", p.srcPath).Int("packs", len(packDirs)).Str("bucket", p.bucket).Msg("starting bundle")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			p.logger.Info().Str("source", p.srcPath).Float64("seconds", tookSeconds).Msg("bundle cancelled")
		} else {
			p.logger.Info().
				Str("source", p.srcPath).
				Int("bundled", len(report.packs)).
				Int("skipped", len(report.skipped)).
				Float64("seconds", tookSeconds).
				Msg("bundle done")
		}
	}()

	uploadOpts := []upload.Option{upload.WithBatchSize(p.batchSize), upload.WithForce(p.force)}
	if p.db != nil {
		uploadOpts = append(uploadOpts, upload.WithLedger(p.db))
	}
	uploader := upload.NewScheduler(p.gateway, p.logger, uploadOpts...)

	for _, packDir := range packDirs {
		if err := ctx.Err(); err != nil {
			report.skipped = append(report.skipped, skippedPack{dir: filepath.Base(packDir), reason: err})
			continue
		}

		bundler := pack.NewBundler(pack.BundlerParams{
			Addresser:        addresser,
			Builder:          newAssetBuilder(addresser, p, workDir, filepath.Base(packDir)),
			Uploader:         uploader,
			Bucket:           p.bucket,
			ContentServerURL: p.contentServer,
			OutDir:           p.outPath,
			Logger:           p.logger,
		},
			pack.WithBatchSize(uploader.BatchSize()),
			pack.WithFailurePolicy(p.policy),
			pack.WithDryRun(p.dryRun),
		)

		bundled, err := bundler.Bundle(ctx, packDir)
		if err != nil {
			report.skipped = append(report.skipped, skippedPack{dir: filepath.Base(packDir), reason: err})
			continue
		}
		report.packs = append(report.packs, bundled)
	}
	logSummary(report, p.logger)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if p.db != nil {
		logLedgerStats(ctx, p.db, p.logger)
	}

	if p.outPath == "" {
		return report, nil
	}
	if p.dryRun {
		p.logger.Info().Str("out", p.outPath).Int("packs", len(report.packs)).Msg("dry run, not writing catalog")
		return report, nil
	}
	if err := manifest.Write(p.outPath, p.publicURL, report.packs); err != nil {
		return report, err
	}
	p.logger.Info().Str("out", p.outPath).Int("packs", len(report.packs)).Msg("catalog written")

	return report, nil
}

func newAssetBuilder(addresser *cid.Addresser, p bundleParams, workDir string, packName string) *asset.Builder {
	opts := []asset.BuilderOption{asset.WithMaxFileBytes(p.maxFileBytes)}
	if p.transcode {
		opts = append(opts, asset.WithTranscoder(transcode.GLTF{}, filepath.Join(workDir, packName)))
	}
	if p.db != nil {
		opts = append(opts, asset.WithFileIdentifier(database.NewCIDCache(p.db, addresser)))
	}
	return asset.NewBuilder(addresser, p.logger, opts...)
}

// logSummary itemizes everything left out of the run.
func logSummary(report *bundleReport, logger zerolog.Logger) {
	for _, s := range report.skipped {
		logger.Warn().Str("pack", s.dir).AnErr("reason", s.reason).Msg("skipped pack")
	}
	for _, p := range report.packs {
		for _, s := range p.Skipped {
			logger.Warn().Str("pack", p.ID).Object("skip", s).Msg("skipped asset")
		}
	}
}

// logLedgerStats reports what the ledger knows about every bucket.
func logLedgerStats(ctx context.Context, db *database.Database, logger zerolog.Logger) {
	buckets, err := db.IterBuckets(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list ledger buckets")
		return
	}
	for bucket := range buckets {
		objects, size, err := bucket.Stats(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("bucket", bucket.Name()).Msg("could not read ledger stats")
			continue
		}
		logger.Info().
			Str("bucket", bucket.Name()).
			Int64("objects", objects).
			Str("size", units.HumanSize(float64(size))).
			Msg("ledger stats")
	}
}

// listDirs returns the immediate sub directories of dirPath in lexical
// order.
func listDirs(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	dirs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dirPath, entry.Name()))
		}
	}
	return dirs, nil
}
