package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/config"
	"github.com/stupid-simple/assetpack/database"
	"github.com/stupid-simple/assetpack/fileutils"
	"github.com/stupid-simple/assetpack/pack"
	"github.com/stupid-simple/assetpack/scheduler"
	"github.com/stupid-simple/assetpack/storage"
)

func daemonCommand(ctx context.Context, args Command, env *config.Env, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Daemon.Config)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	db, err := openLedger(args.Daemon.Database, logger, args.Daemon.DryRun)
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}

	gateway, err := newGateway(ctx, env, args.Daemon.DryRun, logger)
	if err != nil {
		return err
	}

	scheduler := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	deps := jobDeps{
		gateway:   gateway,
		db:        db,
		batchSize: env.UploadBatchSize,
		dryRun:    args.Daemon.DryRun,
	}
	addBundleJobsFromConfig(ctx, scheduler, cfg, deps, logger)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	startConfigFileWatcher(ctx, args.Daemon.Config, logger, ticker, func(cfg *config.Config) {
		scheduler.RemoveJobs()
		addBundleJobsFromConfig(ctx, scheduler, cfg, deps, logger)
	})

	scheduler.Start()
	defer scheduler.Stop()

	<-ctx.Done()

	return nil
}

type jobDeps struct {
	gateway   storage.Gateway
	db        *database.Database
	batchSize int
	dryRun    bool
}

func addBundleJobsFromConfig(
	ctx context.Context,
	scheduler *scheduler.Scheduler,
	cfg *config.Config,
	deps jobDeps,
	logger zerolog.Logger,
) {
	sourceDirs := make(map[string]struct{})
	outDirs := make(map[string]struct{})

	for _, job := range cfg.Jobs {
		if !job.Enable {
			logger.Info().Str("source", job.SourceDir).Msg("skipping disabled bundle job")
			continue
		}

		bundle, err := configJobToBundleJob(ctx, job, deps, logger)
		if err != nil {
			logger.Warn().AnErr("cause", err).Msg("skipping job")
			continue
		}

		if _, ok := sourceDirs[job.SourceDir]; ok {
			logger.Warn().Str("source", job.SourceDir).Msg("skipping duplicate source")
			continue
		}
		sourceDirs[job.SourceDir] = struct{}{}

		if job.OutDir != "" {
			if _, ok := outDirs[job.OutDir]; ok {
				logger.Warn().Str("out", job.OutDir).Msg("skipping duplicate output directory")
				continue
			}
			outDirs[job.OutDir] = struct{}{}
		}

		if err := scheduler.AddBundleJob(ctx, job.Schedule, bundle); err != nil {
			logger.Error().Err(err).Str("source", job.SourceDir).Msg("could not add bundle job")
			continue
		}

		logger.Info().
			Object("job", job).
			Msg("added bundle job")
	}
}

func configJobToBundleJob(
	ctx context.Context,
	job config.Job,
	deps jobDeps,
	logger zerolog.Logger,
) (scheduler.BundleJob, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	policy, err := pack.ParseFailurePolicy(job.UploadFailure)
	if err != nil {
		return nil, err
	}

	return &bundleJob{
		ctx: ctx,
		params: bundleParams{
			srcPath:       job.SourceDir,
			outPath:       job.OutDir,
			publicURL:     job.URL,
			bucket:        job.Bucket,
			contentServer: job.ContentServer,
			maxFileBytes:  job.MaxFileSize.Size,
			hash:          cid.SHA256,
			policy:        policy,
			transcode:     true,
			force:         job.Force,
			dryRun:        deps.dryRun,
			batchSize:     deps.batchSize,
			gateway:       deps.gateway,
			db:            deps.db,
			logger:        logger.With().Str("job", job.SourceDir).Logger(),
		},
	}, nil
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, ticker *time.Ticker, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, when(ticker.C), func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher:
				if !ok {
					return
				}
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := config.LoadFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

func when[T any](ch <-chan T) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for range ch {
			out <- struct{}{}
		}
	}()
	return out
}

type bundleJob struct {
	ctx    context.Context
	params bundleParams
}

func (b *bundleJob) Run() {
	if _, err := bundlePacks(b.ctx, b.params); err != nil {
		b.params.logger.Error().Err(err).Str("source", b.params.srcPath).Msg("bundle job failed")
	}
}
