package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/config"
	"github.com/stupid-simple/assetpack/storage"
	"github.com/stupid-simple/assetpack/storage/fsstore"
	"github.com/stupid-simple/assetpack/storage/ossstore"
	"github.com/stupid-simple/assetpack/storage/s3store"
)

func newGateway(ctx context.Context, env *config.Env, dryRun bool, logger zerolog.Logger) (storage.Gateway, error) {
	logger = logger.With().Str("backend", string(env.StorageBackend)).Logger()

	var gw storage.Gateway
	switch env.StorageBackend {
	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Params{
			AccessKey:    env.AccessKey,
			AccessSecret: env.AccessSecret,
			Region:       env.Region,
			Endpoint:     env.S3Endpoint,
			PathStyle:    env.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create s3 client: %w", err)
		}
		gw = store
	case config.BackendOSS:
		store, err := ossstore.New(ossstore.Params{
			Endpoint:     env.OSSEndpoint,
			AccessKey:    env.OSSAccessKey,
			AccessSecret: env.OSSAccessSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create oss client: %w", err)
		}
		gw = store
	case config.BackendFS:
		store, err := fsstore.New(env.StorageRoot)
		if err != nil {
			return nil, fmt.Errorf("could not open storage directory: %w", err)
		}
		gw = store
	default:
		return nil, fmt.Errorf("unknown storage backend %q", env.StorageBackend)
	}

	if env.UploadRetries > 0 {
		gw = storage.WithRetry(gw, env.UploadRetries, logger, storage.WithMaxElapsedTime(env.UploadRetryMaxElapsed))
	}
	if dryRun {
		gw = storage.DryRun(gw, logger)
	}

	logger.Debug().Uint64("retries", env.UploadRetries).Bool("dryrun", dryRun).Msg("storage gateway ready")
	return gw, nil
}
