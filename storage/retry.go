package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type RetryOption func(r *retrying)

// WithMaxElapsedTime bounds the total time spent retrying one call.
func WithMaxElapsedTime(d time.Duration) RetryOption {
	return func(r *retrying) {
		r.maxElapsed = d
	}
}

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(r *retrying) {
		r.initialInterval = d
	}
}

// WithRetry retries failed calls of gw with exponential backoff, at most
// maxRetries times per call. The last error is returned unchanged.
func WithRetry(gw Gateway, maxRetries uint64, logger zerolog.Logger, opts ...RetryOption) Gateway {
	r := &retrying{
		parent:          gw,
		maxRetries:      maxRetries,
		maxElapsed:      time.Minute,
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type retrying struct {
	parent          Gateway
	maxRetries      uint64
	maxElapsed      time.Duration
	initialInterval time.Duration
	logger          zerolog.Logger
}

func (r *retrying) Exists(ctx context.Context, bucket string, key string) (bool, error) {
	var exists bool
	err := r.retry(ctx, "exists", key, func() error {
		var err error
		exists, err = r.parent.Exists(ctx, bucket, key)
		return err
	})
	return exists, err
}

func (r *retrying) Put(ctx context.Context, bucket string, key string, contentType string, data []byte) error {
	return r.retry(ctx, "put", key, func() error {
		return r.parent.Put(ctx, bucket, key, contentType, data)
	})
}

func (r *retrying) retry(ctx context.Context, op string, key string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxElapsedTime = r.maxElapsed

	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).
			Str("op", op).
			Str("key", key).
			Dur("retry_in", wait).
			Msg("storage call failed, retrying")
	}

	return backoff.RetryNotify(fn, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx), notify)
}
