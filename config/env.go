package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type StorageBackend string

const (
	BackendS3  StorageBackend = "s3"
	BackendOSS StorageBackend = "oss"
	BackendFS  StorageBackend = "fs"
)

// Env is the configuration read from the process environment.
type Env struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StorageBackend StorageBackend `env:"STORAGE_BACKEND" envDefault:"s3"`

	AccessKey    string `env:"AWS_ACCESS_KEY"`
	AccessSecret string `env:"AWS_ACCESS_SECRET"`
	Region       string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3Endpoint   string `env:"S3_ENDPOINT"`
	S3PathStyle  bool   `env:"S3_PATH_STYLE"`

	OSSEndpoint     string `env:"OSS_ENDPOINT"`
	OSSAccessKey    string `env:"OSS_ACCESS_KEY_ID"`
	OSSAccessSecret string `env:"OSS_ACCESS_KEY_SECRET"`

	// Directory holding the buckets of the fs backend.
	StorageRoot string `env:"STORAGE_ROOT" envDefault:"storage"`

	UploadBatchSize int    `env:"UPLOAD_BATCH_SIZE" envDefault:"15"`
	UploadRetries   uint64 `env:"UPLOAD_RETRIES" envDefault:"3"`

	// Total time spent retrying one storage call.
	UploadRetryMaxElapsed time.Duration `env:"UPLOAD_RETRY_MAX_ELAPSED" envDefault:"1m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (*Env, error) {
	return parseEnv(env.Options{})
}

// ParseEnvFrom loads configuration from the given variables instead of
// the process environment.
func ParseEnvFrom(environment map[string]string) (*Env, error) {
	return parseEnv(env.Options{Environment: environment})
}

func parseEnv(opts env.Options) (*Env, error) {
	e := &Env{}
	if err := env.ParseWithOptions(e, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Env) validate() error {
	switch e.StorageBackend {
	case BackendS3, BackendOSS, BackendFS:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", e.StorageBackend)
	}
	if e.UploadBatchSize <= 0 {
		return fmt.Errorf("UPLOAD_BATCH_SIZE must be positive, got %d", e.UploadBatchSize)
	}
	if e.UploadRetryMaxElapsed <= 0 {
		return fmt.Errorf("UPLOAD_RETRY_MAX_ELAPSED must be positive, got %s", e.UploadRetryMaxElapsed)
	}
	return nil
}
