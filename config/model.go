package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type Config struct {
	Jobs []Job `json:"jobs,omitempty"`
}

// Job bundles every pack below SourceDir on a cron schedule.
type Job struct {
	SourceDir     string       `json:"source_dir"`
	OutDir        string       `json:"out_dir,omitempty"`
	URL           string       `json:"url,omitempty"`
	Bucket        string       `json:"bucket"`
	ContentServer string       `json:"content_server"`
	MaxFileSize   SizeArgument `json:"max_file_size,omitempty"`
	UploadFailure string       `json:"upload_failure,omitempty"`
	Force         bool         `json:"force,omitempty"`
	Enable        bool         `json:"enable"`
	Schedule      string       `json:"cron"`
}

func (j Job) Validate() error {
	var errs []error
	if j.SourceDir == "" {
		errs = append(errs, errors.New("source_dir is required"))
	}
	if j.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if j.Schedule == "" {
		errs = append(errs, errors.New("cron is required"))
	}
	if (j.OutDir == "") != (j.URL == "") {
		errs = append(errs, errors.New("out_dir and url go together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("job %q: %w", j.SourceDir, err)
	}
	return nil
}

func (j Job) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source_dir", j.SourceDir)
	e.Str("bucket", j.Bucket)
	e.Bool("enable", j.Enable)
	e.Str("schedule", j.Schedule)

	if j.OutDir != "" {
		e.Str("out_dir", j.OutDir)
	}
	if j.MaxFileSize.Size > 0 {
		e.Int64("max_file_size", j.MaxFileSize.Size)
	}
	if j.Force {
		e.Bool("force", j.Force)
	}
}
