// Package upload pushes content-addressed objects to storage, skipping
// objects that are already present.
package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/batch"
	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/storage"
)

var (
	ErrStorageCheck = errors.New("storage existence check failed")
	ErrStorageWrite = errors.New("storage write failed")
)

type Status int

const (
	StatusFailed Status = iota
	StatusUploaded
	StatusPresent   // already in storage, nothing transferred
	StatusDuplicate // shares its CID with another path of the same plan
)

func (s Status) String() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusPresent:
		return "present"
	case StatusDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

type Result struct {
	Path   string
	CID    string
	Status Status
	Size   int64 // bytes transferred
	Err    error
}

func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", r.Path)
	e.Str("cid", r.CID)
	e.Stringer("status", r.Status)
	if r.Size > 0 {
		e.Int64("size", r.Size)
	}
	if r.Err != nil {
		e.AnErr("cause", r.Err)
	}
}

// Failed returns the results that did not land in storage.
func Failed(results []Result) []Result {
	failed := []Result{}
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Resolver returns the local bytes of a plan path.
type Resolver func(path string) ([]byte, error)

// Object is a stored object recorded in a Ledger.
type Object struct {
	CID         string
	ContentType string
	Size        int64
}

// Ledger remembers objects known to be in storage across runs.
type Ledger interface {
	Has(ctx context.Context, bucket string, cids []string) (map[string]bool, error)
	Register(ctx context.Context, bucket string, objects []Object) error
}

type Option func(s *Scheduler)

// WithBatchSize sets how many check-then-put operations run at once.
func WithBatchSize(size int) Option {
	return func(s *Scheduler) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithForce skips storage and ledger existence checks. Objects confirmed
// earlier in the same run are still uploaded only once.
func WithForce(force bool) Option {
	return func(s *Scheduler) {
		s.force = force
	}
}

func WithLedger(ledger Ledger) Option {
	return func(s *Scheduler) {
		s.ledger = ledger
	}
}

type Scheduler struct {
	gateway   storage.Gateway
	batchSize int
	force     bool
	ledger    Ledger
	logger    zerolog.Logger

	mu        sync.Mutex
	confirmed map[string]map[string]bool // bucket, cid
}

func NewScheduler(gateway storage.Gateway, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		gateway:   gateway,
		batchSize: batch.DefaultSize,
		logger:    logger,
		confirmed: map[string]map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) BatchSize() int {
	return s.batchSize
}

type task struct {
	path string
	cid  string
}

// Upload makes sure every CID of contents is stored in bucket. Results
// are returned in path order, one per entry of contents.
func (s *Scheduler) Upload(ctx context.Context, bucket string, contents map[string]string, resolve Resolver) []Result {
	logger := s.logger.With().Str("bucket", bucket).Logger()
	startTime := time.Now()

	paths := make([]string, 0, len(contents))
	for path := range contents {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	byPath := make(map[string]Result, len(paths))
	representative := map[string]string{}
	tasks := []task{}
	for _, path := range paths {
		id := contents[path]
		if _, ok := representative[id]; ok {
			continue
		}
		representative[id] = path

		if err := cid.Validate(id); err != nil {
			byPath[path] = Result{Path: path, CID: id, Err: fmt.Errorf("%w: %w", ErrStorageCheck, err)}
			continue
		}
		if s.isConfirmed(bucket, id) {
			byPath[path] = Result{Path: path, CID: id, Status: StatusPresent}
			continue
		}
		tasks = append(tasks, task{path: path, cid: id})
	}

	tasks = s.skipRecorded(ctx, bucket, tasks, byPath, logger)

	logger.Info().
		Int("entries", len(paths)).
		Int("objects", len(representative)).
		Int("to_check", len(tasks)).
		Int("batches", batch.Count(len(tasks), s.batchSize)).
		Bool("force", s.force).
		Msg("uploading contents")

	settled, err := batch.Run(ctx, tasks, s.batchSize, func(ctx context.Context, t task) Result {
		return s.checkThenPut(ctx, bucket, t, resolve)
	}, batch.WithOnBatch(func(r batch.Report) {
		logger.Debug().Int("batch", r.Index).Int("size", r.Size).Dur("took", r.Elapsed).Msg("upload batch settled")
	}))
	for _, r := range settled {
		byPath[r.Path] = r
	}
	for _, t := range tasks[len(settled):] {
		byPath[t.path] = Result{Path: t.path, CID: t.cid, Err: fmt.Errorf("%w: not started: %w", ErrStorageCheck, err)}
	}

	results := make([]Result, 0, len(paths))
	stored := []Object{}
	var uploadedBytes int64
	counts := map[Status]int{}
	for _, path := range paths {
		r, ok := byPath[path]
		if !ok {
			r = duplicateOf(path, byPath[representative[contents[path]]])
		} else if r.Err == nil {
			s.confirm(bucket, r.CID)
			if r.Status == StatusUploaded {
				stored = append(stored, Object{CID: r.CID, ContentType: storage.ContentType(path), Size: r.Size})
				uploadedBytes += r.Size
			}
		}
		if r.Err != nil {
			logger.Warn().Object("result", r).Msg("could not upload content")
		}
		counts[r.Status]++
		results = append(results, r)
	}

	s.record(ctx, bucket, stored, logger)

	logger.Info().
		Int("uploaded", counts[StatusUploaded]).
		Int("present", counts[StatusPresent]).
		Int("duplicate", counts[StatusDuplicate]).
		Int("failed", counts[StatusFailed]).
		Str("transferred", units.HumanSize(float64(uploadedBytes))).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done uploading contents")

	return results
}

func (s *Scheduler) checkThenPut(ctx context.Context, bucket string, t task, resolve Resolver) Result {
	r := Result{Path: t.path, CID: t.cid}

	if !s.force {
		exists, err := s.gateway.Exists(ctx, bucket, t.cid)
		if err != nil {
			r.Err = fmt.Errorf("%w: %s: %w", ErrStorageCheck, t.cid, err)
			return r
		}
		if exists {
			r.Status = StatusPresent
			return r
		}
	}

	data, err := resolve(t.path)
	if err != nil {
		r.Err = fmt.Errorf("%w: could not read %s: %w", ErrStorageWrite, t.path, err)
		return r
	}
	if err := s.gateway.Put(ctx, bucket, t.cid, storage.ContentType(t.path), data); err != nil {
		r.Err = fmt.Errorf("%w: %s: %w", ErrStorageWrite, t.cid, err)
		return r
	}

	r.Status = StatusUploaded
	r.Size = int64(len(data))
	return r
}

// skipRecorded resolves tasks the ledger already knows about.
func (s *Scheduler) skipRecorded(ctx context.Context, bucket string, tasks []task, byPath map[string]Result, logger zerolog.Logger) []task {
	if s.ledger == nil || s.force || len(tasks) == 0 {
		return tasks
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.cid
	}
	known, err := s.ledger.Has(ctx, bucket, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read upload ledger, checking storage instead")
		return tasks
	}

	remaining := tasks[:0:0]
	for _, t := range tasks {
		if known[t.cid] {
			byPath[t.path] = Result{Path: t.path, CID: t.cid, Status: StatusPresent}
			continue
		}
		remaining = append(remaining, t)
	}
	logger.Debug().Int("recorded", len(tasks)-len(remaining)).Msg("skipped objects recorded in ledger")
	return remaining
}

func (s *Scheduler) record(ctx context.Context, bucket string, objects []Object, logger zerolog.Logger) {
	if s.ledger == nil || len(objects) == 0 {
		return
	}
	if err := s.ledger.Register(ctx, bucket, objects); err != nil {
		logger.Warn().Err(err).Msg("could not record uploads in ledger")
	}
}

func (s *Scheduler) isConfirmed(bucket string, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[bucket][id]
}

func (s *Scheduler) confirm(bucket string, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed[bucket] == nil {
		s.confirmed[bucket] = map[string]bool{}
	}
	s.confirmed[bucket][id] = true
}

func duplicateOf(path string, rep Result) Result {
	r := Result{Path: path, CID: rep.CID, Err: rep.Err}
	if rep.Err == nil {
		r.Status = StatusDuplicate
	}
	return r
}
