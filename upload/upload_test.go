package upload_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/upload"
)

type memoryGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut map[string]bool
	delay   time.Duration

	exists   atomic.Int32
	puts     atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{objects: map[string][]byte{}, failPut: map[string]bool{}}
}

func (g *memoryGateway) enter() func() {
	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(g.delay)
	return func() { g.inFlight.Add(-1) }
}

func (g *memoryGateway) Exists(_ context.Context, bucket string, key string) (bool, error) {
	defer g.enter()()
	g.exists.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[bucket+"/"+key]
	return ok, nil
}

func (g *memoryGateway) Put(_ context.Context, bucket string, key string, _ string, data []byte) error {
	defer g.enter()()
	g.puts.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPut[key] {
		return errors.New("connection reset")
	}
	g.objects[bucket+"/"+key] = data
	return nil
}

type memoryLedger struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (l *memoryLedger) Has(_ context.Context, bucket string, cids []string) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	known := map[string]bool{}
	for _, id := range cids {
		if l.objects[bucket+"/"+id] {
			known[id] = true
		}
	}
	return known, nil
}

func (l *memoryLedger) Register(_ context.Context, bucket string, objects []upload.Object) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range objects {
		l.objects[bucket+"/"+o.CID] = true
	}
	return nil
}

func makeContents(n int) (map[string]string, map[string][]byte) {
	contents := map[string]string{}
	files := map[string][]byte{}
	for i := range n {
		path := fmt.Sprintf("asset/file_%02d.bin", i)
		data := []byte(fmt.Sprintf("content %d", i))
		files[path] = data
		contents[path] = cid.Identify(data)
	}
	return contents, files
}

func resolver(files map[string][]byte) upload.Resolver {
	return func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("no such file %s", path)
		}
		return data, nil
	}
}

func countStatus(results []upload.Result, status upload.Status) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}

func TestUpload_SecondRunIsNoop(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(5)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	first := upload.NewScheduler(gw, logger).Upload(context.Background(), "bucket", contents, resolver(files))
	require.Len(t, first, 5)
	assert.Equal(t, 5, countStatus(first, upload.StatusUploaded))
	assert.Equal(t, int32(5), gw.puts.Load())

	// A fresh scheduler relies on the remote existence check only.
	second := upload.NewScheduler(gw, logger).Upload(context.Background(), "bucket", contents, resolver(files))
	assert.Equal(t, 5, countStatus(second, upload.StatusPresent))
	assert.Equal(t, int32(5), gw.puts.Load())
	assert.Empty(t, upload.Failed(second))
}

func TestUpload_BatchesCapConcurrency(t *testing.T) {
	gw := newMemoryGateway()
	gw.delay = 5 * time.Millisecond
	contents, files := makeContents(37)

	scheduler := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t)), upload.WithBatchSize(15))
	results := scheduler.Upload(context.Background(), "bucket", contents, resolver(files))

	assert.Equal(t, 37, countStatus(results, upload.StatusUploaded))
	assert.LessOrEqual(t, gw.peak.Load(), int32(15))
	assert.Equal(t, int32(37), gw.exists.Load())
	assert.Equal(t, int32(37), gw.puts.Load())
}

func TestUpload_PartialFailureIsIsolated(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(4)
	broken := contents["asset/file_02.bin"]
	gw.failPut[broken] = true

	results := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t))).
		Upload(context.Background(), "bucket", contents, resolver(files))

	failed := upload.Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "asset/file_02.bin", failed[0].Path)
	assert.ErrorIs(t, failed[0].Err, upload.ErrStorageWrite)
	assert.Equal(t, 3, countStatus(results, upload.StatusUploaded))
}

func TestUpload_DuplicateCIDsUploadOnce(t *testing.T) {
	gw := newMemoryGateway()
	data := []byte("shared texture")
	id := cid.Identify(data)
	contents := map[string]string{
		"chair/wood.png": id,
		"table/wood.png": id,
	}
	files := map[string][]byte{"chair/wood.png": data, "table/wood.png": data}

	results := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t))).
		Upload(context.Background(), "bucket", contents, resolver(files))

	require.Len(t, results, 2)
	assert.Equal(t, upload.StatusUploaded, results[0].Status)
	assert.Equal(t, "chair/wood.png", results[0].Path)
	assert.Equal(t, upload.StatusDuplicate, results[1].Status)
	assert.Equal(t, int32(1), gw.puts.Load())
}

func TestUpload_DuplicateOfFailureFails(t *testing.T) {
	gw := newMemoryGateway()
	data := []byte("shared texture")
	id := cid.Identify(data)
	gw.failPut[id] = true
	contents := map[string]string{"a/wood.png": id, "b/wood.png": id}
	files := map[string][]byte{"a/wood.png": data, "b/wood.png": data}

	results := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t))).
		Upload(context.Background(), "bucket", contents, resolver(files))

	assert.Len(t, upload.Failed(results), 2)
}

func TestUpload_SameRunSkipsConfirmed(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(3)
	scheduler := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t)))

	scheduler.Upload(context.Background(), "bucket", contents, resolver(files))
	checks := gw.exists.Load()

	results := scheduler.Upload(context.Background(), "bucket", contents, resolver(files))
	assert.Equal(t, 3, countStatus(results, upload.StatusPresent))
	assert.Equal(t, checks, gw.exists.Load())
}

func TestUpload_Force(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(3)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	upload.NewScheduler(gw, logger).Upload(context.Background(), "bucket", contents, resolver(files))
	results := upload.NewScheduler(gw, logger, upload.WithForce(true)).
		Upload(context.Background(), "bucket", contents, resolver(files))

	assert.Equal(t, 3, countStatus(results, upload.StatusUploaded))
	assert.Equal(t, int32(3), gw.exists.Load())
	assert.Equal(t, int32(6), gw.puts.Load())
}

func TestUpload_ForceUploadsOncePerRun(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(2)
	scheduler := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t)), upload.WithForce(true))

	first := scheduler.Upload(context.Background(), "bucket", contents, resolver(files))
	second := scheduler.Upload(context.Background(), "bucket", contents, resolver(files))

	assert.Equal(t, 2, countStatus(first, upload.StatusUploaded))
	assert.Equal(t, 2, countStatus(second, upload.StatusPresent))
	assert.Equal(t, int32(0), gw.exists.Load())
	assert.Equal(t, int32(2), gw.puts.Load())
}

func TestUpload_LedgerSkipsRemoteCheck(t *testing.T) {
	gw := newMemoryGateway()
	ledger := &memoryLedger{objects: map[string]bool{}}
	contents, files := makeContents(4)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	upload.NewScheduler(gw, logger, upload.WithLedger(ledger)).
		Upload(context.Background(), "bucket", contents, resolver(files))
	assert.Len(t, ledger.objects, 4)

	checks := gw.exists.Load()
	results := upload.NewScheduler(gw, logger, upload.WithLedger(ledger)).
		Upload(context.Background(), "bucket", contents, resolver(files))
	assert.Equal(t, 4, countStatus(results, upload.StatusPresent))
	assert.Equal(t, checks, gw.exists.Load())
}

func TestUpload_InvalidCID(t *testing.T) {
	gw := newMemoryGateway()
	results := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t))).
		Upload(context.Background(), "bucket", map[string]string{"a.png": "not-a-cid"}, resolver(nil))

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, upload.ErrStorageCheck)
	assert.Zero(t, gw.exists.Load())
}

func TestUpload_CancelledBeforeStart(t *testing.T) {
	gw := newMemoryGateway()
	contents, files := makeContents(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := upload.NewScheduler(gw, zerolog.New(zerolog.NewTestWriter(t))).
		Upload(ctx, "bucket", contents, resolver(files))

	failed := upload.Failed(results)
	require.Len(t, failed, 3)
	assert.ErrorIs(t, failed[0].Err, context.Canceled)
	assert.Zero(t, gw.puts.Load())
}
