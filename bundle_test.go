package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/config"
	"github.com/stupid-simple/assetpack/manifest"
	"github.com/stupid-simple/assetpack/pack"
	"github.com/stupid-simple/assetpack/storage/fsstore"
)

func writeTestFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writeTestPack(t *testing.T, srcDir string, name string, id string, assets int) {
	t.Helper()
	packDir := filepath.Join(srcDir, name)
	if id != "" {
		writeTestFile(t, filepath.Join(packDir, "info.json"), fmt.Sprintf(`{"id":%q,"title":"Pack %s"}`, id, id))
	}
	writeTestFile(t, filepath.Join(packDir, "thumbnail.png"), "thumbnail of "+name)
	for i := range assets {
		dir := filepath.Join(packDir, fmt.Sprintf("asset_%d", i))
		writeTestFile(t, filepath.Join(dir, "asset.json"), `{"name":"Tree","category":"nature","tags":["tree"]}`)
		writeTestFile(t, filepath.Join(dir, "thumbnail.png"), "tree thumbnail")
		writeTestFile(t, filepath.Join(dir, "tree.glb"), fmt.Sprintf("%s tree %d", name, i))
	}
}

type countingStore struct {
	*fsstore.Store
	puts atomic.Int32
}

func (c *countingStore) Put(ctx context.Context, bucket string, key string, contentType string, data []byte) error {
	c.puts.Add(1)
	return c.Store.Put(ctx, bucket, key, contentType, data)
}

func testBundleParams(t *testing.T, srcDir string, outDir string, gw *countingStore) bundleParams {
	return bundleParams{
		srcPath:       srcDir,
		outPath:       outDir,
		publicURL:     "assets.example.com",
		bucket:        "content",
		contentServer: "https://content.example.com",
		hash:          cid.SHA256,
		policy:        pack.DropAsset,
		batchSize:     15,
		gateway:       gw,
		logger:        zerolog.New(zerolog.NewTestWriter(t)),
	}
}

func newCountingStore(t *testing.T) *countingStore {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	return &countingStore{Store: store}
}

func TestBundlePacks(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	writeTestPack(t, srcDir, "forest", "p1", 2)
	writeTestPack(t, srcDir, "broken", "", 1)
	writeTestPack(t, srcDir, "village", "p2", 1)
	gw := newCountingStore(t)

	report, err := bundlePacks(context.Background(), testBundleParams(t, srcDir, outDir, gw))
	require.NoError(t, err)

	require.Len(t, report.packs, 2)
	assert.Equal(t, "p1", report.packs[0].ID)
	assert.Equal(t, "p2", report.packs[1].ID)
	require.Len(t, report.skipped, 1)
	assert.Equal(t, "broken", report.skipped[0].dir)
	assert.ErrorIs(t, report.skipped[0].reason, pack.ErrAborted)

	raw, err := os.ReadFile(filepath.Join(outDir, manifest.IndexFileName))
	require.NoError(t, err)
	var index pack.Envelope[manifest.Index]
	require.NoError(t, json.Unmarshal(raw, &index))
	require.Len(t, index.Data.Packs, 2)
	assert.Equal(t, "/p1.json", index.Data.Packs[0].URL)
	assert.FileExists(t, filepath.Join(outDir, "p2.json"))
	assert.FileExists(t, filepath.Join(outDir, manifest.RoutingFileName))

	// 3 scenes, the shared asset thumbnail once and 2 pack thumbnails.
	assert.Equal(t, int32(6), gw.puts.Load())

	_, err = bundlePacks(context.Background(), testBundleParams(t, srcDir, outDir, gw))
	require.NoError(t, err)
	assert.Equal(t, int32(6), gw.puts.Load())
}

func TestBundlePacks_WithLedger(t *testing.T) {
	srcDir := t.TempDir()
	writeTestPack(t, srcDir, "forest", "p1", 2)
	gw := newCountingStore(t)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	db, err := openLedger(filepath.Join(t.TempDir(), "ledger.db"), logger, false)
	require.NoError(t, err)

	params := testBundleParams(t, srcDir, "", gw)
	params.publicURL = ""
	params.db = db

	_, err = bundlePacks(context.Background(), params)
	require.NoError(t, err)

	bucket, err := db.GetBucket(context.Background(), "content")
	require.NoError(t, err)
	objects, _, err := bucket.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(gw.puts.Load()), objects)
}

func TestBundlePacks_OutRequiresURL(t *testing.T) {
	params := testBundleParams(t, t.TempDir(), t.TempDir(), newCountingStore(t))
	params.publicURL = ""

	_, err := bundlePacks(context.Background(), params)
	assert.Error(t, err)
}

func TestBundlePacks_MissingSource(t *testing.T) {
	params := testBundleParams(t, filepath.Join(t.TempDir(), "missing"), "", newCountingStore(t))
	params.publicURL = ""

	_, err := bundlePacks(context.Background(), params)
	assert.Error(t, err)
}

func TestBundlePacks_Cancelled(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	writeTestPack(t, srcDir, "forest", "p1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := bundlePacks(ctx, testBundleParams(t, srcDir, outDir, newCountingStore(t)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(outDir, manifest.IndexFileName))

	require.Len(t, report.skipped, 1)
	assert.Equal(t, "forest", report.skipped[0].dir)
	assert.ErrorIs(t, report.skipped[0].reason, context.Canceled)
}

func TestConfigJobToBundleJob(t *testing.T) {
	deps := jobDeps{gateway: newCountingStore(t), batchSize: 15}
	logger := zerolog.New(zerolog.NewTestWriter(t))

	_, err := configJobToBundleJob(context.Background(), config.Job{
		SourceDir: "packs",
		Bucket:    "content",
		Schedule:  "* * * * *",
	}, deps, logger)
	assert.NoError(t, err)

	_, err = configJobToBundleJob(context.Background(), config.Job{SourceDir: "packs"}, deps, logger)
	assert.Error(t, err)

	_, err = configJobToBundleJob(context.Background(), config.Job{
		SourceDir:     "packs",
		Bucket:        "content",
		Schedule:      "* * * * *",
		UploadFailure: "ignore",
	}, deps, logger)
	assert.Error(t, err)
}
