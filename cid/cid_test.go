package cid_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/assetpack/cid"
)

var data = []byte("hello world")

func TestIdentify_Deterministic(t *testing.T) {
	first := cid.Identify(data)
	second := cid.Identify(bytes.Clone(data))

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "bafk"), "raw CIDv1 in base32, got %s", first)
}

func TestIdentify_SingleByteDiffers(t *testing.T) {
	other := bytes.Clone(data)
	other[len(other)-1] = 'D'

	assert.NotEqual(t, cid.Identify(data), cid.Identify(other))
}

func TestIdentify_IsSHA256Multihash(t *testing.T) {
	c, err := gocid.Decode(cid.Identify(data))
	require.NoError(t, err)

	assert.Equal(t, uint64(gocid.Raw), c.Prefix().Codec)
	assert.Equal(t, uint64(multihash.SHA2_256), c.Prefix().MhType)

	expected, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	assert.Equal(t, expected, c.Hash())
}

func TestAddresser_FileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "nested", "other-name.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0755))
	require.NoError(t, os.WriteFile(a, data, 0600))
	require.NoError(t, os.WriteFile(b, data, 0600))

	addresser, err := cid.New(cid.SHA256)
	require.NoError(t, err)

	idA, err := addresser.IdentifyFile(a)
	require.NoError(t, err)
	idB, err := addresser.IdentifyFile(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.Equal(t, cid.Identify(data), idA)
}

func TestAddresser_MissingFile(t *testing.T) {
	addresser, err := cid.New("")
	require.NoError(t, err)

	_, err = addresser.IdentifyFile(filepath.Join(t.TempDir(), "missing.glb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAddresser_BLAKE3(t *testing.T) {
	addresser, err := cid.New(cid.BLAKE3)
	require.NoError(t, err)

	id := addresser.Identify(data)
	assert.NotEqual(t, cid.Identify(data), id)

	c, err := gocid.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(multihash.BLAKE3), c.Prefix().MhType)

	again, err := addresser.IdentifyReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	_, err := cid.New("md5")
	assert.ErrorIs(t, err, cid.ErrUnknownAlgorithm)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, cid.Validate(cid.Identify(data)))
	assert.Error(t, cid.Validate("not-a-cid"))
	assert.Error(t, cid.Validate(""))
}
