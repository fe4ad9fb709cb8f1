package transcode_test

import (
	"bytes"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/assetpack/transcode"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-texture")

func encodeGLB(t *testing.T, doc *gltf.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func sceneWithTexture() *gltf.Document {
	return &gltf.Document{
		Asset:       gltf.Asset{Version: "2.0"},
		Buffers:     []*gltf.Buffer{{ByteLength: uint32(len(pngBytes)), Data: bytes.Clone(pngBytes)}},
		BufferViews: []*gltf.BufferView{{Buffer: 0, ByteLength: uint32(len(pngBytes))}},
		Images:      []*gltf.Image{{MimeType: "image/png", BufferView: gltf.Index(0)}},
	}
}

func TestGLTF_ExternalizesTextures(t *testing.T) {
	scene := encodeGLB(t, sceneWithTexture())

	result, err := transcode.GLTF{}.Transcode(scene, "chair.glb")
	require.NoError(t, err)

	require.Len(t, result.Resources, 1)
	assert.Equal(t, "chair_texture_0.png", result.Resources[0].Name)
	assert.Equal(t, pngBytes, result.Resources[0].Data)

	doc := new(gltf.Document)
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(result.Scene)).Decode(doc))
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "chair_texture_0.png", doc.Images[0].URI)
	assert.Nil(t, doc.Images[0].BufferView)
}

func TestGLTF_NoEmbeddedTextures(t *testing.T) {
	scene := encodeGLB(t, &gltf.Document{Asset: gltf.Asset{Version: "2.0"}})

	result, err := transcode.GLTF{}.Transcode(scene, "empty.glb")
	require.NoError(t, err)
	assert.Nil(t, result.Resources)
	assert.Equal(t, scene, result.Scene)
}

func TestGLTF_InvalidScene(t *testing.T) {
	_, err := transcode.GLTF{}.Transcode([]byte("not a glb"), "broken.glb")
	assert.ErrorIs(t, err, transcode.ErrTranscode)
}
