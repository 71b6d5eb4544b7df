package util

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-assist/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame-10.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "frame-2.png"), 8, 6)
	writePNG(t, filepath.Join(dir, "snapshot.png"), 2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-1.png.d"), 0o700))

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, 2, files[0].Frame)
	assert.Equal(t, 10, files[1].Frame)
	assert.Equal(t, -1, files[2].Frame)
	assert.Equal(t, filepath.Join(dir, "snapshot.png"), files[2].Path)

	for _, f := range files {
		assert.Equal(t, images.FormatPNG, f.Image.Format)
		assert.NotEmpty(t, f.Image.Data)
	}

	img, err := files[0].Image.Decode()
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestLoadDirectoryImagesMissing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFrameNumber(t *testing.T) {
	assert.Equal(t, 7, frameNumber("frame-7.jpg"))
	assert.Equal(t, -1, frameNumber("frame-x.jpg"))
	assert.Equal(t, -1, frameNumber("7.jpg"))
}
