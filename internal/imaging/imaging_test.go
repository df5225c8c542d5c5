package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage builds a small gradient image so it is never classified blank.
func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 13), G: uint8(y * 7), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func flatImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestHashIgnoresEncoding(t *testing.T) {
	img := testImage(16, 16)
	dir := t.TempDir()

	// The same pixels written twice through the PNG codec must collide.
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.jpg") // deliberately misleading extension
	writePNG(t, a, img)
	writePNG(t, b, img)

	hashA, err := HashFile(a)
	require.NoError(t, err)
	hashB, err := HashFile(b)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.Len(t, hashA, 32)
	assert.Equal(t, Hash(img), hashA)
}

func TestHashDistinguishesContent(t *testing.T) {
	a := testImage(16, 16)
	b := testImage(16, 16)
	b.Set(3, 3, color.NRGBA{R: 200, G: 1, B: 2, A: 255})

	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(flatImage(8, 8, color.NRGBA{R: 120, G: 130, B: 140, A: 255})))
	assert.True(t, IsBlank(flatImage(1, 1, color.NRGBA{A: 255})))
	assert.False(t, IsBlank(testImage(8, 8)))
}

func TestEqual(t *testing.T) {
	a := testImage(12, 8)
	b := testImage(12, 8)
	assert.True(t, Equal(a, b))

	b.Set(0, 0, color.NRGBA{R: 1, A: 255})
	assert.False(t, Equal(a, b))

	assert.False(t, Equal(testImage(12, 8), testImage(8, 12)))
}

func TestSameFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	c := filepath.Join(dir, "c.png")

	img := testImage(10, 10)
	other := testImage(10, 10)
	other.Set(5, 5, color.NRGBA{B: 250, A: 255})

	writePNG(t, a, img)
	writePNG(t, b, img)
	writePNG(t, c, other)

	same, err := SameFiles(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameFiles(a, c)
	require.NoError(t, err)
	assert.False(t, same)

	_, err = SameFiles(a, filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := Decode(path)
	assert.Error(t, err)
}
