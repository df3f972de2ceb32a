package mosaic

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"testing"

	"cooling-towers/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture：第 i 张瓦片的像素 = (i*60, x, y)，各象限可区分
func fixture(t *testing.T, i int) (tile.Image, *image.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))
	for y := 0; y < tile.Size; y++ {
		for x := 0; x < tile.Size; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(i * 60), G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return tile.Image{Data: buf.Bytes(), Width: tile.Size, Height: tile.Size}, img
}

func TestComposeQuadrants(t *testing.T) {
	var tiles []tile.Image
	var src []*image.RGBA
	for i := 0; i < 4; i++ {
		ti, img := fixture(t, i)
		tiles = append(tiles, ti)
		src = append(src, img)
	}

	m, err := Compose(tiles)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 512, 512), m.Bounds())

	// canvas[row, col] 与对应瓦片 [127,127] 一致
	assert.Equal(t, src[0].RGBAAt(127, 127), m.RGBAAt(127, 127))
	assert.Equal(t, src[1].RGBAAt(127, 127), m.RGBAAt(384, 127))
	assert.Equal(t, src[2].RGBAAt(127, 127), m.RGBAAt(127, 384))
	assert.Equal(t, src[3].RGBAAt(127, 127), m.RGBAAt(384, 384))

	// 象限边界
	assert.Equal(t, src[0].RGBAAt(255, 255), m.RGBAAt(255, 255))
	assert.Equal(t, src[3].RGBAAt(0, 0), m.RGBAAt(256, 256))
	assert.Equal(t, src[1].RGBAAt(0, 255), m.RGBAAt(256, 255))
}

func TestComposeOffsets(t *testing.T) {
	assert.Equal(t, image.Pt(0, 0), Offset(0))
	assert.Equal(t, image.Pt(256, 0), Offset(1))
	assert.Equal(t, image.Pt(0, 256), Offset(2))
	assert.Equal(t, image.Pt(256, 256), Offset(3))
}

func TestComposeEmptyIsNoop(t *testing.T) {
	m, err := Compose(nil)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestComposeRejectsPartialQuad(t *testing.T) {
	a, _ := fixture(t, 0)
	_, err := Compose([]tile.Image{a, a, a})
	assert.ErrorIs(t, err, ErrIncompleteQuad)
}

func TestComposeRejectsBadTiles(t *testing.T) {
	a, _ := fixture(t, 0)
	_, err := Compose([]tile.Image{a, a, a, {Data: []byte("not an image")}})
	assert.ErrorIs(t, err, ErrBadTile)

	small := image.NewRGBA(image.Rect(0, 0, 128, 128))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, small))
	_, err = Compose([]tile.Image{a, a, a, {Data: buf.Bytes()}})
	assert.ErrorIs(t, err, ErrBadTile)
}

func TestComposeJPEGTiles(t *testing.T) {
	var tiles []tile.Image
	for i := 0; i < 4; i++ {
		img := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, nil))
		tiles = append(tiles, tile.Image{Data: buf.Bytes()})
	}
	m, err := Compose(tiles)
	require.NoError(t, err)
	assert.Equal(t, Width, m.Bounds().Dx())
	assert.Equal(t, Height, m.Bounds().Dy())
}

func TestSaveAndLoad(t *testing.T) {
	a, _ := fixture(t, 1)
	m, err := Compose([]tile.Image{a, a, a, a})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "1_2.jpg")
	require.NoError(t, Save(path, m))
	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())
}
