// 包 mosaic：将四张同尺寸瓦片按固定布局拼成 512x512 画布
package mosaic

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"cooling-towers/internal/tile"

	_ "golang.org/x/image/webp"
)

const (
	Columns = 2
	Rows    = 2
	Width   = tile.Size * Columns
	Height  = tile.Size * Rows
)

var (
	// ErrIncompleteQuad：不是恰好四张瓦片，不允许部分拼图
	ErrIncompleteQuad = errors.New("quad incomplete")
	// ErrBadTile：瓦片无法解码或尺寸不是 256x256
	ErrBadTile = errors.New("bad tile")
)

// Offset：第 i 张瓦片在画布上的左上角（x 为列起点，y 为行起点）
func Offset(i int) image.Point {
	return image.Point{X: (i % Columns) * tile.Size, Y: (i / Columns) * tile.Size}
}

// Compose：按 左上、右上、左下、右下 顺序拼图，白色底
// 返回：输入为空时返回 nil, nil；不足或多于四张返回 ErrIncompleteQuad
// 约束：不缩放、不做色彩校正
func Compose(tiles []tile.Image) (*image.RGBA, error) {
	if len(tiles) == 0 {
		return nil, nil
	}
	if len(tiles) != Columns*Rows {
		return nil, fmt.Errorf("%w: got %d tiles", ErrIncompleteQuad, len(tiles))
	}
	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	for i, t := range tiles {
		img, _, err := image.Decode(bytes.NewReader(t.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: tile %d: %v", ErrBadTile, i, err)
		}
		b := img.Bounds()
		if b.Dx() != tile.Size || b.Dy() != tile.Size {
			return nil, fmt.Errorf("%w: tile %d is %dx%d", ErrBadTile, i, b.Dx(), b.Dy())
		}
		at := Offset(i)
		draw.Draw(canvas, image.Rect(at.X, at.Y, at.X+tile.Size, at.Y+tile.Size), img, b.Min, draw.Src)
	}
	return canvas, nil
}

// Save：以 JPEG 写出拼图或瓦片，自动创建目录
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load：读取本地图片文件（JPEG/PNG/WebP）
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
