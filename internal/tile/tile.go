// 包 tile：固定缩放级别下的瓦片寻址，负责四邻格布局、左上角经纬度与瓦片 URL 拼接
package tile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// Zoom：扫描作业使用的固定缩放级别
	Zoom = 20
	// Size：单张瓦片边长（像素）
	Size = 256
	// MaxZoom：寻址允许的最大级别，超过后 1<<zoom 溢出 uint32
	MaxZoom = 31
)

// ErrInvalidCell：行列号超出该级别的有效范围 [0, 2^zoom)
var ErrInvalidCell = errors.New("invalid grid cell")

// GridCell：固定级别下的一个瓦片格子（列号、行号）
type GridCell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// String：以 "{col}_{row}" 形式输出，用于日志与落盘文件名
func (c GridCell) String() string { return fmt.Sprintf("%d_%d", c.Col, c.Row) }

// Quad：主格及其右、下、右下邻格，顺序固定为 左上、右上、左下、右下
type Quad [4]GridCell

// Image：一张已下载瓦片的原始字节与解码尺寸
// 约束：仅在下载到拼图之间短暂持有，拼图完成后不再保留
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Neighbors：返回以 c 为左上角的四格布局；纯函数，无失败分支
func Neighbors(c GridCell) Quad {
	return Quad{
		{Col: c.Col, Row: c.Row},
		{Col: c.Col + 1, Row: c.Row},
		{Col: c.Col, Row: c.Row + 1},
		{Col: c.Col + 1, Row: c.Row + 1},
	}
}

// Valid：判断行列号是否落在该级别的有效范围内
func Valid(c GridCell, zoom int) bool {
	if zoom < 0 || zoom > MaxZoom {
		return false
	}
	n := 1 << uint(zoom)
	return c.Col >= 0 && c.Col < n && c.Row >= 0 && c.Row < n
}

// UpperLeft：计算格子左上角的 WGS84 经纬度（标准 slippy tile 公式）
// 约束：越界返回 ErrInvalidCell，调用方按单格非致命处理
func UpperLeft(c GridCell, zoom int) (orb.Point, error) {
	if !Valid(c, zoom) {
		return orb.Point{}, fmt.Errorf("%w: z=%d col=%d row=%d", ErrInvalidCell, zoom, c.Col, c.Row)
	}
	b := maptile.New(uint32(c.Col), uint32(c.Row), maptile.Zoom(zoom)).Bound()
	return orb.Point{b.Min.Lon(), b.Max.Lat()}, nil
}

// URL：拼接 {base}/{zoom}/{col}/{row}
func URL(base string, zoom int, c GridCell) string {
	return fmt.Sprintf("%s/%d/%d/%d", strings.TrimRight(base, "/"), zoom, c.Col, c.Row)
}

// URLs：按四格顺序返回各瓦片地址
func (q Quad) URLs(base string, zoom int) [4]string {
	var out [4]string
	for i, c := range q {
		out[i] = URL(base, zoom, c)
	}
	return out
}
