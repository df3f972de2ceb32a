// 包 georef：把拼图像素坐标换算为 Web Mercator（EPSG:3857）坐标
package georef

import (
	"cooling-towers/internal/detect"
	"cooling-towers/internal/tile"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// GSD：20 级下每像素对应的地图单位（米）
const GSD = 0.1492910708688

// LocatedDetection：附带像素中心与投影中心的检测结果
// 约束：Located 为 false 时仅像素字段有效（主格越界）
type LocatedDetection struct {
	detect.Detection
	CentroidXPx   float64 `json:"centroid_x_px"`
	CentroidYPx   float64 `json:"centroid_y_px"`
	CentroidX3857 float64 `json:"centroid_x_3857"`
	CentroidY3857 float64 `json:"centroid_y_3857"`
	Located       bool    `json:"located"`
}

// Origin：主格左上角投影到 EPSG:3857 后的坐标
func Origin(primary tile.GridCell) (orb.Point, error) {
	ul, err := tile.UpperLeft(primary, tile.Zoom)
	if err != nil {
		return orb.Point{}, err
	}
	return project.WGS84.ToMercator(ul), nil
}

// Locate：计算像素中心并换算到地图坐标
// 返回：主格越界时仍返回带像素中心的结果，同时返回 tile.ErrInvalidCell 供调用方记录；空输入原样返回
// 约束：像素行向下增长而地图纵轴向上增长，y 方向取减
func Locate(dets []detect.Detection, primary tile.GridCell) ([]LocatedDetection, error) {
	if len(dets) == 0 {
		return []LocatedDetection{}, nil
	}
	out := make([]LocatedDetection, len(dets))
	for i, d := range dets {
		out[i] = LocatedDetection{
			Detection:   d,
			CentroidXPx: (d.XMin + d.XMax) / 2,
			CentroidYPx: (d.YMin + d.YMax) / 2,
		}
	}
	origin, err := Origin(primary)
	if err != nil {
		return out, err
	}
	for i := range out {
		out[i].CentroidX3857 = origin.X() + out[i].CentroidXPx*GSD
		out[i].CentroidY3857 = origin.Y() - out[i].CentroidYPx*GSD
		out[i].Located = true
	}
	return out, nil
}
