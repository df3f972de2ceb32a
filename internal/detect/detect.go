// 包 detect：目标检测引擎的调用契约与结果结构；引擎本体在进程外
package detect

import (
	"context"
	"errors"
	"image"
)

// ErrDetectionUnavailable：引擎不可达或返回内容无法使用，当前格子跳过
var ErrDetectionUnavailable = errors.New("detection unavailable")

// Detection：单个候选目标，像素坐标以拼图左上角为原点
type Detection struct {
	XMin       float64 `json:"xmin"`
	YMin       float64 `json:"ymin"`
	XMax       float64 `json:"xmax"`
	YMax       float64 `json:"ymax"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
	Name       string  `json:"name"`
}

// Thresholds：引擎可调阈值
// 背景：置信度阈值低于引擎默认以召回更多候选；IoU 阈值调低以抑制同一目标的重复框
type Thresholds struct {
	Confidence float64
	IoU        float64
}

var DefaultThresholds = Thresholds{Confidence: 0.007, IoU: 0.25}

// Engine：检测引擎契约
// 约束：输入为 512x512 RGB 图像；返回非 nil 的空切片表示确实没有目标；error 或 nil 切片表示本次结果不可用
type Engine interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Func：函数适配为 Engine
type Func func(ctx context.Context, img image.Image) ([]Detection, error)

func (f Func) Detect(ctx context.Context, img image.Image) ([]Detection, error) { return f(ctx, img) }

// Valid：框坐标有序且置信度在 [0,1]
func (d Detection) Valid() bool {
	return d.XMax >= d.XMin && d.YMax >= d.YMin && d.Confidence >= 0 && d.Confidence <= 1
}
