// 包 scan：单格状态机与分区遍历
package scan

import (
	"time"

	"cooling-towers/internal/georef"
	"cooling-towers/internal/tile"
)

// State：单格处理阶段
type State int

const (
	StateFetching State = iota
	StateCompositing
	StateDetecting
	StateLocating
	StatePersisting
	StateIndexed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateCompositing:
		return "compositing"
	case StateDetecting:
		return "detecting"
	case StateLocating:
		return "locating"
	case StatePersisting:
		return "persisting"
	case StateIndexed:
		return "indexed"
	case StateSkipped:
		return "skipped"
	}
	return "unknown"
}

// 跳过原因
const (
	ReasonTileAbsent        = "tile_absent"
	ReasonComposeFailed     = "compose_failed"
	ReasonDetectUnavailable = "detect_unavailable"
	ReasonNoDetections      = "no_detections"
	ReasonAppendFailed      = "append_failed"
	ReasonMarkFailed        = "mark_failed"
	ReasonCancelled         = "cancelled"
	ReasonPanic             = "panic"
)

// CellResult：一个格子的最终结论
// 约束：State 只会是 StateIndexed 或 StateSkipped；Marked 表示索引行已被置为已处理
type CellResult struct {
	Cell       tile.GridCell
	State      State
	StoppedAt  State
	Reason     string
	Detections []georef.LocatedDetection
	Marked     bool
	Elapsed    time.Duration
	Err        error
}

// Report：一次分区运行的汇总
type Report struct {
	Claimed    int
	Visited    int
	Indexed    int
	Skipped    int
	Marked     int
	Detections int
	Reasons    map[string]int
	Elapsed    time.Duration
}

// Complete：分区内每一行都被访问过一次
func (r Report) Complete() bool { return r.Visited == r.Claimed }

func (r *Report) add(c CellResult) {
	r.Visited++
	switch c.State {
	case StateIndexed:
		r.Indexed++
	case StateSkipped:
		r.Skipped++
	}
	if c.Marked {
		r.Marked++
	}
	if c.Reason != "" {
		if r.Reasons == nil {
			r.Reasons = map[string]int{}
		}
		r.Reasons[c.Reason]++
	}
	r.Detections += len(c.Detections)
}
