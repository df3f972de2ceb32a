// 包 schedule：按任务序号切分未处理索引行
package schedule

import (
	"context"

	"cooling-towers/internal/store"
)

// Partition：本任务在未处理行上的 OFFSET/LIMIT 窗口
type Partition struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// Claim：skip = (taskIndex mod concurrentTasks) * taskSize，take = taskSize
// 背景：任务数多于并发数时，取模让固定大小的工作池复用同一组窗口；前一批任务已把行标记为已处理，窗口自然后移
// 约束：concurrentTasks 必须与实际并发数一致，本函数无法校验；非正值按 1 处理
func Claim(taskIndex, taskSize, concurrentTasks int) Partition {
	if concurrentTasks <= 0 {
		concurrentTasks = 1
	}
	if taskIndex < 0 {
		taskIndex = 0
	}
	return Partition{Skip: (taskIndex % concurrentTasks) * taskSize, Take: taskSize}
}

// FetchPartition：读取分区内的未处理行，按 (row, col) 升序
func FetchPartition(ctx context.Context, r store.IndexReader, p Partition) ([]store.IndexRow, error) {
	return r.Unprocessed(ctx, p.Skip, p.Take)
}
