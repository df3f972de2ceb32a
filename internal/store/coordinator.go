package store

import (
	"context"

	"cooling-towers/internal/georef"
	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"
	"cooling-towers/internal/tile"
)

// Commit：一个格子的持久化结果
type Commit struct {
	Appended int
	Marked   int64
}

// Coordinator：串起结果写入与索引标记
// 约束：索引行只有在其结果已落库（或确实为零条）之后才能被标记为已处理
type Coordinator struct {
	Results ResultWriter
	Index   IndexWriter
	Prov    Provenance
}

// Record：先追加结果，成功后再标记索引；零条结果直接标记
// 异常：追加失败时不触碰索引，返回 ErrPersistence；标记失败同样返回 ErrPersistence，
// 此时结果已落库，下一轮重做该格会覆盖本次结果
func (c *Coordinator) Record(ctx context.Context, cell tile.GridCell, dets []georef.LocatedDetection) (Commit, error) {
	var out Commit
	if len(dets) > 0 {
		if err := c.Results.Append(ctx, c.Prov, cell, dets); err != nil {
			metrics.AppendTotal.WithLabelValues("fail").Inc()
			return out, err
		}
		metrics.AppendTotal.WithLabelValues("ok").Inc()
		out.Appended = len(dets)
	}
	n, err := c.Index.MarkProcessed(ctx, cell)
	if err != nil {
		return out, err
	}
	out.Marked = n
	if n == 0 {
		logger.L().Warn("mark_no_rows", "cell", cell.String())
	} else {
		metrics.RowsMarkedTotal.Add(float64(n))
	}
	return out, nil
}
