package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"cooling-towers/internal/detect"
	"cooling-towers/internal/fetch"
	"cooling-towers/internal/georef"
	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"
	"cooling-towers/internal/mosaic"
	"cooling-towers/internal/store"
	"cooling-towers/internal/tile"
	"cooling-towers/internal/utils"
)

// QuadFetcher：并发下载四张瓦片，全部结束后返回；ok 仅在四张都拿到时为 true
type QuadFetcher interface {
	FetchQuad(ctx context.Context, base string, zoom int, q tile.Quad) ([4]fetch.Result, bool)
}

// Options：编排器参数
type Options struct {
	BaseURL string
	Zoom    int
	// SaveDir：非空时把有检测结果的拼图写为 {col}_{row}.jpg
	SaveDir string
}

// 文档注释：单进程扫描编排器
// 背景：检测引擎客户端在进程启动时构造一次并注入；格子严格串行处理，格内四张瓦片并发下载。
// 约束：任何单格失败只影响该格；索引行仅经由 store.Coordinator 标记。
type Scanner struct {
	opts    Options
	fetcher QuadFetcher
	engine  detect.Engine
	coord   *store.Coordinator
	log     *slog.Logger
}

func New(opts Options, f QuadFetcher, e detect.Engine, c *store.Coordinator, l *slog.Logger) *Scanner {
	if opts.Zoom == 0 {
		opts.Zoom = tile.Zoom
	}
	if l == nil {
		l = logger.L()
	}
	return &Scanner{opts: opts, fetcher: f, engine: e, coord: c, log: l}
}

type cellRun struct {
	res   CellResult
	start time.Time
	log   *slog.Logger
}

func (r *cellRun) enter(st State) {
	r.res.StoppedAt = st
	r.log.Debug("cell_state", "state", st.String(), "elapsed", utils.FormatElapsed(time.Since(r.start)))
}

func (r *cellRun) finish(st State, reason string, err error) CellResult {
	r.res.State = st
	r.res.Reason = reason
	r.res.Err = err
	r.res.Elapsed = time.Since(r.start)
	metrics.CellsTotal.WithLabelValues(st.String(), reason).Inc()
	metrics.CellDurationMs.Observe(float64(r.res.Elapsed.Milliseconds()))
	attrs := []any{
		"state", st.String(),
		"at", r.res.StoppedAt.String(),
		"detections", len(r.res.Detections),
		"marked", r.res.Marked,
		"elapsed", utils.FormatElapsed(r.res.Elapsed),
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if err != nil {
		attrs = append(attrs, "err", err)
		r.log.Warn("cell_done", attrs...)
	} else {
		r.log.Info("cell_done", attrs...)
	}
	return r.res
}

// ProcessCell：Fetching → Compositing → Detecting → Locating → Persisting → Indexed
// 返回：终态为 Indexed 或 Skipped；零检测结果的格子会被标记为已处理，但终态记为 Skipped(no_detections)
func (s *Scanner) ProcessCell(ctx context.Context, cell tile.GridCell) (out CellResult) {
	r := &cellRun{res: CellResult{Cell: cell}, start: time.Now(), log: s.log.With("cell", cell.String())}
	defer func() {
		if p := recover(); p != nil {
			out = r.finish(StateSkipped, ReasonPanic, fmt.Errorf("panic: %v", p))
		}
	}()

	r.enter(StateFetching)
	results, ok := s.fetcher.FetchQuad(ctx, s.opts.BaseURL, s.opts.Zoom, tile.Neighbors(cell))
	if !ok {
		if ctx.Err() != nil {
			return r.finish(StateSkipped, ReasonCancelled, ctx.Err())
		}
		var absent []string
		for _, fr := range results {
			if !fr.Present() {
				absent = append(absent, fr.Outcome.String())
			}
		}
		r.log.Debug("quad_incomplete", "absent", absent)
		return r.finish(StateSkipped, ReasonTileAbsent, nil)
	}

	r.enter(StateCompositing)
	img, err := mosaic.Compose(fetch.Tiles(results))
	if err != nil {
		return r.finish(StateSkipped, ReasonComposeFailed, err)
	}

	r.enter(StateDetecting)
	dets, err := s.engine.Detect(ctx, img)
	if err == nil && dets == nil {
		err = errors.New("engine returned no result")
	}
	if err != nil {
		if !errors.Is(err, detect.ErrDetectionUnavailable) {
			err = fmt.Errorf("%w: %v", detect.ErrDetectionUnavailable, err)
		}
		return r.finish(StateSkipped, ReasonDetectUnavailable, err)
	}

	r.enter(StateLocating)
	located, err := georef.Locate(dets, cell)
	if err != nil {
		r.log.Warn("locate_unlocated", "err", err)
	}
	r.res.Detections = located
	if len(located) > 0 && s.opts.SaveDir != "" {
		path := filepath.Join(s.opts.SaveDir, cell.String()+".jpg")
		if err := mosaic.Save(path, img); err != nil {
			r.log.Warn("mosaic_save_error", "path", path, "err", err)
		}
	}

	r.enter(StatePersisting)
	if ctx.Err() != nil {
		return r.finish(StateSkipped, ReasonCancelled, ctx.Err())
	}
	commit, err := s.coord.Record(ctx, cell, located)
	if err != nil {
		if commit.Appended == 0 && len(located) > 0 {
			return r.finish(StateSkipped, ReasonAppendFailed, err)
		}
		return r.finish(StateSkipped, ReasonMarkFailed, err)
	}
	r.res.Marked = commit.Marked > 0
	if len(located) == 0 {
		return r.finish(StateSkipped, ReasonNoDetections, nil)
	}
	r.res.StoppedAt = StateIndexed
	return r.finish(StateIndexed, "", nil)
}

// Run：按顺序处理分区内每一行；ctx 取消后不再开始新的格子
func (s *Scanner) Run(ctx context.Context, rows []store.IndexRow) Report {
	start := time.Now()
	rep := Report{Claimed: len(rows)}
	s.log.Info("partition_start", "rows", len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			s.log.Warn("partition_cancelled", "visited", rep.Visited, "claimed", rep.Claimed)
			break
		}
		rep.add(s.ProcessCell(ctx, row.Cell))
	}
	rep.Elapsed = time.Since(start)
	s.log.Info("partition_done",
		"claimed", rep.Claimed,
		"visited", rep.Visited,
		"indexed", rep.Indexed,
		"skipped", rep.Skipped,
		"marked", rep.Marked,
		"detections", rep.Detections,
		"elapsed", utils.FormatElapsed(rep.Elapsed),
	)
	return rep
}
