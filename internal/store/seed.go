package store

import (
	"context"
	"database/sql"

	"cooling-towers/internal/logger"
	"cooling-towers/internal/tile"

	"github.com/lib/pq"
)

// SeedBatch：每批 COPY 提交的行数
var SeedBatch = 50000

const (
	qSeedCount = `SELECT COUNT(1) FROM tile_index
WHERE col_num >= $1 AND col_num < $2 AND row_num >= $3 AND row_num < $4`
	qSeedStage = `CREATE TEMP TABLE tile_index_seed (
  col_num INTEGER NOT NULL,
  row_num INTEGER NOT NULL,
  lon DOUBLE PRECISION NOT NULL,
  lat DOUBLE PRECISION NOT NULL
) ON COMMIT DROP`
	qSeedMerge = `INSERT INTO tile_index (col_num, row_num, lon, lat)
SELECT col_num, row_num, lon, lat FROM tile_index_seed
ON CONFLICT (col_num, row_num) DO NOTHING`
)

// SeedIndex：按范围生成主格并批量写入索引表
// 背景：范围内已满时直接返回 0；部分写入（上次中途失败）时续写缺失的格子，已有行及其 processed 状态保持不变
// 约束：每 SeedBatch 行一个事务：COPY 到事务内临时表，再 INSERT ... ON CONFLICT DO NOTHING 合并
// 返回：已提交的新增行数；出错时不含被回滚的批次
func SeedIndex(ctx context.Context, db *sql.DB, ext tile.Extent, zoom int) (int64, error) {
	var existing int64
	if err := db.QueryRowContext(ctx, qSeedCount, ext.MinCol, ext.MaxCol, ext.MinRow, ext.MaxRow).Scan(&existing); err != nil {
		return 0, err
	}
	want := ext.Count()
	if existing >= want {
		logger.L().Info("seed_skip", "existing", existing, "cells", want)
		return 0, nil
	}
	if existing > 0 {
		logger.L().Warn("seed_resume", "existing", existing, "cells", want)
	}

	var (
		tx      *sql.Tx
		stmt    *sql.Stmt
		pending int
		written int64
	)
	begin := func() error {
		var err error
		if tx, err = db.BeginTx(ctx, nil); err != nil {
			tx = nil
			return err
		}
		if _, err = tx.ExecContext(ctx, qSeedStage); err != nil {
			return err
		}
		stmt, err = tx.PrepareContext(ctx, pq.CopyIn("tile_index_seed", "col_num", "row_num", "lon", "lat"))
		return err
	}
	flush := func() error {
		if _, err := stmt.ExecContext(ctx); err != nil {
			return err
		}
		if err := stmt.Close(); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, qSeedMerge)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		tx = nil
		n, _ := res.RowsAffected()
		written += n
		pending = 0
		return nil
	}
	abort := func(err error) (int64, error) {
		if tx != nil {
			_ = tx.Rollback()
		}
		logger.L().Error("seed_abort", "written", written, "err", err)
		return written, err
	}

	if err := begin(); err != nil {
		return abort(err)
	}
	var loopErr error
	ext.Each(func(c tile.GridCell) bool {
		ul, err := tile.UpperLeft(c, zoom)
		if err == nil {
			_, err = stmt.ExecContext(ctx, c.Col, c.Row, ul.Lon(), ul.Lat())
		}
		if err == nil {
			pending++
			if pending == SeedBatch {
				if err = flush(); err == nil {
					logger.L().Info("seed_progress", "written", written)
					err = begin()
				}
			}
		}
		loopErr = err
		return err == nil
	})
	if loopErr != nil {
		return abort(loopErr)
	}
	if err := flush(); err != nil {
		return abort(err)
	}
	logger.L().Info("seed_done", "written", written)
	return written, nil
}
