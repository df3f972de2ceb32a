// 包 store：索引表与结果表的 PostgreSQL 访问层，以及“先落结果、后标记索引”的提交协调
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cooling-towers/internal/georef"
	"cooling-towers/internal/logger"
	"cooling-towers/internal/tile"

	"github.com/lib/pq"
)

// ErrPersistence：结果写入或索引更新失败；该格保持未处理，等待下一轮重试
var ErrPersistence = errors.New("persistence failure")

// IndexRow：索引表中的一行
type IndexRow struct {
	Cell      tile.GridCell
	Processed bool
}

// Provenance：结果行的来源标记
type Provenance struct {
	Job   string
	RunID string
}

// IndexReader：按分区读取未处理行
type IndexReader interface {
	Unprocessed(ctx context.Context, skip, take int) ([]IndexRow, error)
}

// IndexWriter：标记单格已处理，返回受影响行数
type IndexWriter interface {
	MarkProcessed(ctx context.Context, cell tile.GridCell) (int64, error)
}

// ResultWriter：追加一个格子的全部检测结果
// 约束：要么全部写入要么全部不写；同一格重复追加时覆盖上一次写入
type ResultWriter interface {
	Append(ctx context.Context, prov Provenance, cell tile.GridCell, dets []georef.LocatedDetection) error
}

// Store：数据库访问入口，同时实现索引与结果两侧接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *sql.DB { return s.db }

const (
	qUnprocessed = `SELECT col_num, row_num, processed FROM tile_index
        WHERE processed = false
        ORDER BY row_num, col_num
        LIMIT $1 OFFSET $2`
	qMarkProcessed   = `UPDATE tile_index SET processed = true WHERE col_num = $1 AND row_num = $2 AND processed = false`
	qDeleteForCell   = `DELETE FROM tower_detections WHERE col_num = $1 AND row_num = $2`
	qInsertDetection = `INSERT INTO tower_detections(
            envelope_x_min, envelope_y_min, envelope_x_max, envelope_y_max,
            confidence, object_class, object_name,
            centroid_x_px, centroid_y_px, centroid_x_3857, centroid_y_3857,
            col_num, row_num, job_name, run_id)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
)

// Unprocessed：读取未处理行，按 (row, col) 升序分页
// 背景：固定排序让各任务的 skip/take 切分稳定，也便于人工检查进度
func (s *Store) Unprocessed(ctx context.Context, skip, take int) ([]IndexRow, error) {
	rows, err := s.db.QueryContext(ctx, qUnprocessed, take, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IndexRow
	for rows.Next() {
		var r IndexRow
		if err := rows.Scan(&r.Cell.Col, &r.Cell.Row, &r.Processed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("index_partition", "skip", skip, "take", take, "rows", len(out))
	return out, nil
}

// MarkProcessed：将单格 processed 置为 true
// 返回：受影响行数；0 表示该格不存在或已被标记，由调用方记为告警
func (s *Store) MarkProcessed(ctx context.Context, cell tile.GridCell) (int64, error) {
	res, err := s.db.ExecContext(ctx, qMarkProcessed, cell.Col, cell.Row)
	if err != nil {
		logPQ("mark_error", cell, err)
		return 0, fmt.Errorf("%w: mark %s: %v", ErrPersistence, cell, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark %s: %v", ErrPersistence, cell, err)
	}
	return n, nil
}

// Append：单事务内先删除该格旧结果再批量插入
// 背景：结果写入成功但索引标记失败时，该格会被再次处理；先删后插保证结果表不出现重复行
// 异常：任一步失败整体回滚并返回 ErrPersistence
func (s *Store) Append(ctx context.Context, prov Provenance, cell tile.GridCell, dets []georef.LocatedDetection) error {
	if len(dets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logPQ("append_error", cell, err)
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, qDeleteForCell, cell.Col, cell.Row); err != nil {
		logPQ("append_error", cell, err)
		return fmt.Errorf("%w: clear %s: %v", ErrPersistence, cell, err)
	}
	stmt, err := tx.PrepareContext(ctx, qInsertDetection)
	if err != nil {
		logPQ("append_error", cell, err)
		return fmt.Errorf("%w: prepare: %v", ErrPersistence, err)
	}
	defer stmt.Close()
	for i, d := range dets {
		x, y := sql.NullFloat64{}, sql.NullFloat64{}
		if d.Located {
			x = sql.NullFloat64{Float64: d.CentroidX3857, Valid: true}
			y = sql.NullFloat64{Float64: d.CentroidY3857, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			d.XMin, d.YMin, d.XMax, d.YMax,
			d.Confidence, d.Class, d.Name,
			d.CentroidXPx, d.CentroidYPx, x, y,
			cell.Col, cell.Row, prov.Job, prov.RunID,
		)
		if err != nil {
			logPQ("append_error", cell, err)
			return fmt.Errorf("%w: insert %s #%d: %v", ErrPersistence, cell, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		logPQ("append_error", cell, err)
		return fmt.Errorf("%w: commit %s: %v", ErrPersistence, cell, err)
	}
	logger.L().Debug("append_done", "cell", cell.String(), "rows", len(dets))
	return nil
}

// logPQ：记录数据库错误，PostgreSQL 错误附带 SQLSTATE
func logPQ(event string, cell tile.GridCell, err error) {
	var pe *pq.Error
	if errors.As(err, &pe) {
		logger.L().Error(event, "cell", cell.String(), "code", string(pe.Code), "err", pe.Message)
		return
	}
	logger.L().Error(event, "cell", cell.String(), "err", err)
}
