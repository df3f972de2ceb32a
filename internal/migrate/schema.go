package migrate

import (
	"context"
	"database/sql"

	"cooling-towers/internal/logger"
)

// 背景：首次运行自动创建索引表与结果表，保障播种与扫描作业可直接启动
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tile_index (
            col_num INT NOT NULL,
            row_num INT NOT NULL,
            lon DOUBLE PRECISION,
            lat DOUBLE PRECISION,
            processed BOOLEAN NOT NULL DEFAULT false,
            PRIMARY KEY (col_num, row_num)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_tile_index_pending ON tile_index(processed, row_num, col_num)`,
		`CREATE TABLE IF NOT EXISTS tower_detections (
            id BIGSERIAL PRIMARY KEY,
            envelope_x_min DOUBLE PRECISION NOT NULL,
            envelope_y_min DOUBLE PRECISION NOT NULL,
            envelope_x_max DOUBLE PRECISION NOT NULL,
            envelope_y_max DOUBLE PRECISION NOT NULL,
            confidence DOUBLE PRECISION NOT NULL,
            object_class INT NOT NULL,
            object_name TEXT NOT NULL,
            centroid_x_px DOUBLE PRECISION NOT NULL,
            centroid_y_px DOUBLE PRECISION NOT NULL,
            centroid_x_3857 DOUBLE PRECISION,
            centroid_y_3857 DOUBLE PRECISION,
            col_num INT NOT NULL,
            row_num INT NOT NULL,
            job_name TEXT NOT NULL DEFAULT '',
            run_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_tower_detections_cell ON tower_detections(col_num, row_num)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
