package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"cooling-towers/internal/logger"
	"cooling-towers/internal/migrate"
	"cooling-towers/internal/store"
	"cooling-towers/internal/tile"
	"cooling-towers/internal/utils"

	"github.com/joho/godotenv"
)

// 文档注释：播种处理索引
// 背景：按 WMTS 覆盖范围隔行隔列生成主格（每个主格覆盖 2x2 瓦片），以 COPY 写入 tile_index，processed 默认为 false。
// 约束：范围内已满时不做任何写入，部分写入时只补齐缺失的格子；范围可由 SEED_MIN_COL/SEED_MAX_COL/SEED_MIN_ROW/SEED_MAX_ROW/SEED_STEP 覆盖。
func main() {
	dryRun := flag.Bool("dry-run", false, "print the number of cells and exit")
	flag.Parse()

	_ = godotenv.Load(".env")
	l := logger.Setup()

	ext, err := extentFromEnv(os.Getenv)
	if err != nil {
		l.Error("seed_config_error", "err", err)
		os.Exit(1)
	}
	l.Info("seed_extent", "min_col", ext.MinCol, "max_col", ext.MaxCol, "min_row", ext.MinRow, "max_row", ext.MaxRow, "step", ext.Step, "cells", ext.Count())
	if *dryRun {
		fmt.Println(ext.Count())
		return
	}

	start := time.Now()
	ctx := context.Background()
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	n, err := store.SeedIndex(ctx, db, ext, tile.Zoom)
	if err != nil {
		l.Error("seed_error", "written", n, "err", err)
		os.Exit(1)
	}
	l.Info("seed_finished", "written", n, "elapsed", utils.FormatElapsed(time.Since(start)))
}

func extentFromEnv(getenv func(string) string) (tile.Extent, error) {
	ext := tile.UtahExtent
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"SEED_MIN_COL", &ext.MinCol},
		{"SEED_MAX_COL", &ext.MaxCol},
		{"SEED_MIN_ROW", &ext.MinRow},
		{"SEED_MAX_ROW", &ext.MaxRow},
		{"SEED_STEP", &ext.Step},
	} {
		v := getenv(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return ext, fmt.Errorf("%s=%q: %w", f.key, v, err)
		}
		*f.dst = n
	}
	if ext.MaxCol <= ext.MinCol || ext.MaxRow <= ext.MinRow {
		return ext, fmt.Errorf("empty extent %+v", ext)
	}
	if !tile.Valid(tile.GridCell{Col: ext.MaxCol - 1, Row: ext.MaxRow - 1}, tile.Zoom) || !tile.Valid(tile.GridCell{Col: ext.MinCol, Row: ext.MinRow}, tile.Zoom) {
		return ext, fmt.Errorf("extent outside zoom %d grid", tile.Zoom)
	}
	return ext, nil
}
