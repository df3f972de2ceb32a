// 程序入口：读取作业参数、初始化依赖并扫描本任务分到的索引分区；单格逻辑在 internal/scan
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cooling-towers/internal/config"
	"cooling-towers/internal/detect"
	"cooling-towers/internal/fetch"
	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"
	"cooling-towers/internal/migrate"
	"cooling-towers/internal/scan"
	"cooling-towers/internal/schedule"
	"cooling-towers/internal/store"
	"cooling-towers/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	jobStart := time.Now()

	job, err := config.FromEnv(os.Getenv)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l = l.With("job", job.Name, "task", job.TaskIndex, "run_id", job.RunID)
	l.Info("job_start", "task_size", job.TaskSize, "concurrent_tasks", job.ConcurrentTasks, "zoom", job.TileZoom)

	// 背景：Cloud Run 任务超时或被抢占时先收到 SIGTERM；当前格子不会被标记，下一轮可重试
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}
	l.Info("db_ping_ok")
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)

	var cache fetch.Cache
	if rc := utils.OpenRedisFromEnv(); rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
		_ = rc.Close()
	} else {
		defer rc.Close()
		cache = fetch.NewRedisCache(rc, job.CacheTTL)
		l.Info("redis_ping_ok", "ttl_s", int(job.CacheTTL.Seconds()))
	}

	if job.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
		srv := &http.Server{Addr: job.MetricsAddr, Handler: logger.AccessMiddleware(l)(mux), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			l.Info("metrics_listening", "addr", job.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics_listen_error", "err", err)
			}
		}()
		defer srv.Close()
	}

	engine := detect.NewHTTP(job.DetectEndpoint, job.Thresholds, job.DetectTimeout)
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := engine.Heartbeat(hctx); err != nil {
		l.Warn("engine_unhealthy", "endpoint", job.DetectEndpoint, "err", err)
	} else {
		l.Info("engine_ready", "endpoint", job.DetectEndpoint)
	}
	cancel()

	part := job.Partition()
	rows, err := schedule.FetchPartition(ctx, st, part)
	if err != nil {
		l.Error("partition_error", "skip", part.Skip, "take", part.Take, "err", err)
		os.Exit(1)
	}
	l.Info("partition_claimed", "skip", part.Skip, "take", part.Take, "rows", len(rows))

	coord := &store.Coordinator{Results: st, Index: st, Prov: store.Provenance{Job: job.Name, RunID: job.RunID}}
	sc := scan.New(scan.Options{BaseURL: job.TileBaseURL, Zoom: job.TileZoom, SaveDir: job.SaveDir},
		fetch.New(job.Fetch, cache), engine, coord, l)
	rep := sc.Run(ctx, rows)

	if job.PushgatewayURL != "" {
		if err := metrics.Push(job.PushgatewayURL, job.Name, job.Task()); err != nil {
			l.Warn("metrics_push_error", "err", err)
		}
	}
	l.Info("job_done",
		"complete", rep.Complete(),
		"indexed", rep.Indexed,
		"skipped", rep.Skipped,
		"reasons", rep.Reasons,
		"elapsed", utils.FormatElapsed(time.Since(jobStart)),
	)
}
