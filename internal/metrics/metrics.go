package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	CellsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towers_cells_total",
		Help: "Grid cells visited, by final state and reason",
	}, []string{"state", "reason"})
	CellDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "towers_cell_duration_ms",
		Help:    "Wall time spent on one grid cell in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	RowsMarkedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "towers_index_rows_marked_total",
		Help: "Index rows flipped to processed",
	})
	TileFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towers_tile_fetch_total",
		Help: "Tile fetches by outcome (present, missing, failed)",
	}, []string{"outcome"})
	TileAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "towers_tile_http_attempts_total",
		Help: "HTTP attempts issued to the tile source, retries included",
	})
	TileCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towers_tile_cache_total",
		Help: "Tile cache lookups by result (hit, miss, error)",
	}, []string{"result"})
	DetectDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "towers_detect_duration_ms",
		Help:    "Detection engine call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	DetectFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "towers_detect_fail_total",
		Help: "Detection engine calls that returned nothing usable",
	})
	DetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "towers_detections_total",
		Help: "Detections returned by the engine",
	})
	AppendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towers_append_total",
		Help: "Result appends by result (ok, fail)",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(CellsTotal)
	prometheus.MustRegister(CellDurationMs)
	prometheus.MustRegister(RowsMarkedTotal)
	prometheus.MustRegister(TileFetchTotal)
	prometheus.MustRegister(TileAttemptsTotal)
	prometheus.MustRegister(TileCacheTotal)
	prometheus.MustRegister(DetectDurationMs)
	prometheus.MustRegister(DetectFailTotal)
	prometheus.MustRegister(DetectionsTotal)
	prometheus.MustRegister(AppendTotal)
}

// 文档注释：返回 Prometheus 指标监听器，挂载在 METRICS_ADDR 的 /metrics
func Handler() http.Handler { return promhttp.Handler() }

// 文档注释：作业结束时推送到 Pushgateway
// 背景：Cloud Run 任务生命周期短，抓取方可能来不及拉取；按 job 与 task 分组覆盖上一轮数据。
func Push(url, job, task string) error {
	return push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("task", task).
		Push()
}
