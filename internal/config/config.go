// 包 config：作业参数，进程启动时由环境变量组装一次，之后显式传入各组件
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cooling-towers/internal/detect"
	"cooling-towers/internal/fetch"
	"cooling-towers/internal/schedule"
	"cooling-towers/internal/tile"

	"github.com/google/uuid"
)

// TileBaseTemplate：仅提供访问口令时使用的影像源地址
const TileBaseTemplate = "https://discover.agrc.utah.gov/login/path/%s/tiles/utah"

var ErrInvalidConfig = errors.New("invalid config")

// Job：一次扫描任务的全部参数
type Job struct {
	Name            string
	RunID           string
	TaskIndex       int
	TaskSize        int
	ConcurrentTasks int
	// Skip/Take：显式覆盖分区，二者任一为 nil 时按任务序号计算
	Skip *int
	Take *int

	TileBaseURL string
	TileZoom    int
	Fetch       fetch.Options
	CacheTTL    time.Duration

	DetectEndpoint string
	Thresholds     detect.Thresholds
	DetectTimeout  time.Duration

	MetricsAddr    string
	PushgatewayURL string
	SaveDir        string
}

// FromEnv：从 getenv 读取作业参数；数值解析失败直接返回错误，不做静默回退
func FromEnv(getenv func(string) string) (Job, error) {
	j := Job{
		Name:            getenv("JOB_NAME"),
		RunID:           uuid.NewString(),
		TaskSize:        1000,
		ConcurrentTasks: 1,
		TileZoom:        tile.Zoom,
		Fetch:           fetch.DefaultOptions,
		CacheTTL:        24 * time.Hour,
		DetectEndpoint:  getenv("DETECT_ENDPOINT"),
		Thresholds:      detect.DefaultThresholds,
		DetectTimeout:   30 * time.Second,
		MetricsAddr:     getenv("METRICS_ADDR"),
		PushgatewayURL:  getenv("PUSHGATEWAY_URL"),
		SaveDir:         getenv("SAVE_DIR"),
	}
	if j.Name == "" {
		j.Name = "cooling-towers"
	}
	p := parser{getenv: getenv}

	idx := getenv("CLOUD_RUN_TASK_INDEX")
	if idx == "" {
		idx = getenv("TASK_INDEX")
	}
	if idx != "" {
		j.TaskIndex = p.atoi("CLOUD_RUN_TASK_INDEX", idx)
	}
	p.intVar(&j.TaskSize, "TASK_SIZE")
	p.intVar(&j.ConcurrentTasks, "CONCURRENT_TASKS")
	if v := getenv("SKIP"); v != "" {
		n := p.atoi("SKIP", v)
		j.Skip = &n
	}
	if v := getenv("TAKE"); v != "" {
		n := p.atoi("TAKE", v)
		j.Take = &n
	}

	j.TileBaseURL = strings.TrimRight(getenv("TILE_BASE_URL"), "/")
	if j.TileBaseURL == "" {
		if qw := getenv("TILE_QUAD_WORD"); qw != "" {
			j.TileBaseURL = fmt.Sprintf(TileBaseTemplate, qw)
		}
	}
	p.intVar(&j.TileZoom, "TILE_ZOOM")
	p.msVar(&j.Fetch.Timeout, "FETCH_TIMEOUT_MS")
	p.intVar(&j.Fetch.Retries, "FETCH_RETRIES")
	p.msVar(&j.Fetch.Backoff, "FETCH_BACKOFF_MS")
	p.intVar(&j.Fetch.RateLimitQPS, "TILE_RATE_LIMIT_QPS")
	if v := getenv("TILE_CACHE_TTL_S"); v != "" {
		j.CacheTTL = time.Duration(p.atoi("TILE_CACHE_TTL_S", v)) * time.Second
	}
	p.floatVar(&j.Thresholds.Confidence, "DETECT_CONF")
	p.floatVar(&j.Thresholds.IoU, "DETECT_IOU")
	p.msVar(&j.DetectTimeout, "DETECT_TIMEOUT_MS")

	if len(p.errs) > 0 {
		return j, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(p.errs...))
	}
	return j, nil
}

// Validate：拒绝无法安全切分或无处下载的配置
func (j Job) Validate() error {
	var errs []error
	if j.TaskSize <= 0 {
		errs = append(errs, errors.New("TASK_SIZE must be positive"))
	}
	if j.ConcurrentTasks <= 0 {
		errs = append(errs, errors.New("CONCURRENT_TASKS must be positive"))
	}
	if j.TaskIndex < 0 {
		errs = append(errs, errors.New("task index must not be negative"))
	}
	if (j.Skip == nil) != (j.Take == nil) {
		errs = append(errs, errors.New("SKIP and TAKE must be set together"))
	}
	if j.Skip != nil && (*j.Skip < 0 || *j.Take <= 0) {
		errs = append(errs, errors.New("SKIP must be >= 0 and TAKE > 0"))
	}
	if j.TileBaseURL == "" {
		errs = append(errs, errors.New("TILE_BASE_URL or TILE_QUAD_WORD is required"))
	}
	// 定位换算（georef.GSD 与主格原点）只按 tile.Zoom 计算
	if j.TileZoom != tile.Zoom {
		errs = append(errs, fmt.Errorf("TILE_ZOOM must be %d, got %d", tile.Zoom, j.TileZoom))
	}
	if j.DetectEndpoint == "" {
		errs = append(errs, errors.New("DETECT_ENDPOINT is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Partition：显式覆盖优先，否则按任务序号取模计算
func (j Job) Partition() schedule.Partition {
	if j.Skip != nil && j.Take != nil {
		return schedule.Partition{Skip: *j.Skip, Take: *j.Take}
	}
	return schedule.Claim(j.TaskIndex, j.TaskSize, j.ConcurrentTasks)
}

// Task：任务序号的文本形式，用于日志与指标分组
func (j Job) Task() string { return strconv.Itoa(j.TaskIndex) }

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) atoi(key, v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s=%q: not an integer", key, v))
	}
	return n
}

func (p *parser) intVar(dst *int, key string) {
	if v := p.getenv(key); v != "" {
		*dst = p.atoi(key, v)
	}
}

func (p *parser) msVar(dst *time.Duration, key string) {
	if v := p.getenv(key); v != "" {
		*dst = time.Duration(p.atoi(key, v)) * time.Millisecond
	}
}

func (p *parser) floatVar(dst *float64, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s=%q: not a number", key, v))
		return
	}
	*dst = f
}
