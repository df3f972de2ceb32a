package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"
)

// 文档注释：进程外检测引擎的 HTTP 适配器
// 背景：模型权重由独立推理服务加载一次并常驻；作业进程启动时构造一个客户端并注入编排器。
// 约束：约定 GET /health 与 POST /detect?conf=&iou= 接口；请求体为 JPEG 编码的拼图，响应为检测行 JSON 数组。
type HTTPEngine struct {
	endpoint   string
	thresholds Thresholds
	client     *http.Client
}

func NewHTTP(endpoint string, th Thresholds, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		endpoint:   strings.TrimRight(endpoint, "/"),
		thresholds: th,
		client:     &http.Client{Timeout: timeout},
	}
}

// 文档注释：心跳检测
// 背景：启动时探测引擎可用性；非 200 视为不可用。
func (h *HTTPEngine) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrDetectionUnavailable, resp.StatusCode)
	}
	return nil
}

func (h *HTTPEngine) detectURL() string {
	q := url.Values{}
	q.Set("conf", strconv.FormatFloat(h.thresholds.Confidence, 'f', -1, 64))
	q.Set("iou", strconv.FormatFloat(h.thresholds.IoU, 'f', -1, 64))
	return h.endpoint + "/detect?" + q.Encode()
}

// 文档注释：对一张拼图执行检测
// 返回：检测行；网络错误、非 200、解码失败、响应为 null、全部行无效时统一包装为 ErrDetectionUnavailable。
// 约束：只有 [] 才算合法的零检测，编排器据此把格子标记为已处理。
// 约束：Go 图像模型按 RGB 存储，JPEG 编码后不存在 BGR 通道顺序问题。
func (h *HTTPEngine) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrDetectionUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.detectURL(), &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	req.Header.Set("content-type", "image/jpeg")
	t0 := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		metrics.DetectFailTotal.Inc()
		logger.L().Error("detect_http_error", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.DetectFailTotal.Inc()
		return nil, fmt.Errorf("%w: status %d", ErrDetectionUnavailable, resp.StatusCode)
	}
	var out []Detection
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.DetectFailTotal.Inc()
		logger.L().Error("detect_decode_error", "err", err)
		return nil, fmt.Errorf("%w: decode: %v", ErrDetectionUnavailable, err)
	}
	if out == nil {
		metrics.DetectFailTotal.Inc()
		return nil, fmt.Errorf("%w: null body", ErrDetectionUnavailable)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.DetectDurationMs.Observe(float64(dur))
	total := len(out)
	kept := out[:0]
	for _, d := range out {
		if !d.Valid() {
			logger.L().Warn("detect_row_dropped", "xmin", d.XMin, "ymin", d.YMin, "xmax", d.XMax, "ymax", d.YMax, "confidence", d.Confidence)
			continue
		}
		kept = append(kept, d)
	}
	if total > 0 && len(kept) == 0 {
		metrics.DetectFailTotal.Inc()
		return nil, fmt.Errorf("%w: all %d rows invalid", ErrDetectionUnavailable, total)
	}
	metrics.DetectionsTotal.Add(float64(len(kept)))
	logger.L().Debug("detect_resp", "count", len(kept), "duration_ms", dur)
	return kept, nil
}
