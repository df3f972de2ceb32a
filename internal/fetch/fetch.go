// 包 fetch：带有限重试与指数退避的瓦片下载器
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"
	"cooling-towers/internal/tile"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrTileFetch：重试耗尽或非预期状态码；只出现在 Result.Err 中，不向调用方抛出
var ErrTileFetch = errors.New("tile fetch failed")

// Outcome：单张瓦片的下载结论
type Outcome int

const (
	// OutcomePresent：200，字节可用
	OutcomePresent Outcome = iota
	// OutcomeMissing：404，瓦片确实不存在（覆盖区边缘等）
	OutcomeMissing
	// OutcomeFailed：重试耗尽或其他状态码
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePresent:
		return "present"
	case OutcomeMissing:
		return "missing"
	}
	return "failed"
}

// Result：present/absent 标记值；仅 OutcomePresent 时 Tile 非空
type Result struct {
	URL     string
	Outcome Outcome
	Tile    *tile.Image
	Err     error
}

// Present：是否拿到了瓦片字节
func (r Result) Present() bool { return r.Outcome == OutcomePresent && r.Tile != nil }

// Options：下载参数
type Options struct {
	// Timeout：单次 HTTP 调用超时
	Timeout time.Duration
	// Retries：首次之外的额外尝试次数
	Retries int
	// Backoff：退避基数，第 n 次重试前等待 Backoff * 2^(n-1)
	Backoff time.Duration
	// RateLimitQPS：每秒最多发出的 HTTP 尝试数，0 表示不限
	RateLimitQPS int
}

var DefaultOptions = Options{Timeout: 5 * time.Second, Retries: 3, Backoff: 300 * time.Millisecond}

// Fetcher：瓦片下载器；cache 可为 nil
type Fetcher struct {
	client *retryablehttp.Client
	cache  Cache
	log    *slog.Logger
}

// retryable：连接错误、超时与 500/502/504 可重试；ctx 取消后立即停止
func retryable(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

func New(opts Options, cache Cache) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	c := retryablehttp.NewClient()
	f := &Fetcher{client: c, cache: cache, log: logger.L()}
	var rt http.RoundTripper = http.DefaultTransport
	if opts.RateLimitQPS > 0 {
		rt = throttled{next: rt, tb: NewTokenBucket(opts.RateLimitQPS)}
	}
	c.HTTPClient = &http.Client{Timeout: opts.Timeout, Transport: rt}
	c.RetryMax = opts.Retries
	c.Logger = nil
	c.CheckRetry = retryable
	base := opts.Backoff
	c.Backoff = func(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
		return base << uint(attempt)
	}
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		metrics.TileAttemptsTotal.Inc()
		if attempt > 0 {
			f.log.Debug("fetch_retry", "tile", tileRef(req.URL.Path), "attempt", attempt)
		}
	}
	return f
}

// tileRef：取路径末尾的 {z}/{x}/{y}；基础地址可能带访问口令，日志中只出现该后缀
func tileRef(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/")
}

// scrub：从错误文本中去掉基础地址的路径部分（net/http 与 retryablehttp 的错误都会带上完整 URL）
func scrub(err error, raw string) error {
	u, perr := url.Parse(raw)
	if perr != nil {
		return errors.New("tile request error")
	}
	msg := err.Error()
	ref := tileRef(raw)
	for _, p := range []string{u.EscapedPath(), u.Path} {
		if base := strings.TrimSuffix(p, ref); len(base) > 1 {
			msg = strings.ReplaceAll(msg, base, "/")
		}
	}
	return errors.New(msg)
}

func (f *Fetcher) done(r Result) Result {
	metrics.TileFetchTotal.WithLabelValues(r.Outcome.String()).Inc()
	return r
}

// Fetch：下载单张瓦片
// 返回：200 为 present；404 为 missing 且不重试；其余在重试耗尽后为 failed，仅记录日志
func (f *Fetcher) Fetch(ctx context.Context, tileURL string) Result {
	if f.cache != nil {
		if data, missing, ok := f.cache.Get(ctx, tileURL); ok {
			if missing {
				return f.done(Result{URL: tileURL, Outcome: OutcomeMissing})
			}
			return f.done(Result{URL: tileURL, Outcome: OutcomePresent, Tile: decodeSize(data)})
		}
	}
	ref := tileRef(tileURL)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return f.done(Result{URL: tileURL, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrTileFetch, scrub(err, tileURL))})
	}
	resp, err := f.client.Do(req)
	if err != nil {
		err = scrub(err, tileURL)
		f.log.Warn("fetch_give_up", "tile", ref, "err", err)
		return f.done(Result{URL: tileURL, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrTileFetch, err)})
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			err = scrub(err, tileURL)
			f.log.Warn("fetch_read_error", "tile", ref, "err", err)
			return f.done(Result{URL: tileURL, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrTileFetch, err)})
		}
		if f.cache != nil {
			f.cache.Put(ctx, tileURL, data)
		}
		return f.done(Result{URL: tileURL, Outcome: OutcomePresent, Tile: decodeSize(data)})
	case http.StatusNotFound:
		f.log.Debug("fetch_missing", "tile", ref)
		if f.cache != nil {
			f.cache.PutMissing(ctx, tileURL)
		}
		return f.done(Result{URL: tileURL, Outcome: OutcomeMissing})
	}
	f.log.Warn("fetch_bad_status", "tile", ref, "status", resp.StatusCode)
	return f.done(Result{URL: tileURL, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: status %d", ErrTileFetch, resp.StatusCode)})
}

// decodeSize：读取图像头以记录宽高；无法识别时宽高为 0，由拼图阶段拒绝
func decodeSize(data []byte) *tile.Image {
	img := &tile.Image{Data: data}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img
}

// FetchQuad：并发下载四张瓦片，全部结束后返回；仅当四张均为 present 时 ok 为 true
func (f *Fetcher) FetchQuad(ctx context.Context, base string, zoom int, q tile.Quad) ([4]Result, bool) {
	var out [4]Result
	urls := q.URLs(base, zoom)
	var wg sync.WaitGroup
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = f.Fetch(ctx, urls[i])
		}(i)
	}
	wg.Wait()
	for _, r := range out {
		if !r.Present() {
			return out, false
		}
	}
	return out, true
}

// Tiles：按顺序取出四张瓦片；调用前应确认 FetchQuad 的 ok
func Tiles(rs [4]Result) []tile.Image {
	out := make([]tile.Image, 0, len(rs))
	for _, r := range rs {
		if r.Present() {
			out = append(out, *r.Tile)
		}
	}
	return out
}
