package fetch

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// 文档注释：按秒重置的令牌桶
// 背景：多个任务并发扫描时共享同一个影像源，对单进程的请求速率设上限；重试请求同样计数。
// 约束：令牌耗尽时等待到下一秒，不丢弃请求；ctx 取消后立即返回。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	if sec := now.Unix(); tb.lastSec != sec {
		tb.lastSec = sec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	return false, time.Unix(tb.lastSec+1, 0).Sub(now)
}

// Wait：取得一个令牌或等待 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, d := tb.allow()
		if ok {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// throttled：每次 HTTP 尝试前先取令牌
type throttled struct {
	next http.RoundTripper
	tb   *TokenBucket
}

func (t throttled) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.tb.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
