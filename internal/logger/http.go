package logger

import (
	"log/slog"
	"net/http"
	"time"
)

type recorder struct {
	http.ResponseWriter
	code int
	n    int
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.n += n
	return n, err
}

// AccessMiddleware：指标监听端口的访问日志
// 约束：正常抓取只在 debug 级别输出；4xx/5xx 以 warn 输出
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rec := &recorder{ResponseWriter: w, code: http.StatusOK}
			t0 := time.Now()
			next.ServeHTTP(rec, req)
			level := slog.LevelDebug
			if rec.code >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			l.Log(req.Context(), level, "scrape_access",
				"path", req.URL.Path,
				"status", rec.code,
				"bytes", rec.n,
				"ms", time.Since(t0).Milliseconds(),
				"ua", req.UserAgent(),
			)
		})
	}
}
