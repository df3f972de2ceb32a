// 包 logger：进程级结构化日志；LOG_LEVEL 控制级别，LOG_FORMAT 或 Cloud Run 环境决定输出格式
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// ParseLevel：将 LOG_LEVEL 文本映射为 slog 级别，未知值回退 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// cloudAttrs：JSON 输出时把 level/msg 改名为 Cloud Logging 识别的 severity/message
func cloudAttrs(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// New：按级别与格式构造日志器，不修改进程默认值
// 约束：format 为 "json" 时输出 Cloud Logging 兼容字段，其余为文本格式
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "json" {
		opts.ReplaceAttr = cloudAttrs
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup：初始化默认日志器并设为 slog 默认输出
// 背景：Cloud Run 任务（存在 CLOUD_RUN_JOB）未显式指定 LOG_FORMAT 时默认 JSON
func Setup() *slog.Logger {
	format := os.Getenv("LOG_FORMAT")
	if format == "" && os.Getenv("CLOUD_RUN_JOB") != "" {
		format = "json"
	}
	defaultLogger = New(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")), format)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
