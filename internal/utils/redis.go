package utils

import (
	"net"
	"os"
	"strconv"

	"cooling-towers/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisOptions：由 REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB 组装客户端参数
// 返回：未配置 REDIS_HOST 时返回 nil，瓦片缓存随之关闭；REDIS_DB 非法时回退到 0
func RedisOptions(getenv func(string) string) *redis.Options {
	host := getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	db, err := strconv.Atoi(getenv("REDIS_DB"))
	if err != nil || db < 0 {
		db = 0
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, orDefault(getenv("REDIS_PORT"), "6379")),
		Password: getenv("REDIS_PASS"),
		DB:       db,
	}
}

// OpenRedisFromEnv：按环境变量打开 Redis 客户端；未配置时返回 nil
func OpenRedisFromEnv() *redis.Client {
	opts := RedisOptions(os.Getenv)
	if opts == nil {
		return nil
	}
	logger.L().Debug("redis_env", "addr", opts.Addr, "db", opts.DB)
	return redis.NewClient(opts)
}
