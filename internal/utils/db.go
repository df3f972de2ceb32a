// 包 utils：PostgreSQL 与 Redis 连接参数的环境变量解析
package utils

import (
	"database/sql"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// PGEnv：PG_* 环境变量解析结果
type PGEnv struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	// MaxOpen/MaxIdle：单个任务串行处理格子，连接池保持很小
	MaxOpen int
	MaxIdle int
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// PostgresEnv：读取 PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE/PG_MAX_OPEN_CONNS/PG_MAX_IDLE_CONNS
func PostgresEnv(getenv func(string) string) PGEnv {
	e := PGEnv{
		Host:     orDefault(getenv("PG_HOST"), "localhost"),
		Port:     orDefault(getenv("PG_PORT"), "5432"),
		User:     orDefault(getenv("PG_USER"), "postgres"),
		Password: getenv("PG_PASSWORD"),
		DB:       orDefault(getenv("PG_DB"), "towers"),
		SSLMode:  orDefault(getenv("PG_SSLMODE"), "disable"),
		MaxOpen:  4,
		MaxIdle:  2,
	}
	if n, err := strconv.Atoi(getenv("PG_MAX_OPEN_CONNS")); err == nil && n > 0 {
		e.MaxOpen = n
	}
	if n, err := strconv.Atoi(getenv("PG_MAX_IDLE_CONNS")); err == nil && n >= 0 {
		e.MaxIdle = n
	}
	return e
}

// DSN：postgres:// 形式的连接串；用户名与密码做 URL 转义
func (e PGEnv) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(e.Host, e.Port),
		Path:     "/" + e.DB,
		RawQuery: url.Values{"sslmode": {e.SSLMode}}.Encode(),
	}
	if e.Password != "" {
		u.User = url.UserPassword(e.User, e.Password)
	} else {
		u.User = url.User(e.User)
	}
	return u.String()
}

// OpenPostgresFromEnv：按 PG_* 打开连接池；不做连通性检查，由调用方 Ping
func OpenPostgresFromEnv() (*sql.DB, error) {
	e := PostgresEnv(os.Getenv)
	db, err := sql.Open("postgres", e.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(e.MaxOpen)
	db.SetMaxIdleConns(e.MaxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
