package config

import (
	"fmt"
	"net"
	"strconv"
)

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Addr HTTP 监听地址
func (c HTTPServerConfig) Addr() string { return hostPort(c.Host, c.Port) }

// Addr gRPC 监听地址
func (c GRPCServerConfig) Addr() string { return hostPort(c.Host, c.Port) }

// Addr Redis 地址
func (c RedisConfig) Addr() string { return hostPort(c.Host, c.Port) }

// Addr Milvus 地址
func (c MilvusConfig) Addr() string { return hostPort(c.Host, c.Port) }

// DSN libpq 关键字格式的连接串；ssl_mode 未配置时为 disable
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}
